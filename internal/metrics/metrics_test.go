package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/mailsort/internal/classify"
)

func TestClassifierResult(t *testing.T) {
	contract := fmt.Errorf("wrap: %w", &classify.ContractError{Classifier: "spam", Key: "is_spam", Reason: "missing key"})
	assert.Equal(t, "contract_error", ClassifierResult(false, contract))
	assert.Equal(t, "error", ClassifierResult(false, errors.New("down")))
	assert.Equal(t, "true", ClassifierResult(true, nil))
	assert.Equal(t, "false", ClassifierResult(false, nil))
}

func TestClassificationsObserver(t *testing.T) {
	ClassifierInvocations.Reset()
	Classifications.ObserveClassification("spam", true, nil, 10*time.Millisecond)
	Classifications.ObserveClassification("spam", false, nil, time.Millisecond)
	Classifications.ObserveClassification("spam", true, nil, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(ClassifierInvocations.WithLabelValues("spam", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ClassifierInvocations.WithLabelValues("spam", "false")))
}

func TestHandlerServesPipelineMetrics(t *testing.T) {
	MessagesProcessed.Reset()
	MessagesProcessed.WithLabelValues("backfill", "moved").Add(3)

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mailsort_messages_processed_total{outcome="moved",phase="backfill"} 3`)
}
