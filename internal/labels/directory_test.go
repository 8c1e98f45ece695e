package labels

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/mail/mailtest"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadAndResolve(t *testing.T) {
	backend := mailtest.New(
		mail.Label{ID: "INBOX", Name: "INBOX", System: true},
		mail.Label{ID: "Label_1", Name: "Receipts"},
	)
	dir, err := Load(context.Background(), backend, slogDiscard())
	require.NoError(t, err)

	l, ok := dir.Resolve("Receipts")
	require.True(t, ok)
	assert.Equal(t, mail.LabelID("Label_1"), l.ID)

	_, ok = dir.Resolve("receipts")
	assert.False(t, ok, "lookup is by exact name")

	_, ok = dir.Resolve("Takeaway")
	assert.False(t, ok)

	assert.Equal(t, []string{"INBOX", "Receipts"}, dir.Names())
	assert.Equal(t, []string{"Takeaway"}, dir.Missing("INBOX", "Takeaway"))
}

func TestDuplicateNamesFirstWins(t *testing.T) {
	backend := mailtest.New(
		mail.Label{ID: "Label_1", Name: "Shipping"},
		mail.Label{ID: "Label_2", Name: "Shipping"},
	)
	dir, err := Load(context.Background(), backend, slogDiscard())
	require.NoError(t, err)
	l, ok := dir.Resolve("Shipping")
	require.True(t, ok)
	assert.Equal(t, mail.LabelID("Label_1"), l.ID)
	assert.Equal(t, 1, dir.Len())
}

func TestRefresh(t *testing.T) {
	backend := mailtest.New(mail.Label{ID: "INBOX", Name: "INBOX", System: true})
	dir, err := Load(context.Background(), backend, slogDiscard())
	require.NoError(t, err)
	_, ok := dir.Resolve("Takeaway")
	require.False(t, ok)

	// The directory does not notice new labels until asked.
	backend2 := mailtest.New(
		mail.Label{ID: "INBOX", Name: "INBOX", System: true},
		mail.Label{ID: "Label_9", Name: "Takeaway"},
	)
	dir.src = backend2
	_, ok = dir.Resolve("Takeaway")
	require.False(t, ok)

	require.NoError(t, dir.Refresh(context.Background()))
	_, ok = dir.Resolve("Takeaway")
	assert.True(t, ok)

	backend2.LabelsErr = errors.New("unavailable")
	require.Error(t, dir.Refresh(context.Background()))
	_, ok = dir.Resolve("Takeaway")
	assert.True(t, ok, "failed refresh keeps the previous snapshot")
}

func TestLoadError(t *testing.T) {
	backend := mailtest.New()
	backend.LabelsErr = errors.New("boom")
	_, err := Load(context.Background(), backend, slogDiscard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list labels")
}
