package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/textnorm"
)

// fakeGenerator answers by JSON key and records every prompt it receives.
type fakeGenerator struct {
	replies map[string]string
	err     error
	calls   map[string]int
	prompts []string
}

func newFakeGenerator(replies map[string]string) *fakeGenerator {
	return &fakeGenerator{replies: replies, calls: map[string]int{}}
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt, key string) (string, error) {
	_ = ctx
	f.calls[key]++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	reply, ok := f.replies[key]
	if !ok {
		return `{"` + key + `": false}`, nil
	}
	return reply, nil
}

func (f *fakeGenerator) Name() string { return "fake" }

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    bool
		wantErr bool
	}{
		{name: "true", raw: `{"is_spam": true}`, want: true},
		{name: "false", raw: `{"is_spam": false}`, want: false},
		{name: "extra-keys", raw: `{"reason": "x", "is_spam": true}`, want: true},
		{name: "whitespace", raw: "\n {\"is_spam\": true} \n", want: true},
		{name: "not-json", raw: `not valid json`, wantErr: true},
		{name: "missing-key", raw: `{"spam": true}`, wantErr: true},
		{name: "string-value", raw: `{"is_spam": "true"}`, wantErr: true},
		{name: "null-value", raw: `{"is_spam": null}`, wantErr: true},
		{name: "array", raw: `[true]`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "trailing", raw: `{"is_spam": true} extra`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseVerdict(NameSpam, "is_spam", tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrContract), "expected ErrContract, got %v", err)
				var ce *ContractError
				require.True(t, errors.As(err, &ce))
				assert.Equal(t, "is_spam", ce.Key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSemanticPromptShape(t *testing.T) {
	gen := newFakeGenerator(map[string]string{"is_shipping_update": `{"is_shipping_update": true}`})
	s := NewSemantic(ShippingUpdateTemplate, gen, textnorm.HTML{})
	msg := mail.Message{Subject: "Your order has shipped!", Body: "<p>Your package is on the way</p>"}

	ok, err := s.Classify(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, ShippingUpdateTemplate.Instructions+"\ne-mail:\nYour order has shipped!\n\n "))
	assert.Contains(t, prompt, "Your package is on the way")
	assert.NotContains(t, prompt, "<p>")
}

func TestSemanticInvalidJSONIsHardFailure(t *testing.T) {
	gen := newFakeGenerator(map[string]string{"is_spam": "not valid json"})
	s := NewSemantic(SpamTemplate, gen, nil)

	ok, err := s.Classify(context.Background(), mail.Message{Subject: "hi"})
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrContract)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestSemanticBackendFailureIsTransient(t *testing.T) {
	gen := newFakeGenerator(nil)
	gen.err = context.DeadlineExceeded
	s := NewSemantic(SpamTemplate, gen, nil)

	_, err := s.Classify(context.Background(), mail.Message{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrContract)
}

func TestSocialMedia(t *testing.T) {
	c := SocialMedia()
	for _, from := range []string{"notify@facebook.com", "no-reply@linkedin.com", "noreply@medium.com", "digest@substack.com"} {
		ok, err := c.Classify(context.Background(), mail.Message{From: from})
		require.NoError(t, err)
		assert.True(t, ok, from)
	}
	ok, err := c.Classify(context.Background(), mail.Message{From: "shop@store.com"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLinkedInSenderIsStricterThanSubstring(t *testing.T) {
	c := LinkedInSender()
	ok, _ := c.Classify(context.Background(), mail.Message{From: "no-reply@linkedin.com"})
	assert.True(t, ok)
	ok, _ = c.Classify(context.Background(), mail.Message{From: "linkedin@news.example.com"})
	assert.False(t, ok)
}

func TestReceiptNeverInvokedWithoutPDF(t *testing.T) {
	gen := newFakeGenerator(map[string]string{"is_receipt": `{"is_receipt": true}`})
	set := NewSet(gen, textnorm.HTML{})
	receipt, ok := set.Get(NameReceipt)
	require.True(t, ok)

	verdict, err := receipt.Classify(context.Background(), mail.Message{
		Attachments: []mail.Attachment{{MIMEType: "image/png"}},
	})
	require.NoError(t, err)
	assert.False(t, verdict)
	assert.Zero(t, gen.calls["is_receipt"])

	verdict, err = receipt.Classify(context.Background(), mail.Message{
		Attachments: []mail.Attachment{{MIMEType: "application/pdf", Filename: "invoice.pdf"}},
	})
	require.NoError(t, err)
	assert.True(t, verdict)
	assert.Equal(t, 1, gen.calls["is_receipt"])
}

func TestLinkedInNoise(t *testing.T) {
	tests := []struct {
		name      string
		from      string
		relevant  string
		want      bool
		wantCalls int
	}{
		{name: "not-relevant", from: "no-reply@linkedin.com", relevant: `{"relevant": false}`, want: true, wantCalls: 1},
		{name: "relevant", from: "messages-noreply@linkedin.com", relevant: `{"relevant": true}`, want: false, wantCalls: 1},
		{name: "other-sender", from: "notify@facebook.com", relevant: `{"relevant": false}`, want: false, wantCalls: 0},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			gen := newFakeGenerator(map[string]string{"relevant": tc.relevant})
			noise, ok := NewSet(gen, nil).Get(NameLinkedInNoise)
			require.True(t, ok)
			got, err := noise.Classify(context.Background(), mail.Message{From: tc.from})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantCalls, gen.calls["relevant"])
		})
	}
}

func TestCombinators(t *testing.T) {
	yes := Func("yes", func(mail.Message) bool { return true })
	no := Func("no", func(mail.Message) bool { return false })
	boom := errClassifier{err: errors.New("boom")}
	ctx := context.Background()

	got, err := All("both", yes, no).Classify(ctx, mail.Message{})
	require.NoError(t, err)
	assert.False(t, got)

	got, err = All("short", no, boom).Classify(ctx, mail.Message{})
	require.NoError(t, err, "All must stop before the failing classifier")
	assert.False(t, got)

	_, err = All("fail", yes, boom).Classify(ctx, mail.Message{})
	require.Error(t, err)

	got, err = All("empty").Classify(ctx, mail.Message{})
	require.NoError(t, err)
	assert.False(t, got)

	got, err = Not(no).Classify(ctx, mail.Message{})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Not(boom).Classify(ctx, mail.Message{})
	require.Error(t, err)
	assert.False(t, got)

	assert.Equal(t, "not_no", Not(no).Name())
}

type errClassifier struct{ err error }

func (e errClassifier) Name() string { return "err" }

func (e errClassifier) Classify(context.Context, mail.Message) (bool, error) { return false, e.err }

func TestSetRequireAndInstrument(t *testing.T) {
	set := NewSet(newFakeGenerator(nil), nil)
	_, err := set.Require(NameSpam, "nope", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	cs, err := set.Require(NameSpam, NameTakeaway)
	require.NoError(t, err)
	assert.Len(t, cs, 2)

	var seen []string
	obs := ObserverFunc(func(name string, verdict bool, err error, elapsed time.Duration) {
		_ = verdict
		_ = err
		_ = elapsed
		seen = append(seen, name)
	})
	inst := NewObservedSet(newFakeGenerator(nil), nil, obs)
	c, _ := inst.Get(NameSocialMedia)
	_, _ = c.Classify(context.Background(), mail.Message{From: "x@reddit.com"})
	assert.Equal(t, []string{NameSocialMedia}, seen)
	assert.Equal(t, set.Names(), inst.Names())
}

func TestObservedSetReportsComposedClassifiers(t *testing.T) {
	type call struct {
		name    string
		verdict bool
	}
	var seen []call
	obs := ObserverFunc(func(name string, verdict bool, err error, elapsed time.Duration) {
		_ = err
		_ = elapsed
		seen = append(seen, call{name, verdict})
	})
	gen := newFakeGenerator(map[string]string{"relevant": `{"relevant": true}`, "is_receipt": `{"is_receipt": true}`})
	set := NewObservedSet(gen, nil, obs)

	noise := set.MustGet(NameLinkedInNoise)
	got, err := noise.Classify(context.Background(), mail.Message{From: "no-reply@linkedin.com"})
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, []call{
		{NameLinkedInSender, true},
		{NameRelevant, true},
		{NameLinkedInNoise, false},
	}, seen)

	seen = nil
	got, err = set.MustGet(NameReceipt).Classify(context.Background(), mail.Message{
		Attachments: []mail.Attachment{{MIMEType: "application/pdf"}},
	})
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, []call{{NameHasPDF, true}, {NameReceipt, true}}, seen)
}

func TestTemplatesDeclareDistinctKeys(t *testing.T) {
	keys := map[string]bool{}
	for _, tmpl := range Templates() {
		assert.NotEmpty(t, tmpl.Key)
		assert.Contains(t, tmpl.Instructions, `"`+tmpl.Key+`"`)
		assert.False(t, keys[tmpl.Key], "duplicate key %s", tmpl.Key)
		keys[tmpl.Key] = true
	}
	assert.Len(t, keys, 6)
}
