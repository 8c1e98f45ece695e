package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshsymonds/mailsort/internal/mail"
)

func TestHTMLStripsMarkup(t *testing.T) {
	got := HTML{}.Plaintext(`<html><body><p>Your package is <b>on the way</b></p></body></html>`)
	assert.Contains(t, got, "Your package is on the way")
	assert.NotContains(t, got, "<")
}

func TestHTMLPlainPassthrough(t *testing.T) {
	got := HTML{}.Plaintext("  just text  ")
	assert.Equal(t, "just text", got)
}

func TestPromptText(t *testing.T) {
	msg := mail.Message{Subject: "Your order has shipped!", Body: "<p>Tracking 123</p>"}
	got := PromptText(Func(strings.ToUpper), msg)
	assert.Equal(t, "Your order has shipped!\n\n <P>TRACKING 123</P>", got)
}
