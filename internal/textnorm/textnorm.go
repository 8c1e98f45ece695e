// Package textnorm turns message markup into the plain text fed to prompts.
package textnorm

import (
	"strings"

	"github.com/k3a/html2text"

	"github.com/joshsymonds/mailsort/internal/mail"
)

// Normalizer converts a raw message body to plain text. Implementations are pure.
type Normalizer interface {
	Plaintext(body string) string
}

// HTML converts markup with html2text. Plain-text bodies pass through with entities decoded.
type HTML struct{}

func (HTML) Plaintext(body string) string {
	return strings.TrimSpace(html2text.HTML2Text(body))
}

// Func adapts a plain function to Normalizer.
type Func func(string) string

func (f Func) Plaintext(body string) string { return f(body) }

// PromptText renders a message as "subject\n\n plaintext", the form appended to every
// classification prompt.
func PromptText(n Normalizer, msg mail.Message) string {
	return msg.Subject + "\n\n " + n.Plaintext(msg.Body)
}
