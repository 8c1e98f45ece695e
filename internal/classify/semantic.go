package classify

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/joshsymonds/mailsort/internal/llm"
	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/textnorm"
)

// Template is a classification prompt declaring exactly one boolean output key.
type Template struct {
	Name         string
	Key          string
	Instructions string
}

// Semantic classifies by prompting a generative backend.
type Semantic struct {
	tmpl Template
	gen  llm.Generator
	norm textnorm.Normalizer
}

func NewSemantic(tmpl Template, gen llm.Generator, norm textnorm.Normalizer) *Semantic {
	if norm == nil {
		norm = textnorm.HTML{}
	}
	return &Semantic{tmpl: tmpl, gen: gen, norm: norm}
}

func (s *Semantic) Name() string { return s.tmpl.Name }

// Key is the JSON field this classifier reads.
func (s *Semantic) Key() string { return s.tmpl.Key }

// Prompt renders the full prompt sent for msg.
func (s *Semantic) Prompt(msg mail.Message) string {
	return s.tmpl.Instructions + "\ne-mail:\n" + textnorm.PromptText(s.norm, msg)
}

func (s *Semantic) Classify(ctx context.Context, msg mail.Message) (bool, error) {
	raw, err := s.gen.GenerateJSON(ctx, s.Prompt(msg), s.tmpl.Key)
	if err != nil {
		return false, &unavailableError{classifier: s.tmpl.Name, err: err}
	}
	return ParseVerdict(s.tmpl.Name, s.tmpl.Key, raw)
}

// ParseVerdict reads key from a JSON object reply. Anything other than an object holding
// key as a boolean is a *ContractError. Other keys are ignored.
func ParseVerdict(classifier, key, raw string) (bool, error) {
	fail := func(reason string) (bool, error) {
		return false, &ContractError{Classifier: classifier, Key: key, Reason: reason, Raw: raw}
	}
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&fields); err != nil {
		return fail("response is not a JSON object")
	}
	if dec.More() {
		return fail("trailing data after JSON object")
	}
	if fields == nil {
		return fail("response is not a JSON object")
	}
	value, ok := fields[key]
	if !ok {
		return fail("key missing")
	}
	var verdict bool
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return fail("value is null")
	}
	if err := json.Unmarshal(value, &verdict); err != nil {
		return fail("value is not a boolean")
	}
	return verdict, nil
}
