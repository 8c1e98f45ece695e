package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const DefaultOllamaModel = "gemma3:12b"

// Ollama runs prompts against a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama connects to host, or to OLLAMA_HOST when host is empty.
func NewOllama(host, model string) (*Ollama, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	var client *api.Client
	if strings.TrimSpace(host) == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
		client = c
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
		}
		client = api.NewClient(base, http.DefaultClient)
	}
	return &Ollama{client: client, model: model}, nil
}

func (o *Ollama) Name() string { return "ollama:" + o.model }

// GenerateJSON issues a non-streaming generate call with format=json. Ollama has no
// per-key schema in this mode, so key only appears in errors.
func (o *Ollama) GenerateJSON(ctx context.Context, prompt, key string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  &stream,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"num_ctx": ContextWindow},
	}
	var out strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate %s: %w", key, err)
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("ollama generate %s: %w", key, ErrEmptyResponse)
	}
	return out.String(), nil
}
