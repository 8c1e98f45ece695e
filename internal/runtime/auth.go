package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
)

// Prompt carries the terminal used for the one-time authorization flow.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// NewGmailService authorizes against Gmail with the modify scope using credentials.json
// in authDir. A token.json from an earlier run is reused; otherwise the user is asked to
// authorize once through p and the token is saved for next time.
func NewGmailService(ctx context.Context, authDir string, p Prompt) (*gmail.Service, error) {
	raw, err := os.ReadFile(filepath.Join(authDir, credentialsFile)) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read client credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(raw, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse client credentials: %w", err)
	}

	tokPath := filepath.Join(authDir, tokenFile)
	tok, err := tokenFromFile(tokPath)
	if errors.Is(err, os.ErrNotExist) {
		tok, err = tokenFromPrompt(ctx, cfg, p)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokPath, tok); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func tokenFromPrompt(ctx context.Context, cfg *oauth2.Config, p Prompt) (*oauth2.Token, error) {
	if p.In == nil || p.Out == nil {
		return nil, errors.New("no saved token and no terminal to authorize on")
	}
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(p.Out, "Open this link in your browser and paste the authorization code:\n%s\n> ", authURL)
	code, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create auth dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return nil
}
