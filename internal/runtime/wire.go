package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joshsymonds/mailsort/internal/config"
	"github.com/joshsymonds/mailsort/internal/llm"
	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/rate"
)

// LoggerFor builds the process logger from cfg, writing to stderr.
func LoggerFor(cfg config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return NewLogger(os.Stderr, level, cfg.Log.Format)
}

// OpenBackend connects the configured mailbox and wraps it in the request limiter.
// The returned close function releases the connection and the limiter.
func OpenBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (mail.Backend, func(), error) {
	var (
		backend mail.Backend
		closers []func()
	)
	switch cfg.Backend {
	case config.BackendGmail:
		svc, err := NewGmailService(ctx, cfg.AuthDir, Prompt{In: os.Stdin, Out: os.Stderr})
		if err != nil {
			return nil, nil, fmt.Errorf("create gmail service: %w", err)
		}
		backend = NewGmailBackend(svc)
	case config.BackendIMAP:
		b, err := DialIMAP(ctx, IMAPOptions{
			Addr:               cfg.IMAP.Addr,
			User:               cfg.IMAP.User,
			Password:           cfg.IMAP.Password,
			StartTLS:           cfg.IMAP.StartTLS,
			InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		backend = b
		closers = append(closers, func() {
			if err := b.Close(); err != nil {
				log.Warn("close imap connection", "error", err)
			}
		})
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.RPS > 0 {
		bucket := rate.NewTokenBucket(cfg.RPS, cfg.RPS)
		backend = mail.Limit(backend, bucket)
		closers = append(closers, bucket.Stop)
	}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return backend, closeAll, nil
}

// NewGenerator builds the configured model client with the per-call timeout applied.
func NewGenerator(ctx context.Context, cfg config.Config) (llm.Generator, error) {
	var (
		gen llm.Generator
		err error
	)
	switch cfg.Model.Provider {
	case config.ProviderOllama:
		gen, err = llm.NewOllama(cfg.Model.Host, cfg.ModelName())
	case config.ProviderGemini:
		gen, err = llm.NewGemini(ctx, cfg.Model.APIKey, cfg.ModelName())
	default:
		err = fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s generator: %w", cfg.Model.Provider, err)
	}
	return llm.WithTimeout(gen, cfg.Model.Timeout.Duration), nil
}
