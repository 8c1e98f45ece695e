package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joshsymonds/mailsort/internal/classify"
	"github.com/joshsymonds/mailsort/internal/config"
	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/runtime"
	"github.com/joshsymonds/mailsort/internal/textnorm"
	"github.com/joshsymonds/mailsort/internal/triage"
)

func main() {
	var id string
	cfg, err := config.Load("mailsort-classify", os.Args[1:], func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "message id to classify (required)")
	})
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err == nil && id == "" {
		err = errors.New("-id is required")
	}
	if err != nil {
		runtime.DefaultLogger().Error("mailsort-classify failed", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, mail.MessageID(id)); err != nil {
		runtime.DefaultLogger().Error("mailsort-classify failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, id mail.MessageID) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := runtime.LoggerFor(cfg)
	if err != nil {
		return err
	}
	backend, closeBackend, err := runtime.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	gen, err := runtime.NewGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	set := classify.NewSet(gen, textnorm.HTML{})
	chain, err := triage.DefaultChain(set, cfg.LabelNames())
	if err != nil {
		return fmt.Errorf("build rule chain: %w", err)
	}

	msg, err := backend.Get(ctx, id, mail.GetOptions{})
	if err != nil {
		return fmt.Errorf("get %s: %w", id, err)
	}
	return explain(ctx, os.Stdout, msg, set, chain)
}

// explain prints every classifier verdict and the action the chain would take.
func explain(ctx context.Context, w io.Writer, msg mail.Message, set classify.Set, chain *triage.Chain) error {
	fmt.Fprintf(w, "%s: %s\n", msg.From, msg.Subject)
	for _, name := range set.Names() {
		verdict, err := set.MustGet(name).Classify(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(w, "  %-20s error: %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "  %-20s %t\n", name, verdict)
	}
	decision, err := chain.Evaluate(ctx, msg)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	order := make([]string, 0, len(chain.Rules()))
	for _, r := range chain.Rules() {
		order = append(order, r.Name)
	}
	rule := decision.Rule
	if rule == "" {
		rule = "(none)"
	}
	_, err = fmt.Fprintf(w, "rules: %s\nrule: %s\naction: %s\n", strings.Join(order, ", "), rule, decision.Action)
	return err
}
