package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshsymonds/mailsort/internal/classify"
	"github.com/joshsymonds/mailsort/internal/config"
	"github.com/joshsymonds/mailsort/internal/report"
	"github.com/joshsymonds/mailsort/internal/runtime"
	"github.com/joshsymonds/mailsort/internal/textnorm"
	"github.com/joshsymonds/mailsort/internal/triage"
)

type reportFlags struct {
	jsonOut string
	failOn  string
	topN    int
	limit   int
}

var errFailOn = errors.New("report matched -fail-on")

func main() {
	var rf reportFlags
	cfg, err := config.Load("mailsort-report", os.Args[1:], func(fs *flag.FlagSet) {
		fs.StringVar(&rf.jsonOut, "json", "", "write JSON report to path")
		fs.StringVar(&rf.failOn, "fail-on", "", "comma separated: missing-label, classifier-error")
		fs.IntVar(&rf.topN, "top", 10, "senders to list per destination")
		fs.IntVar(&rf.limit, "limit", 0, "inspect at most N Inbox messages (0 = all)")
	})
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		runtime.DefaultLogger().Error("mailsort-report failed", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, rf); err != nil {
		runtime.DefaultLogger().Error("mailsort-report failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, rf reportFlags) error {
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
	chain, err := triage.DefaultChain(classify.NewSet(gen, textnorm.HTML{}), cfg.LabelNames())
	if err != nil {
		return fmt.Errorf("build rule chain: %w", err)
	}

	svc := report.NewService(backend, chain, cfg.LabelNames(), logger)
	rep, err := svc.Run(ctx, report.Options{TopN: rf.topN, PageSize: cfg.PageSize, Limit: rf.limit})
	if err != nil {
		return fmt.Errorf("run report: %w", err)
	}

	if printErr := report.PrintHuman(rep, os.Stdout); printErr != nil {
		return fmt.Errorf("print report: %w", printErr)
	}
	if rf.jsonOut != "" {
		if writeErr := report.WriteJSON(rep, rf.jsonOut); writeErr != nil {
			return fmt.Errorf("write json: %w", writeErr)
		}
	}
	if rep.ShouldFail(report.ParseFailOn(rf.failOn)) {
		return errFailOn
	}
	return nil
}
