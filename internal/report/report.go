// Package report replays the rule chain over the current Inbox without mutating it and
// summarizes where messages would go.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joshsymonds/mailsort/internal/executor"
	"github.com/joshsymonds/mailsort/internal/ingest"
	"github.com/joshsymonds/mailsort/internal/labels"
	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/triage"
)

const (
	previewSubjectDisplayLimit = 60
	unmatchedRule              = "(none)"
)

// Options controls the replay.
type Options struct {
	TopN     int
	PageSize int
	Limit    int // stop after this many messages; zero means the whole Inbox
}

// Service replays a chain against a backend. The backend is only read.
type Service struct {
	Backend mail.Backend
	Chain   ingest.Evaluator
	Names   triage.LabelNames
	Logger  *slog.Logger
	Clock   func() time.Time
}

func NewService(backend mail.Backend, chain ingest.Evaluator, names triage.LabelNames, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Backend: backend,
		Chain:   chain,
		Names:   names,
		Logger:  logger,
		Clock:   time.Now,
	}
}

// Report summarizes one replay.
type Report struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	Total         int               `json:"total"`
	Rules         map[string]int    `json:"rules"`
	Destinations  []DestinationStat `json:"destinations"`
	MissingLabels []string          `json:"missing_labels"`
	Failures      []Failure         `json:"failures"`
}

// DestinationStat ranks sender domains per destination label.
type DestinationStat struct {
	Label      string       `json:"label"`
	Count      int          `json:"count"`
	MarkRead   int          `json:"mark_read"`
	TopSenders []SenderStat `json:"top_senders"`
}

// SenderStat counts messages from one sender domain.
type SenderStat struct {
	Domain         string `json:"domain"`
	Count          int    `json:"count"`
	PreviewSubject string `json:"preview_subject"`
}

// Failure is a message the chain could not decide.
type Failure struct {
	Message string `json:"message"`
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

// Run fetches every Inbox message, evaluates the chain and resolves the resulting
// actions without applying them.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	topN := opts.TopN
	if topN <= 0 {
		topN = 10
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 500
	}

	dir, err := labels.Load(ctx, s.Backend, s.Logger)
	if err != nil {
		return Report{}, err
	}
	inbox, ok := dir.Resolve(s.Names.Inbox)
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ingest.ErrInboxMissing, s.Names.Inbox)
	}
	s.Logger.InfoContext(ctx, "running report", slog.String("inbox", string(inbox.ID)))

	ids, err := s.listInbox(ctx, inbox.ID, pageSize, opts.Limit)
	if err != nil {
		return Report{}, err
	}

	exec := executor.Executor{
		Labels: dir,
		Inbox:  s.Names.Inbox,
		Trash:  s.Names.Trash,
		DryRun: true,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	rep := Report{GeneratedAt: s.Clock(), Total: len(ids), Rules: map[string]int{}}
	dests := map[string]*destination{}
	for _, id := range ids {
		msg, err := s.Backend.Get(ctx, id, mail.GetOptions{})
		if err != nil {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			rep.Failures = append(rep.Failures, Failure{Message: string(id), Kind: ingest.Kind(err), Error: err.Error()})
			continue
		}
		decision, err := s.Chain.Evaluate(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			rep.Failures = append(rep.Failures, Failure{
				Message: string(id),
				Subject: msg.Subject,
				Kind:    ingest.Kind(err),
				Error:   err.Error(),
			})
			continue
		}
		rule := decision.Rule
		if rule == "" {
			rule = unmatchedRule
		}
		rep.Rules[rule]++

		res, err := exec.Apply(ctx, msg, decision.Action)
		if err != nil {
			return Report{}, fmt.Errorf("resolve action for %s: %w", id, err)
		}
		for _, name := range res.Missing {
			rep.MissingLabels = appendIfMissing(rep.MissingLabels, name)
		}
		if res.Status != executor.StatusDryRun {
			continue
		}
		d := dests[res.Action.To]
		if d == nil {
			d = &destination{label: res.Action.To, senders: map[string]*SenderStat{}}
			dests[res.Action.To] = d
		}
		d.add(msg, res.Action.MarkRead)
	}
	sort.Strings(rep.MissingLabels)
	rep.Destinations = rankDestinations(dests, topN)
	return rep, nil
}

func (s *Service) listInbox(ctx context.Context, inbox mail.LabelID, pageSize, limit int) ([]mail.MessageID, error) {
	var (
		ids   []mail.MessageID
		token string
	)
	for {
		page, err := s.Backend.List(ctx, inbox, token, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		ids = append(ids, page.IDs...)
		if limit > 0 && len(ids) >= limit {
			return ids[:limit], nil
		}
		if page.NextPageToken == "" {
			return ids, nil
		}
		token = page.NextPageToken
	}
}

type destination struct {
	label    string
	count    int
	markRead int
	senders  map[string]*SenderStat
}

func (d *destination) add(msg mail.Message, markRead bool) {
	d.count++
	if markRead {
		d.markRead++
	}
	domain := mail.DomainOf(msg.From)
	if domain == "" {
		return
	}
	st := d.senders[domain]
	if st == nil {
		st = &SenderStat{Domain: domain}
		d.senders[domain] = st
	}
	st.Count++
	if st.PreviewSubject == "" {
		st.PreviewSubject = msg.Subject
	}
}

func rankDestinations(m map[string]*destination, topN int) []DestinationStat {
	out := make([]DestinationStat, 0, len(m))
	for _, d := range m {
		out = append(out, DestinationStat{
			Label:      d.label,
			Count:      d.count,
			MarkRead:   d.markRead,
			TopSenders: rankSenders(d.senders, topN),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Label < out[j].Label
		}
		return out[i].Count > out[j].Count
	})
	return out
}

func rankSenders(m map[string]*SenderStat, topN int) []SenderStat {
	slice := make([]SenderStat, 0, len(m))
	for _, st := range m {
		slice = append(slice, *st)
	}
	sort.Slice(slice, func(i, j int) bool {
		if slice[i].Count == slice[j].Count {
			return slice[i].Domain < slice[j].Domain
		}
		return slice[i].Count > slice[j].Count
	})
	if topN < len(slice) {
		slice = slice[:topN]
	}
	return slice
}

// PrintHuman writes a readable report to w.
func PrintHuman(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "mailsort report (%d inbox messages)\n", rep.Total)
	if len(rep.Rules) > 0 {
		builder.WriteString("\nRules:\n")
		names := make([]string, 0, len(rep.Rules))
		for name := range rep.Rules {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&builder, "  %-30s %4d\n", name, rep.Rules[name])
		}
	}
	for _, d := range rep.Destinations {
		fmt.Fprintf(&builder, "\n%s: %d (%d marked read)\n", d.Label, d.Count, d.MarkRead)
		for _, s := range d.TopSenders {
			fmt.Fprintf(
				&builder,
				"  %-30s %4d %s\n",
				s.Domain,
				s.Count,
				truncate(s.PreviewSubject, previewSubjectDisplayLimit),
			)
		}
	}
	if len(rep.MissingLabels) > 0 || len(rep.Failures) > 0 {
		builder.WriteString("\nFindings:\n")
		for _, lbl := range rep.MissingLabels {
			fmt.Fprintf(&builder, "  missing label: %s\n", lbl)
		}
		for _, f := range rep.Failures {
			fmt.Fprintf(&builder, "  %s error: %s %q: %s\n", f.Kind, f.Message, truncate(f.Subject, previewSubjectDisplayLimit), f.Error)
		}
	}
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

// WriteJSON serializes the report to a path below the working directory.
func WriteJSON(rep Report, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	abs := filepath.Join(wd, clean)
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if encodeErr := enc.Encode(rep); encodeErr != nil {
		return fmt.Errorf("encode report: %w", encodeErr)
	}
	return nil
}

// ShouldFail reports whether any of the requested conditions are present.
func (rep Report) ShouldFail(failOn []string) bool {
	flags := map[string]bool{
		"missing-label":    len(rep.MissingLabels) > 0,
		"classifier-error": len(rep.Failures) > 0,
	}
	for _, cond := range failOn {
		cond = strings.TrimSpace(strings.ToLower(cond))
		if cond == "" {
			continue
		}
		if flags[cond] {
			return true
		}
	}
	return false
}

// ParseFailOn splits a comma separated list into canonical tokens.
func ParseFailOn(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// truncate limits s to n runes, ending in an ellipsis when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

func appendIfMissing(slice []string, val string) []string {
	for _, existing := range slice {
		if existing == val {
			return slice
		}
	}
	return append(slice, val)
}
