// Package labels resolves configured label names to backend label ids.
package labels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/joshsymonds/mailsort/internal/mail"
)

// Lister is the part of mail.Backend the directory reads from.
type Lister interface {
	ListLabels(ctx context.Context) ([]mail.Label, error)
}

// Directory is a snapshot of the mailbox's labels, keyed by name. It is read once by
// Load and only changes on Refresh.
type Directory struct {
	src Lister
	log *slog.Logger

	mu     sync.RWMutex
	byName map[string]mail.Label
}

// Load reads system and user labels from src.
func Load(ctx context.Context, src Lister, log *slog.Logger) (*Directory, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Directory{src: src, log: log}
	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh re-reads the label list. On failure the previous snapshot is kept.
func (d *Directory) Refresh(ctx context.Context) error {
	list, err := d.src.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	byName := make(map[string]mail.Label, len(list))
	system := 0
	for _, l := range list {
		if prev, dup := byName[l.Name]; dup {
			d.log.Warn("duplicate label name",
				slog.String("name", l.Name),
				slog.String("kept", string(prev.ID)),
				slog.String("ignored", string(l.ID)))
			continue
		}
		byName[l.Name] = l
		if l.System {
			system++
		}
	}
	d.mu.Lock()
	d.byName = byName
	d.mu.Unlock()
	d.log.Info("labels loaded", "system", system, "user", len(byName)-system)
	return nil
}

// Resolve looks up a label by exact name. A missing label is reported as false.
func (d *Directory) Resolve(name string) (mail.Label, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.byName[name]
	return l, ok
}

// Missing returns the names in want that do not resolve, in the order given.
func (d *Directory) Missing(want ...string) []string {
	var out []string
	for _, name := range want {
		if _, ok := d.Resolve(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

// Names returns every label name, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of distinct label names.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName)
}
