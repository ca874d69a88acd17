// Package templates loads and indexes the parsing templates used to turn
// raw neighbor-table command output into records.
package templates

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/topocrawl/topocrawl/internal/textfsm"
)

// BuiltinTemplates contains the default neighbor-table templates embedded
// into the binary, so a deployment works without an external template
// directory. A *.textfsm file holds a state machine definition and a *.yaml
// file with the same base name holds its regex fallback.
//
//go:embed builtin/*.textfsm builtin/*.yaml
var BuiltinTemplates embed.FS

var (
	// ErrNoTemplates means not a single usable template could be loaded.
	// This is the only load failure that is fatal at startup.
	ErrNoTemplates = errors.New("no parsing templates loaded")

	// ErrUnknownCommand means no loaded template covers the command.
	ErrUnknownCommand = errors.New("no template for command")
)

// Entry pairs the state machine template for one command with its optional
// regex fallback. Either side may be nil, never both.
type Entry struct {
	Slug     string
	Machine  *textfsm.Template
	Fallback *RegexTemplate
}

// Registry holds the loaded templates keyed by command slug.
type Registry struct {
	logger *slog.Logger

	// mu protects entries
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty template registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		entries: make(map[string]*Entry),
	}
}

// Load populates the registry from the embedded defaults and then, when dir
// is non-empty, from *.textfsm and *.yaml files directly under dir. Directory
// templates override embedded ones with the same base name.
//
// A malformed template file is logged and skipped so one bad file cannot take
// down the rest. Load fails only when nothing at all could be loaded.
func (r *Registry) Load(ctx context.Context, dir string) error {
	builtin, err := fs.Sub(BuiltinTemplates, "builtin")
	if err != nil {
		return fmt.Errorf("open embedded templates: %w", err)
	}
	r.loadFS(ctx, builtin, "builtin")

	if dir != "" {
		r.loadFS(ctx, os.DirFS(dir), dir)
	}

	if r.Len() == 0 {
		return ErrNoTemplates
	}
	return nil
}

// loadFS loads every template file at the root of fsys. source only labels
// log lines.
func (r *Registry) loadFS(ctx context.Context, fsys fs.FS, source string) {
	machines, err := fs.Glob(fsys, "*.textfsm")
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to list state machine templates",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	}
	for _, name := range machines {
		slug := strings.TrimSuffix(name, ".textfsm")
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to read template file",
				slog.String("file", name),
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			continue
		}

		tmpl, err := textfsm.ParseTemplate(slug, string(data))
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed state machine template",
				slog.String("file", name),
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			continue
		}

		r.entry(slug).Machine = tmpl
		r.logger.DebugContext(ctx, "Loaded state machine template",
			slog.String("command", slug),
			slog.String("source", source),
		)
	}

	fallbacks, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to list fallback templates",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	}
	for _, name := range fallbacks {
		slug := strings.TrimSuffix(name, ".yaml")
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to read template file",
				slog.String("file", name),
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			continue
		}

		fallback, err := ParseRegexTemplate(slug, data)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed fallback template",
				slog.String("file", name),
				slog.String("source", source),
				slog.String("error", err.Error()),
			)
			continue
		}

		r.entry(slug).Fallback = fallback
		r.logger.DebugContext(ctx, "Loaded fallback template",
			slog.String("command", slug),
			slog.String("source", source),
		)
	}
}

// entry returns the entry for slug, creating it when absent.
func (r *Registry) entry(slug string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[slug]
	if !ok {
		e = &Entry{Slug: slug}
		r.entries[slug] = e
	}
	return e
}

// Len returns the number of commands with at least one loaded template.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Lookup returns the entry covering command, matching by slug.
func (r *Registry) Lookup(command string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Slugify(command)]
	return e, ok
}

// Entries returns all loaded entries ordered by slug.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Parse runs the template for command over output. The state machine is
// authoritative; the regex fallback only runs when the machine yields zero
// records. Unmatched output is not an error, the caller gets an empty slice.
func (r *Registry) Parse(command, output string) ([]textfsm.Record, error) {
	entry, ok := r.Lookup(command)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	var records []textfsm.Record
	if entry.Machine != nil {
		records = entry.Machine.ParseText(output)
	}
	if len(records) == 0 && entry.Fallback != nil {
		records = entry.Fallback.Parse(output)
	}
	return records, nil
}

// Slugify normalizes a command line into the template base name it maps to.
// "show cdp neighbors detail" becomes "show_cdp_neighbors_detail".
func Slugify(command string) string {
	var b strings.Builder
	b.Grow(len(command))
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(command)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
