// Package render writes the per-alert HTML detail artifact that push
// notifications link to, and cleans up artifacts whose alert is gone.
package render

import (
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/noaa-alert-relay/internal/config"
	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
)

//go:embed detail.html.tmpl
var detailTemplate string

// expiresLayout is the human-readable expiry format shown on the page.
const expiresLayout = "2006-01-02 15:04:05"

// Renderer writes detail pages keyed by alert ID into the output directory.
type Renderer struct {
	dir    string
	tmpl   *template.Template
	opts   config.TemplateOptions
	logger *slog.Logger
}

// templateData is the contract between the pipeline and the detail template.
type templateData struct {
	Detail       domain.Detail
	Expires      string
	ExpiresEpoch int64
	AlertURL     string
	EventClass   string
	Options      config.TemplateOptions
}

// New creates a Renderer, creating the output directory if needed.
func New(dir string, opts config.TemplateOptions, logger *slog.Logger) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	tmpl, err := template.New("detail").Parse(detailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse detail template: %w", err)
	}
	return &Renderer{dir: dir, tmpl: tmpl, opts: opts, logger: logger}, nil
}

// Render writes the detail page for one matched alert and returns the
// artifact path. The file is named <alert id>.html.
func (r *Renderer) Render(alert domain.Alert, detail domain.Detail) (string, error) {
	data := templateData{
		Detail:       detail,
		Expires:      time.Unix(alert.ExpiresUTC, 0).UTC().Format(expiresLayout),
		ExpiresEpoch: alert.ExpiresUTC,
		AlertURL:     alert.URL,
		EventClass:   eventClass(detail.Event),
		Options:      r.opts,
	}

	path := filepath.Join(r.dir, alert.ID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create detail page: %w", err)
	}
	defer f.Close()

	if err := r.tmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("render detail page: %w", err)
	}
	return path, nil
}

// RemoveStale deletes rendered pages whose alert ID is no longer stored and
// reports how many were removed. Non-HTML files are left alone.
func (r *Renderer) RemoveStale(liveIDs []string) (int, error) {
	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("read output directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".html") {
			continue
		}
		if live[strings.TrimSuffix(name, ".html")] {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
			r.logger.Warn("failed to remove stale detail page", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// eventClass slugs an event name for the color-coding CSS hook,
// e.g. "Flood Warning" -> "flood-warning".
func eventClass(event string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(event), " ", "-"))
}
