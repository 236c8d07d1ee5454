package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/sirupsen/logrus"
)

// Diagnostics writes screenshots and page sources of failed steps. An empty
// directory disables it.
type Diagnostics struct {
	dir    string
	logger *logrus.Logger
}

// NewDiagnostics creates a writer rooted at dir
func NewDiagnostics(dir string, logger *logrus.Logger) *Diagnostics {
	return &Diagnostics{dir: dir, logger: logger}
}

// Screenshot saves a PNG of the page as name
func (d *Diagnostics) Screenshot(ctx context.Context, page browser.Page, name string) {
	if d == nil || d.dir == "" {
		return
	}
	buf, err := page.Screenshot(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to capture screenshot")
		return
	}
	d.write(name, buf)
}

// Source saves the current document HTML as name
func (d *Diagnostics) Source(ctx context.Context, page browser.Page, name string) {
	if d == nil || d.dir == "" {
		return
	}
	html, err := page.HTML(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to capture page source")
		return
	}
	d.write(name, []byte(html))
}

func (d *Diagnostics) write(name string, data []byte) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.WithError(err).Warn("Failed to create diagnostics directory")
		return
	}
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.WithError(err).Warn(fmt.Sprintf("Failed to write %s", name))
		return
	}
	d.logger.WithField("path", path).Info("Diagnostics saved")
}
