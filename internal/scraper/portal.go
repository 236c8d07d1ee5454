// Package scraper drives the GoC patient portal: login, frame navigation,
// form filling and extraction of calendar, stock and patient listings.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/sirupsen/logrus"
)

// Portal bundles the page of one browser session with the settings every
// portal flow needs. It is created per session and never shared.
type Portal struct {
	Page   browser.Page
	Clock  browser.Clock
	Config *config.Config
	Logger *logrus.Logger
	Diag   *Diagnostics
}

// NewPortal binds cfg to page. A nil clock selects the wall clock.
func NewPortal(page browser.Page, cfg *config.Config, clock browser.Clock, logger *logrus.Logger) *Portal {
	if clock == nil {
		clock = browser.RealClock()
	}
	return &Portal{
		Page:   page,
		Clock:  clock,
		Config: cfg,
		Logger: logger,
		Diag:   NewDiagnostics(cfg.Portal.DiagnosticsDir, logger),
	}
}

// URL resolves a portal path against the base URL
func (p *Portal) URL(path string) string {
	return p.Config.Portal.URL(path)
}

func (p *Portal) sleep(ctx context.Context, d time.Duration) error {
	return p.Clock.Sleep(ctx, d)
}

func (p *Portal) waitFor(ctx context.Context, q browser.Query, timeout time.Duration) (browser.Element, error) {
	return browser.WaitFor(ctx, p.Page, p.Clock, q, timeout, p.Config.Browser.PollInterval)
}

func (p *Portal) waitPresent(ctx context.Context, q browser.Query, timeout time.Duration) error {
	return browser.WaitPresent(ctx, p.Page, p.Clock, q, timeout, p.Config.Browser.PollInterval)
}

func (p *Portal) location(ctx context.Context) string {
	url, err := p.Page.Location(ctx)
	if err != nil {
		return ""
	}
	return url
}

// onLoginPage reports whether url is the login surface
func (p *Portal) onLoginPage(url string) bool {
	login := strings.ToLower(strings.TrimLeft(p.Config.Portal.LoginPath, "/"))
	return login != "" && strings.Contains(strings.ToLower(url), login)
}

// click tries a native click and falls back to a script click, which
// ignores overlays
func (p *Portal) click(ctx context.Context, el browser.Element) error {
	_ = p.Page.ScrollIntoView(ctx, el)
	if err := p.Page.Click(ctx, el); err != nil {
		p.Logger.WithFields(logrus.Fields{
			"element": el.Label(),
			"error":   err.Error(),
		}).Debug("Native click failed, using script click")
		return p.Page.ScriptClick(ctx, el)
	}
	return nil
}

// visibleText returns the text of the first visible match with any text
func (p *Portal) visibleText(ctx context.Context, selectors []string) (string, bool) {
	for _, sel := range selectors {
		els, err := p.Page.FindAll(ctx, browser.CSS(sel))
		if err != nil {
			continue
		}
		for _, el := range els {
			if el.Visible && strings.TrimSpace(el.Text) != "" {
				return strings.TrimSpace(el.Text), true
			}
		}
	}
	return "", false
}
