package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/sirupsen/logrus"
)

const postBackScript = `(function(target, arg){if (typeof __doPostBack !== 'function') { return false; } __doPostBack(target, arg); return true;})(%s, %s)`

// Pager advances an ASP.NET GridView: first through the framework's
// __doPostBack callback, then through a numbered pager link, then through
// the "next" icon.
type Pager struct {
	portal    *Portal
	grid      string
	target    string
	nextImage string
}

// NewPager creates a pager for the grid with id grid
func NewPager(portal *Portal, grid, target string) *Pager {
	return &Pager{portal: portal, grid: grid, target: target, nextImage: "resultset_next"}
}

// Advance requests page n
func (g *Pager) Advance(ctx context.Context, n int) error {
	p := g.portal
	logger := p.Logger.WithField("page", n)

	if g.postBack(ctx, n) {
		logger.Debug("Page requested by postback")
		return g.settle(ctx)
	}

	if link, ok := g.pagerLink(ctx, n); ok {
		if err := p.click(ctx, link); err == nil {
			logger.Debug("Page requested by pager link")
			return g.settle(ctx)
		}
	}

	els, err := p.Page.FindAll(ctx, browser.AttrContains("src", g.nextImage, "input"))
	if err == nil {
		if next, ok := browser.FirstInteractable(els); ok {
			if err := p.click(ctx, next); err == nil {
				logger.Debug("Page requested by next button")
				return g.settle(ctx)
			}
		}
	}
	return ErrPaginationExhausted
}

func (g *Pager) postBack(ctx context.Context, n int) bool {
	target, _ := json.Marshal(g.target)
	arg, _ := json.Marshal(fmt.Sprintf("Page$%d", n))
	var ok bool
	if err := g.portal.Page.Evaluate(ctx, fmt.Sprintf(postBackScript, target, arg), &ok); err != nil {
		if !errors.Is(err, browser.ErrSessionDead) {
			g.portal.Logger.WithError(err).Debug("Postback unavailable")
		}
		return false
	}
	return ok
}

func (g *Pager) pagerLink(ctx context.Context, n int) (browser.Element, bool) {
	links, err := g.portal.Page.FindAll(ctx, browser.CSS("#"+g.grid+" a"))
	if err != nil {
		return browser.Element{}, false
	}
	arg := fmt.Sprintf("Page$%d", n)
	escaped := fmt.Sprintf("Page%%24%d", n)
	number := strconv.Itoa(n)
	for _, a := range links {
		if !a.Interactable() {
			continue
		}
		if strings.Contains(a.Href, arg) || strings.Contains(a.Href, escaped) ||
			strings.Contains(a.OnClick, arg) || strings.TrimSpace(a.Text) == number {
			return a, true
		}
	}
	return browser.Element{}, false
}

func (g *Pager) settle(ctx context.Context) error {
	p := g.portal
	if err := p.sleep(ctx, p.Config.Sync.PageSettle); err != nil {
		return err
	}
	return p.waitPresent(ctx, browser.CSS("#"+g.grid+" tr"), p.Config.Browser.ImplicitWait)
}

// Advancer requests a given page number
type Advancer interface {
	Advance(ctx context.Context, n int) error
}

// PageLimits bound a paginated extraction
type PageLimits struct {
	MaxPages   int
	StallLimit int
	// Limit stops once this many distinct records were collected; 0 means no limit.
	Limit int
}

// Collect reads page after page, dropping records whose key was already
// seen. A page without new keys counts as a stall; StallLimit consecutive
// stalls, an empty page, MaxPages or a failed advance end the extraction.
func Collect[T any](ctx context.Context, logger *logrus.Logger, pager Advancer, limits PageLimits, read func(ctx context.Context) ([]T, error), key func(T) string) ([]T, error) {
	stallLimit := max(limits.StallLimit, 1)
	seen := make(map[string]struct{})
	var out []T
	stalls := 0

	for page := 1; limits.MaxPages <= 0 || page <= limits.MaxPages; page++ {
		rows, err := read(ctx)
		if err != nil {
			return out, fmt.Errorf("failed to read page %d: %w", page, err)
		}
		if len(rows) == 0 {
			logger.WithField("page", page).Info("Empty page, pagination finished")
			return out, nil
		}

		added := 0
		for _, r := range rows {
			k := key(r)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
			added++
			if limits.Limit > 0 && len(out) >= limits.Limit {
				return out, nil
			}
		}

		logger.WithFields(logrus.Fields{
			"page":  page,
			"rows":  len(rows),
			"added": added,
			"total": len(out),
		}).Debug("Page extracted")

		if added == 0 {
			stalls++
			if stalls >= stallLimit {
				logger.WithField("page", page).Info("No new records on consecutive pages, pagination finished")
				return out, nil
			}
		} else {
			stalls = 0
		}

		if limits.MaxPages > 0 && page == limits.MaxPages {
			break
		}
		if err := pager.Advance(ctx, page+1); err != nil {
			if errors.Is(err, browser.ErrSessionDead) || ctx.Err() != nil {
				return out, err
			}
			logger.WithField("page", page+1).WithError(err).Info("Could not advance, pagination finished")
			return out, nil
		}
	}
	return out, nil
}
