package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
)

// Strategy is one way of finding an element. Filter, when set, narrows the
// matches of Query; strategies are tried in order until one yields a
// visible, enabled element.
type Strategy struct {
	Name   string
	Query  browser.Query
	Filter func(browser.Element) bool
}

// Select returns the first interactable element among els accepted by s
func (s Strategy) Select(els []browser.Element) (browser.Element, bool) {
	for _, el := range els {
		if !el.Interactable() {
			continue
		}
		if s.Filter == nil || s.Filter(el) {
			return el, true
		}
	}
	return browser.Element{}, false
}

// CSSStrategies turns selectors into strategies, in order
func CSSStrategies(selectors ...string) []Strategy {
	out := make([]Strategy, len(selectors))
	for i, sel := range selectors {
		out[i] = Strategy{Name: sel, Query: browser.CSS(sel)}
	}
	return out
}

// FindFirst tries each strategy once against the current frame
func FindFirst(ctx context.Context, page browser.Page, strategies []Strategy) (browser.Element, Strategy, error) {
	for _, s := range strategies {
		els, err := page.FindAll(ctx, s.Query)
		if err != nil {
			if errors.Is(err, browser.ErrSessionDead) {
				return browser.Element{}, s, err
			}
			continue
		}
		if el, ok := s.Select(els); ok {
			return el, s, nil
		}
	}
	return browser.Element{}, Strategy{}, ErrElementNotFound
}

// Locate waits up to perStrategy for each strategy in turn
func Locate(ctx context.Context, page browser.Page, clock browser.Clock, strategies []Strategy, perStrategy, interval time.Duration) (browser.Element, Strategy, error) {
	for _, s := range strategies {
		var found browser.Element
		err := browser.Poll(ctx, clock, perStrategy, interval, func(ctx context.Context) (bool, error) {
			els, err := page.FindAll(ctx, s.Query)
			if err != nil {
				if errors.Is(err, browser.ErrSessionDead) {
					return false, err
				}
				return false, nil
			}
			el, ok := s.Select(els)
			found = el
			return ok, nil
		})
		switch {
		case err == nil:
			return found, s, nil
		case errors.Is(err, browser.ErrWaitTimeout):
			continue
		default:
			return browser.Element{}, s, err
		}
	}
	return browser.Element{}, Strategy{}, ErrElementNotFound
}

var (
	attrSelectorRe = regexp.MustCompile(`\[\s*([\w-]+)\s*[*$^~|]?=\s*["']?([^"'\]]+)["']?\s*\]`)
	idSelectorRe   = regexp.MustCompile(`#([\w-]+)`)
)

// DeriveFallback turns a CSS selector into an attribute-contains query over
// inputs and selects, keeping only the stable tail of generated ids.
func DeriveFallback(selector string) (browser.Query, bool) {
	if m := attrSelectorRe.FindStringSubmatch(selector); m != nil {
		return browser.AttrContains(m[1], m[2], "input", "select"), true
	}
	if m := idSelectorRe.FindStringSubmatch(selector); m != nil {
		return browser.AttrContains("id", stableIDTail(m[1]), "input", "select"), true
	}
	return browser.Query{}, false
}

// stableIDTail drops the positional naming-container prefix of a generated id
func stableIDTail(id string) string {
	const container = "FormView1_"
	for i := len(id) - len(container); i >= 0; i-- {
		if id[i:i+len(container)] == container {
			return id[i:]
		}
	}
	return id
}

// FieldStrategies returns the selectors of a field followed by their derived
// attribute-contains fallbacks
func FieldStrategies(selectors []string) []Strategy {
	strategies := CSSStrategies(selectors...)
	seen := make(map[string]bool)
	for _, sel := range selectors {
		q, ok := DeriveFallback(sel)
		if !ok {
			continue
		}
		key := q.XPath()
		if seen[key] {
			continue
		}
		seen[key] = true
		strategies = append(strategies, Strategy{Name: fmt.Sprintf("derived %s", q), Query: q})
	}
	return strategies
}
