package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/models"
)

const gridWait = 15 * time.Second

var (
	priceCleanRe    = regexp.MustCompile(`[^\d,]`)
	quantityCleanRe = regexp.MustCompile(`\D`)
)

// ParsePrice reads a BRL amount such as "R$ 1.234,56"; unreadable input is 0
func ParsePrice(text string) float64 {
	cleaned := priceCleanRe.ReplaceAllString(strings.ReplaceAll(text, "R$", ""), "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if strings.Count(cleaned, ".") > 1 {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseQuantity keeps the digits of text; unreadable input is 0
func ParseQuantity(text string) int {
	v, err := strconv.Atoi(quantityCleanRe.ReplaceAllString(text, ""))
	if err != nil {
		return 0
	}
	return v
}

// cellText prefers the first matching child with text, then the cell text
func cellText(cell *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(cell.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return strings.TrimSpace(cell.Text())
}

func gridRowsSelector(grid string) string {
	return fmt.Sprintf("#%s tr.gridview-row, #%s tr.gridview-alt-row", grid, grid)
}

// ParseStockRows reads the vaccine grid. Rows with fewer than seven cells
// are headers, pagers or footers and are skipped.
func ParseStockRows(html string) ([]models.StockItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	var items []models.StockItem
	doc.Find(gridRowsSelector(SelectorGrid)).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 7 {
			return
		}
		name := cellText(cells.Eq(0), "span")
		if name == "" {
			name = "Nome não encontrado"
		}
		current := ParseQuantity(cellText(cells.Eq(4)))
		items = append(items, models.StockItem{
			Name:           name,
			Laboratory:     cellText(cells.Eq(1)),
			PurchasePrice:  ParsePrice(cellText(cells.Eq(2))),
			SalePrice:      ParsePrice(cellText(cells.Eq(3), "span")),
			CurrentStock:   current,
			AvailableStock: ParseQuantity(cellText(cells.Eq(5), "span")),
			MinStock:       ParseQuantity(cellText(cells.Eq(6), "span")),
		})
	})
	return items, nil
}

// StockExtractor reads the paginated vaccine stock grid
type StockExtractor struct {
	portal *Portal
	nav    *Navigator
	auth   *Authenticator
}

// NewStockExtractor creates a stock extractor on one portal session
func NewStockExtractor(portal *Portal, auth *Authenticator) *StockExtractor {
	return &StockExtractor{portal: portal, nav: NewNavigator(portal, auth), auth: auth}
}

// Extract returns the distinct stock rows across all pages
func (e *StockExtractor) Extract(ctx context.Context) ([]models.StockItem, error) {
	p := e.portal
	if err := e.auth.EnsureLogin(ctx); err != nil {
		return nil, err
	}
	if err := e.nav.Open(ctx, p.Config.Portal.StockPath); err != nil {
		return nil, err
	}
	if err := p.waitPresent(ctx, browser.ID(SelectorGrid), gridWait); err != nil {
		return nil, wrap("extract stock", "wait grid", p.location(ctx), ErrContentNotLoaded, SelectorGrid)
	}

	pager := NewPager(p, SelectorGrid, SelectorPagerTarget)
	limits := PageLimits{MaxPages: p.Config.Sync.StockMaxPages, StallLimit: p.Config.Sync.StallLimit}
	items, err := Collect(ctx, p.Logger, pager, limits, e.readPage, models.StockItem.Key)
	if err != nil {
		return items, wrap("extract stock", "paginate", p.location(ctx), err, "")
	}
	p.Logger.WithField("items", len(items)).Info("Stock extracted")
	return items, nil
}

func (e *StockExtractor) readPage(ctx context.Context) ([]models.StockItem, error) {
	html, err := e.portal.Page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return ParseStockRows(html)
}
