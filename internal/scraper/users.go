package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/utils"
)

// ParseUserRows reads the patient grid. Any row with at least three cells is
// a data row; cells are read from their LabelN span when present.
func ParseUserRows(html string) ([]models.UserRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	var users []models.UserRecord
	doc.Find(SelectorGridAllRows).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 3 {
			return
		}
		cell := func(i int) string {
			if i >= cells.Length() {
				return ""
			}
			return cellText(cells.Eq(i), fmt.Sprintf("span[id*='Label%d']", i+1), "span")
		}
		u := models.UserRecord{
			Name:         cell(0),
			BirthDate:    cell(1),
			Responsible1: cell(2),
			Responsible2: cell(3),
			RegisterDate: cell(4),
		}
		u.Initials = utils.Initials(u.Name)
		users = append(users, u)
	})
	return users, nil
}

// UsersExtractor reads the most recently registered patients
type UsersExtractor struct {
	portal *Portal
	nav    *Navigator
	auth   *Authenticator
}

// NewUsersExtractor creates a patient list extractor on one portal session
func NewUsersExtractor(portal *Portal, auth *Authenticator) *UsersExtractor {
	return &UsersExtractor{portal: portal, nav: NewNavigator(portal, auth), auth: auth}
}

// Extract returns up to limit distinct patients, newest registration first.
// A non-positive limit uses the configured one.
func (e *UsersExtractor) Extract(ctx context.Context, limit int) ([]models.UserRecord, error) {
	p := e.portal
	if limit <= 0 {
		limit = p.Config.Sync.UsersLimit
	}
	if err := e.auth.EnsureLogin(ctx); err != nil {
		return nil, err
	}
	if err := e.nav.Open(ctx, p.Config.Portal.PatientsPath); err != nil {
		return nil, err
	}
	if err := p.waitPresent(ctx, browser.ID(SelectorGrid), gridWait); err != nil {
		return nil, wrap("extract users", "wait grid", p.location(ctx), ErrContentNotLoaded, SelectorGrid)
	}

	if err := e.sortNewestFirst(ctx); err != nil {
		p.Logger.WithError(err).Warn("Could not sort patients by registration date")
	}

	pager := NewPager(p, SelectorGrid, SelectorPagerTarget)
	limits := PageLimits{MaxPages: p.Config.Sync.UsersMaxPages, StallLimit: p.Config.Sync.StallLimit, Limit: limit}
	users, err := Collect(ctx, p.Logger, pager, limits, e.readPage, models.UserRecord.Key)
	if err != nil {
		return users, wrap("extract users", "paginate", p.location(ctx), err, "")
	}
	p.Logger.WithField("users", len(users)).Info("Recent patients extracted")
	return users, nil
}

// sortNewestFirst clicks the registration date header twice: ascending,
// then descending
func (e *UsersExtractor) sortNewestFirst(ctx context.Context) error {
	p := e.portal
	for i := 0; i < 2; i++ {
		link, err := p.waitFor(ctx, browser.ID(SelectorSortByDate), p.Config.Browser.ImplicitWait)
		if err != nil {
			return err
		}
		if err := p.click(ctx, link); err != nil {
			return err
		}
		if err := p.sleep(ctx, 2*p.Config.Sync.PageSettle); err != nil {
			return err
		}
		if err := p.waitPresent(ctx, browser.ID(SelectorGrid), gridWait); err != nil {
			return err
		}
	}
	return nil
}

func (e *UsersExtractor) readPage(ctx context.Context) ([]models.UserRecord, error) {
	html, err := e.portal.Page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return ParseUserRows(html)
}
