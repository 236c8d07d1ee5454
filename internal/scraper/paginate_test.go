package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/browser/browsertest"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stockURL = baseURL + "/Cadastro/Vacinas.aspx"

var pageArgRe = regexp.MustCompile(`Page\$(\d+)`)

func stockRow(name, lab string, current int) string {
	return fmt.Sprintf(`<tr class="gridview-row"><td><span>%s</span></td><td>%s</td><td>R$ 80,00</td><td><span>R$ 120,50</span></td><td>%d</td><td><span>%d</span></td><td><span>10</span></td></tr>`,
		name, lab, current, current)
}

func stockGrid(rows ...string) string {
	return `<html><body><table id="ctl00_ContentPlaceHolder1_GridView1">
		<tr><th>Nome</th><th>Laboratório</th><th>Compra</th><th>Venda</th><th>Estoque</th><th>Disponível</th><th>Mínimo</th></tr>` +
		strings.Join(rows, "") + `</table></body></html>`
}

// loggedInPage serves the login form and lands on the home page after submit
func loggedInPage() *browsertest.FakePage {
	page := browsertest.NewFakePage().
		SetPage(loginURL, loginPage).
		SetPage(homeURL, `<html><body>Início</body></html>`)
	page.OnClick(isLoginButton, func(p *browsertest.FakePage, _ browser.Element) {
		p.Load(homeURL)
	})
	return page
}

// onPostBack serves pages through __doPostBack; pages beyond the map repeat the last one
func onPostBack(page *browsertest.FakePage, pages map[int]string) {
	last := 0
	for n := range pages {
		last = max(last, n)
	}
	page.OnScript("__doPostBack", func(p *browsertest.FakePage, script string) (interface{}, error) {
		m := pageArgRe.FindStringSubmatch(script)
		if m == nil {
			return false, nil
		}
		n, _ := strconv.Atoi(m[1])
		html, ok := pages[n]
		if !ok {
			html = pages[last]
		}
		p.ReplaceDocument(html)
		return true, nil
	})
}

func TestStockExtractionStopsWhenPagesRepeat(t *testing.T) {
	page1 := stockGrid(stockRow("BCG", "Butantan", 5), stockRow("Hepatite B", "GSK", 12))
	page2 := stockGrid(stockRow("Febre Amarela", "Bio-Manguinhos", 3), stockRow("Gripe", "Sanofi", 40))

	page := loggedInPage().SetPage(stockURL, page1)
	onPostBack(page, map[int]string{2: page2, 3: page2})
	portal, _ := newTestPortal(t, page)
	auth := NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"})

	items, err := NewStockExtractor(portal, auth).Extract(context.Background())

	require.NoError(t, err)
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"BCG", "Hepatite B", "Febre Amarela", "Gripe"}, names)
	assert.Equal(t, 120.5, items[0].SalePrice)
	assert.Equal(t, 80.0, items[0].PurchasePrice)
	assert.Equal(t, 10, items[0].MinStock)

	var postbacks int
	for _, e := range page.Events() {
		if strings.Contains(e, "__doPostBack") {
			postbacks++
		}
	}
	assert.Equal(t, 3, postbacks, "pages 2, 3 and 4 requested before two stalled pages end the run")
}

func TestExtractionIsRepeatable(t *testing.T) {
	ctx := context.Background()

	t.Run("stock", func(t *testing.T) {
		page := loggedInPage().SetPage(stockURL, stockGrid(stockRow("BCG", "Butantan", 5), stockRow("Hepatite B", "GSK", 12)))
		onPostBack(page, map[int]string{2: stockGrid(stockRow("Gripe", "Sanofi", 40), stockRow("Gripe Tetra", "Sanofi", 8))})
		portal, _ := newTestPortal(t, page)
		extractor := NewStockExtractor(portal, NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"}))

		first, err := extractor.Extract(ctx)
		require.NoError(t, err)
		require.Len(t, first, 4)
		second, err := extractor.Extract(ctx)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("calendar", func(t *testing.T) {
		other := `<div align=left style="margin: 1px; background-color: #F4511E"><font>08:15 Caio Mendes<BR>Febre Amarela</font></div>`
		page := loggedInPage().SetPage(calendarURL, calendarPage(""))
		page.OnScript("cellContents", func(*browsertest.FakePage, string) (interface{}, error) {
			return map[string]string{"27-08-2025": other, "25-08-2025": dayCell, "02-09-2025": other, "26-08-2025": dayCell}, nil
		})
		portal, _ := newTestPortal(t, page)
		extractor := NewCalendarExtractor(portal, NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"}))

		first, err := extractor.Extract(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, first)
		for i := 0; i < 5; i++ {
			again, err := extractor.Extract(ctx)
			require.NoError(t, err)
			require.Equal(t, first, again)
		}
	})
}

func TestStockExtractionRequiresGrid(t *testing.T) {
	page := loggedInPage().SetPage(stockURL, `<html><body>Manutenção</body></html>`)
	portal, _ := newTestPortal(t, page)
	auth := NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"})

	_, err := NewStockExtractor(portal, auth).Extract(context.Background())

	assert.ErrorIs(t, err, ErrContentNotLoaded)
}

func TestPagerFallsBackToPagerLink(t *testing.T) {
	page1 := `<html><body><table id="ctl00_ContentPlaceHolder1_GridView1">
		<tr><td>a</td></tr>
		<tr><td><a href="javascript:__doPostBack('ctl00$ContentPlaceHolder1$GridView1','Page$2')">2</a></td></tr>
	</table></body></html>`
	page := browsertest.NewFakePage().SetPage(stockURL, page1)
	page.OnClick(func(el browser.Element) bool { return el.Tag == "a" }, func(p *browsertest.FakePage, _ browser.Element) {
		p.ReplaceDocument(stockGrid(stockRow("BCG", "Butantan", 1)))
	})
	portal, _ := newTestPortal(t, page)
	require.NoError(t, page.Navigate(context.Background(), stockURL))

	err := NewPager(portal, SelectorGrid, SelectorPagerTarget).Advance(context.Background(), 2)

	require.NoError(t, err)
	assert.True(t, page.HasEvent("click:a("))
}

func TestPagerExhausted(t *testing.T) {
	page := browsertest.NewFakePage().SetPage(stockURL, stockGrid(stockRow("BCG", "Butantan", 1)))
	portal, _ := newTestPortal(t, page)
	require.NoError(t, page.Navigate(context.Background(), stockURL))

	err := NewPager(portal, SelectorGrid, SelectorPagerTarget).Advance(context.Background(), 2)

	assert.ErrorIs(t, err, ErrPaginationExhausted)
}

type fakeAdvancer struct {
	page     int
	requests []int
	err      error
}

func (a *fakeAdvancer) Advance(_ context.Context, n int) error {
	a.requests = append(a.requests, n)
	if a.err != nil {
		return a.err
	}
	a.page = n
	return nil
}

func TestCollect(t *testing.T) {
	ident := func(s string) string { return s }

	tests := []struct {
		name     string
		pages    [][]string
		limits   PageLimits
		advErr   error
		want     []string
		requests []int
		wantErr  bool
	}{
		{
			name:     "repeated content terminates",
			pages:    [][]string{{"a", "b"}, {"c"}, {"c"}},
			limits:   PageLimits{MaxPages: 100, StallLimit: 2},
			want:     []string{"a", "b", "c"},
			requests: []int{2, 3, 4},
		},
		{
			name:     "stall counter resets on new records",
			pages:    [][]string{{"a"}, {"a"}, {"b"}, {"b"}, {"b"}},
			limits:   PageLimits{MaxPages: 100, StallLimit: 2},
			want:     []string{"a", "b"},
			requests: []int{2, 3, 4, 5},
		},
		{
			name:     "max pages",
			pages:    [][]string{{"a"}, {"b"}, {"c"}, {"d"}},
			limits:   PageLimits{MaxPages: 2, StallLimit: 2},
			want:     []string{"a", "b"},
			requests: []int{2},
		},
		{
			name:     "empty page",
			pages:    [][]string{{"a"}, {}},
			limits:   PageLimits{MaxPages: 10, StallLimit: 2},
			want:     []string{"a"},
			requests: []int{2},
		},
		{
			name:     "limit",
			pages:    [][]string{{"a", "b"}, {"c", "d"}},
			limits:   PageLimits{MaxPages: 10, StallLimit: 2, Limit: 3},
			want:     []string{"a", "b", "c"},
			requests: []int{2},
		},
		{
			name:     "failed advance ends cleanly",
			pages:    [][]string{{"a"}},
			limits:   PageLimits{MaxPages: 10, StallLimit: 2},
			advErr:   ErrPaginationExhausted,
			want:     []string{"a"},
			requests: []int{2},
		},
		{
			name:     "dead session is an error",
			pages:    [][]string{{"a"}},
			limits:   PageLimits{MaxPages: 10, StallLimit: 2},
			advErr:   browser.ErrSessionDead,
			want:     []string{"a"},
			requests: []int{2},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := &fakeAdvancer{page: 1, err: tt.advErr}
			read := func(context.Context) ([]string, error) {
				i := adv.page - 1
				if i >= len(tt.pages) {
					i = len(tt.pages) - 1
				}
				return tt.pages[i], nil
			}

			got, err := Collect(context.Background(), logger.Discard(), adv, tt.limits, read, ident)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.requests, adv.requests)
		})
	}
}

func TestCollectReadError(t *testing.T) {
	read := func(context.Context) ([]models.StockItem, error) { return nil, errors.New("boom") }

	_, err := Collect(context.Background(), logger.Discard(), &fakeAdvancer{}, PageLimits{MaxPages: 3}, read, models.StockItem.Key)

	assert.ErrorContains(t, err, "failed to read page 1")
}
