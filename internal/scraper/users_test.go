package scraper

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patientsURL = baseURL + "/Cadastro/Paciente.aspx"

func userRow(name, registered string) string {
	return fmt.Sprintf(`<tr><td><span id="GridView1_Label1">%s</span></td><td><span id="GridView1_Label2">01/02/2020</span></td>`+
		`<td><span id="GridView1_Label3">Maria</span></td><td>João</td><td><span id="GridView1_Label5">%s</span></td></tr>`, name, registered)
}

func usersGrid(rows ...string) string {
	return `<html><body><table id="ctl00_ContentPlaceHolder1_GridView1">
		<tr><th><a id="ctl00_ContentPlaceHolder1_GridView1_ctl01_lnkDataCadastro" href="#">Data Cadastro</a></th></tr>` +
		strings.Join(rows, "") + `</table></body></html>`
}

func TestParseUserRows(t *testing.T) {
	users, err := ParseUserRows(usersGrid(
		userRow("Ana Beatriz Lima", "25/08/2025"),
		`<tr><td>Pedro</td><td>10/10/2010</td><td>Carla</td></tr>`,
		`<tr><td colspan="2">1 2</td></tr>`,
	))

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ana Beatriz Lima", users[0].Name)
	assert.Equal(t, "01/02/2020", users[0].BirthDate)
	assert.Equal(t, "Maria", users[0].Responsible1)
	assert.Equal(t, "João", users[0].Responsible2)
	assert.Equal(t, "25/08/2025", users[0].RegisterDate)
	assert.Equal(t, "AL", users[0].Initials)

	assert.Equal(t, "Pedro", users[1].Name)
	assert.Empty(t, users[1].Responsible2)
	assert.Empty(t, users[1].RegisterDate)
	assert.Equal(t, "PE", users[1].Initials)
}

func TestUsersExtractionSortsAndLimits(t *testing.T) {
	page1 := usersGrid(userRow("Ana Lima", "25/08/2025"), userRow("Bruno Reis", "24/08/2025"))
	page2 := usersGrid(userRow("Carla Dias", "23/08/2025"), userRow("Davi Souza", "22/08/2025"))

	page := loggedInPage().SetPage(patientsURL, page1)
	onPostBack(page, map[int]string{2: page2})
	portal, _ := newTestPortal(t, page)
	auth := NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"})

	users, err := NewUsersExtractor(portal, auth).Extract(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "Carla Dias", users[2].Name)

	var sorts int
	for _, e := range page.Events() {
		if e == "click:a#"+SelectorSortByDate {
			sorts++
		}
	}
	assert.Equal(t, 2, sorts)
}

func TestUsersExtractionContinuesWhenSortFails(t *testing.T) {
	grid := `<html><body><table id="ctl00_ContentPlaceHolder1_GridView1">` + userRow("Ana Lima", "25/08/2025") + `</table></body></html>`
	page := loggedInPage().SetPage(patientsURL, grid)
	portal, _ := newTestPortal(t, page)
	auth := NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"})

	users, err := NewUsersExtractor(portal, auth).Extract(context.Background(), 0)

	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.False(t, page.HasEvent("click:a#"))
}

func TestUsersExtractionReauthenticates(t *testing.T) {
	page := loggedInPage().SetPage(patientsURL, usersGrid(userRow("Ana Lima", "25/08/2025")))
	calls := 0
	page.OnClick(func(el browser.Element) bool { return el.ID == SelectorSortByDate }, func(*browsertest.FakePage, browser.Element) {
		calls++
	})
	portal, _ := newTestPortal(t, page)
	auth := NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"})
	require.NoError(t, auth.EnsureLogin(context.Background()))
	page.Redirect(patientsURL, loginURL)
	auth.Invalidate()

	_, err := NewUsersExtractor(portal, auth).Extract(context.Background(), 0)

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, calls)
}
