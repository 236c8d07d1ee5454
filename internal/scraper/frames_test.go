package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickContentFrame(t *testing.T) {
	tests := []struct {
		name   string
		frames []browser.Frame
		want   int
		ok     bool
	}{
		{
			name: "frame named I2",
			frames: []browser.Frame{
				{Tag: "frame", Name: "I1", Src: "/Menu.aspx", Index: 0},
				{Tag: "frame", Name: "I2", Src: "/Home.aspx", Index: 1},
				{Tag: "frame", Name: "I3", Src: "/Rodape.aspx", Index: 2},
			},
			want: 1, ok: true,
		},
		{
			name: "frame src marker",
			frames: []browser.Frame{
				{Tag: "frame", Name: "x1", Src: "/Menu.aspx", Index: 0},
				{Tag: "frame", Name: "x2", Src: "/Cadastro/Paciente.aspx", Index: 1},
				{Tag: "frame", Name: "x3", Src: "/Rodape.aspx", Index: 2},
			},
			want: 1, ok: true,
		},
		{
			name: "iframe id",
			frames: []browser.Frame{
				{Tag: "iframe", ID: "banner", Index: 0},
				{Tag: "iframe", ID: "ifrConteudo", Index: 1},
			},
			want: 1, ok: true,
		},
		{
			name: "last frame fallback",
			frames: []browser.Frame{
				{Tag: "frame", Name: "a", Index: 0},
				{Tag: "frame", Name: "b", Index: 1},
				{Tag: "iframe", ID: "c", Index: 2},
			},
			want: 1, ok: true,
		},
		{
			name:   "first iframe fallback",
			frames: []browser.Frame{{Tag: "iframe", ID: "c", Index: 0}, {Tag: "iframe", ID: "d", Index: 1}},
			want:   0, ok: true,
		},
		{name: "no frames", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickContentFrame(tt.frames)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Index)
			}
		})
	}
}

func TestEnterContentFrame(t *testing.T) {
	page := browsertest.NewFakePage().
		SetPage(homeURL, homeFrameset).
		SetFrame("I2", patientsFrame(""))
	portal, _ := newTestPortal(t, page)
	nav := NewNavigator(portal, NewAuthenticator(portal, Credentials{}))
	require.NoError(t, page.Navigate(context.Background(), homeURL))

	require.NoError(t, nav.EnterContentFrame(context.Background()))
	assert.Equal(t, 1, page.FrameDepth())

	require.NoError(t, nav.EnterContentFrame(context.Background()))
	assert.Equal(t, 1, page.FrameDepth(), "entering again starts from the root")
}

func TestEnterContentFrameNotLoaded(t *testing.T) {
	page := browsertest.NewFakePage().
		SetPage(homeURL, homeFrameset).
		SetFrame("I2", `<html><body>Carregando</body></html>`)
	portal, clock := newTestPortal(t, page)
	nav := NewNavigator(portal, NewAuthenticator(portal, Credentials{}))
	require.NoError(t, page.Navigate(context.Background(), homeURL))

	err := nav.EnterContentFrame(context.Background())

	assert.ErrorIs(t, err, ErrContentNotLoaded)
	assert.Equal(t, 8*time.Second, clock.Slept())
}

func TestFindMenuLinkSearchesSiblingFrames(t *testing.T) {
	page := browsertest.NewFakePage().
		SetPage(homeURL, homeFrameset).
		SetFrame("I1", `<html><body><div id="TreeView1">
			<a href="/Cadastro/Agenda.aspx">Agenda</a>
			<a href="/Cadastro/Paciente.aspx" target="I2">Pacientes e Aplicações</a>
		</div></body></html>`)
	portal, _ := newTestPortal(t, page)
	nav := NewNavigator(portal, NewAuthenticator(portal, Credentials{}))
	require.NoError(t, page.Navigate(context.Background(), homeURL))

	link, err := nav.FindMenuLink(context.Background(), PatientsMenu)

	require.NoError(t, err)
	assert.Equal(t, "/Cadastro/Paciente.aspx", link.Href)
	assert.Equal(t, 1, page.FrameDepth())
}

func TestMenuStrategiesFallBackToHref(t *testing.T) {
	page := browsertest.NewFakePage().SetPage(homeURL, `<html><body>
		<a href="/Cadastro/Vacinas.aspx">Vacinas</a>
		<a href="/Cadastro/Paciente.aspx"><img src="pac.png"></a>
	</body></html>`)
	require.NoError(t, page.Navigate(context.Background(), homeURL))

	link, s, err := FindFirst(context.Background(), page, PatientsMenu.Strategies())

	require.NoError(t, err)
	assert.Equal(t, "href", s.Name)
	assert.Equal(t, "/Cadastro/Paciente.aspx", link.Href)
}

func TestFindMenuLinkNotFound(t *testing.T) {
	page := browsertest.NewFakePage().SetPage(homeURL, homeFrameset)
	portal, _ := newTestPortal(t, page)
	nav := NewNavigator(portal, NewAuthenticator(portal, Credentials{}))
	require.NoError(t, page.Navigate(context.Background(), homeURL))

	_, err := nav.FindMenuLink(context.Background(), PatientsMenu)

	assert.ErrorIs(t, err, ErrMenuNotFound)
	assert.Equal(t, 0, page.FrameDepth())
}

func TestOpenMenuInjectsHrefWhenClickDoesNothing(t *testing.T) {
	page := browsertest.NewFakePage().SetPage(homeURL, `<html><body>
		<div class="TreeNode"><a href="/Cadastro/Paciente.aspx">Pacientes e Aplicações</a></div>
		<iframe id="ifrConteudo" src="about:blank"></iframe>
	</body></html>`)
	page.OnScript("f.src=href", func(p *browsertest.FakePage, _ string) (interface{}, error) {
		p.SetFrame(FrameContentID, patientsFrame(""))
		return true, nil
	})
	portal, _ := newTestPortal(t, page)
	nav := NewNavigator(portal, NewAuthenticator(portal, Credentials{}))
	require.NoError(t, page.Navigate(context.Background(), homeURL))

	require.NoError(t, nav.OpenMenu(context.Background(), PatientsMenu))

	assert.True(t, page.HasEvent("click:a("))
	assert.True(t, page.HasEvent("script:"))
	require.NoError(t, nav.EnterContentFrame(context.Background()))
	assert.True(t, nav.onRegistrationPage(context.Background()))
}

func TestEnsureOnRegistrationPageReauthenticates(t *testing.T) {
	page := browsertest.NewFakePage().
		SetPage(loginURL, loginPage).
		SetPage(homeURL, homeFrameset).
		SetFrame("I2", patientsFrame("")).
		Redirect(homeURL, loginURL)
	page.OnClick(isLoginButton, func(p *browsertest.FakePage, _ browser.Element) {
		p.Redirect(homeURL, homeURL)
		p.Load(homeURL)
	})
	portal, _ := newTestPortal(t, page)
	auth := NewAuthenticator(portal, Credentials{Username: "recepcao", Password: "s3nha"})
	nav := NewNavigator(portal, auth)

	require.NoError(t, nav.EnsureOnRegistrationPage(context.Background()))

	assert.True(t, auth.LoggedIn())
	assert.Equal(t, []string{homeURL, loginURL, homeURL}, page.Navigations())
	assert.Equal(t, 1, page.FrameDepth())
}
