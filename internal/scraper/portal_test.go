package scraper

import (
	"testing"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser/browsertest"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
)

const (
	baseURL  = "http://portal.test"
	loginURL = baseURL + "/login.aspx"
	homeURL  = baseURL + "/Login/Inicio.aspx"
)

const loginPage = `<html><body><form>
	<input type="text" name="Login1$UserName" id="Login1_UserName">
	<input type="password" name="Login1$Password" id="Login1_Password">
	<input type="submit" name="Login1$LoginButton" id="Login1_LoginButton" value="Entrar">
	<span id="Login1_FailureText"></span>
</form></body></html>`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Portal: config.PortalConfig{
			BaseURL:        baseURL,
			Username:       "recepcao",
			Password:       "s3nha",
			LoginPath:      "/login.aspx",
			HomePath:       "/Login/Inicio.aspx",
			PatientsPath:   "/Cadastro/Paciente.aspx",
			CalendarPath:   "/Cadastro/AgendaAtendimentos.aspx",
			StockPath:      "/Cadastro/Vacinas.aspx",
			HomeFragment:   "Inicio.aspx",
			LoginSettle:    5 * time.Second,
			BodyTimeout:    20 * time.Second,
			ActionSettle:   3 * time.Second,
			DiagnosticsDir: t.TempDir(),
		},
		Browser: config.BrowserConfig{
			ImplicitWait:    10 * time.Second,
			PageLoadTimeout: 30 * time.Second,
			PollInterval:    250 * time.Millisecond,
		},
		Sync: config.SyncConfig{
			StallLimit:     2,
			StockMaxPages:  50,
			UsersMaxPages:  10,
			UsersLimit:     20,
			FieldRetries:   2,
			PageSettle:     time.Second,
			FramePolls:     5,
			FramePollDelay: 2 * time.Second,
		},
	}
}

func newTestPortal(t *testing.T, page *browsertest.FakePage) (*Portal, *browsertest.FakeClock) {
	t.Helper()
	clock := browsertest.NewFakeClock()
	return NewPortal(page, testConfig(t), clock, logger.Discard()), clock
}
