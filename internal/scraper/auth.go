package scraper

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Credentials for the portal
type Credentials struct {
	Username string
	Password string
}

// loginControls are the queries for one way of finding the login form
type loginControls struct {
	name     string
	username browser.Query
	password browser.Query
	submit   browser.Query
}

var loginLocatorSets = []loginControls{
	{
		name:     "name",
		username: browser.Name(SelectorUserNameByName),
		password: browser.Name(SelectorPasswordByName),
		submit:   browser.Name(SelectorSubmitByName),
	},
	{
		name:     "id",
		username: browser.ID(SelectorUserNameByID),
		password: browser.ID(SelectorPasswordByID),
		submit:   browser.ID(SelectorSubmitByID),
	},
	{
		name:     "partial",
		username: browser.CSS(SelectorUserNameCSS),
		password: browser.CSS(SelectorPasswordCSS),
		submit:   browser.CSS(SelectorSubmitCSS),
	},
}

// Authenticator logs into the portal and remembers the result for the
// lifetime of its session. Concurrent logins collapse into one attempt.
type Authenticator struct {
	portal *Portal
	creds  Credentials

	mu       sync.Mutex
	loggedIn bool
	group    singleflight.Group
}

// NewAuthenticator creates a logged-out authenticator
func NewAuthenticator(portal *Portal, creds Credentials) *Authenticator {
	return &Authenticator{portal: portal, creds: creds}
}

// LoggedIn reports the cached login state
func (a *Authenticator) LoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

// Invalidate clears the login state after the portal sent us back to login
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loggedIn {
		a.portal.Logger.Info("Portal session expired, login required")
	}
	a.loggedIn = false
}

// EnsureLogin logs in with the configured credentials unless already logged in
func (a *Authenticator) EnsureLogin(ctx context.Context) error {
	return a.Login(ctx, a.creds.Username, a.creds.Password)
}

// Login authenticates against the login page. It returns nil immediately
// when the session is already logged in.
func (a *Authenticator) Login(ctx context.Context, username, password string) error {
	if a.LoggedIn() {
		return nil
	}
	if username == "" || password == "" {
		return wrap("login", "credentials", "", ErrMissingCredentials, "")
	}

	_, err, _ := a.group.Do("login", func() (interface{}, error) {
		if a.LoggedIn() {
			return nil, nil
		}
		if err := a.login(ctx, username, password); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.loggedIn = true
		a.mu.Unlock()
		return nil, nil
	})
	return err
}

func (a *Authenticator) login(ctx context.Context, username, password string) error {
	p := a.portal
	cfg := p.Config.Portal
	loginURL := p.URL(cfg.LoginPath)
	logger := p.Logger.WithField("url", loginURL)

	logger.Info("Logging into portal")

	if err := p.Page.Navigate(ctx, loginURL); err != nil {
		a.captureException(ctx)
		return wrap("login", "navigate", loginURL, err, "")
	}
	if err := p.waitPresent(ctx, browser.CSS("body"), cfg.BodyTimeout); err != nil {
		a.captureException(ctx)
		return wrap("login", "wait body", loginURL, err, "")
	}

	controls, err := a.findControls(ctx)
	if err != nil {
		a.captureException(ctx)
		return wrap("login", "locate form", loginURL, err, "")
	}

	if err := a.typeInto(ctx, controls[0], username); err != nil {
		a.captureException(ctx)
		return wrap("login", "fill username", loginURL, err, "")
	}
	if err := a.typeInto(ctx, controls[1], password); err != nil {
		a.captureException(ctx)
		return wrap("login", "fill password", loginURL, err, "")
	}
	if err := p.click(ctx, controls[2]); err != nil {
		a.captureException(ctx)
		return wrap("login", "submit", loginURL, err, "")
	}

	if err := p.sleep(ctx, cfg.LoginSettle); err != nil {
		return err
	}

	current, err := p.Page.Location(ctx)
	if err != nil {
		a.captureException(ctx)
		return wrap("login", "inspect result", loginURL, err, "")
	}
	if a.isHome(current) {
		logger.WithField("landing", current).Info("Portal login succeeded")
		return nil
	}

	message, _ := p.visibleText(ctx, loginErrorSelectors)
	logger.WithFields(logrus.Fields{
		"landing": current,
		"message": message,
	}).Error("Portal login failed")
	p.Diag.Screenshot(ctx, p.Page, "login_error.png")
	p.Diag.Source(ctx, p.Page, "login_page.html")
	return wrap("login", "inspect result", current, ErrInvalidCredentials, message)
}

func (a *Authenticator) isHome(url string) bool {
	fragment := a.portal.Config.Portal.HomeFragment
	if fragment != "" && strings.Contains(url, fragment) {
		return true
	}
	return strings.Contains(strings.ToLower(url), "inicio")
}

// findControls returns username, password and submit from the first locator
// set that yields all three
func (a *Authenticator) findControls(ctx context.Context) ([3]browser.Element, error) {
	var out [3]browser.Element
	for _, set := range loginLocatorSets {
		complete := true
		for i, q := range []browser.Query{set.username, set.password, set.submit} {
			els, err := a.portal.Page.FindAll(ctx, q)
			if err != nil {
				if errors.Is(err, browser.ErrSessionDead) {
					return out, err
				}
				complete = false
				break
			}
			el, ok := browser.FirstInteractable(els)
			if !ok {
				complete = false
				break
			}
			out[i] = el
		}
		if complete {
			a.portal.Logger.WithField("strategy", set.name).Debug("Login form located")
			return out, nil
		}
	}
	return out, ErrLoginFormNotFound
}

func (a *Authenticator) typeInto(ctx context.Context, el browser.Element, text string) error {
	if err := a.portal.Page.Clear(ctx, el); err != nil {
		return err
	}
	return a.portal.Page.TypeText(ctx, el, text)
}

func (a *Authenticator) captureException(ctx context.Context) {
	p := a.portal
	p.Diag.Screenshot(ctx, p.Page, "login_exception.png")
	p.Diag.Source(ctx, p.Page, "login_page.html")
}
