package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/sirupsen/logrus"
)

// MenuTarget identifies a menu entry of the home frameset
type MenuTarget struct {
	Label        string
	Keyword      string
	HrefFragment string
}

// PatientsMenu opens the patient list
var PatientsMenu = MenuTarget{
	Label:        "Pacientes e Aplicações",
	Keyword:      "Pacientes",
	HrefFragment: "Paciente.aspx",
}

// Strategies lists the ways the menu link is searched for, most specific first
func (m MenuTarget) Strategies() []Strategy {
	keyword := strings.ToLower(m.Keyword)
	hasKeyword := func(el browser.Element) bool {
		return strings.Contains(strings.ToLower(el.Text), keyword)
	}
	strategies := []Strategy{
		{Name: "exact text", Query: browser.Text(m.Label, "a")},
		{Name: "partial text", Query: browser.TextContains(m.Label, "a")},
	}
	if m.HrefFragment != "" {
		strategies = append(strategies, Strategy{Name: "href", Query: browser.AttrContains("href", m.HrefFragment, "a")})
	}
	if m.Keyword != "" {
		strategies = append(strategies,
			Strategy{Name: "keyword", Query: browser.TextContains(m.Keyword, "a")},
			Strategy{Name: "tree node", Query: browser.CSS("[class*='TreeNode'] a"), Filter: hasKeyword},
			Strategy{Name: "tree view", Query: browser.CSS("[id*='TreeView'] a"), Filter: hasKeyword},
		)
	}
	return strategies
}

// Navigator moves between the home frameset, its menu and the content frame.
// Every search starts from the document root.
type Navigator struct {
	portal *Portal
	auth   *Authenticator
}

// NewNavigator creates a navigator that re-authenticates through auth
func NewNavigator(portal *Portal, auth *Authenticator) *Navigator {
	return &Navigator{portal: portal, auth: auth}
}

// pickContentFrame chooses the content frame among the frames of the root
// document: markers on frame elements first, then on iframes, then the last
// frame or the first iframe.
func pickContentFrame(frames []browser.Frame) (browser.Frame, bool) {
	var legacy, inline []browser.Frame
	for _, f := range frames {
		if f.Tag == "iframe" {
			inline = append(inline, f)
		} else {
			legacy = append(legacy, f)
		}
	}

	for _, f := range legacy {
		if f.Name == FrameContentName || strings.Contains(f.ID, FrameContentID) {
			return f, true
		}
		for _, marker := range contentFrameSrcMarkers {
			if strings.Contains(f.Src, marker) {
				return f, true
			}
		}
	}
	for _, f := range inline {
		if f.ID == FrameContentID || f.Name == FrameContentName {
			return f, true
		}
	}
	if len(legacy) > 0 {
		return legacy[len(legacy)-1], true
	}
	if len(inline) > 0 {
		return inline[0], true
	}
	return browser.Frame{}, false
}

// EnterContentFrame switches into the content frame and waits until it shows
// the registration markers or enough inputs
func (n *Navigator) EnterContentFrame(ctx context.Context) error {
	p := n.portal
	page := p.Page
	if err := page.SwitchToRoot(ctx); err != nil {
		return err
	}
	frames, err := page.Frames(ctx)
	if err != nil {
		return wrap("enter content frame", "list frames", p.location(ctx), err, "")
	}
	frame, ok := pickContentFrame(frames)
	if !ok {
		return wrap("enter content frame", "pick frame", p.location(ctx), ErrFrameNotFound, fmt.Sprintf("%d frames", len(frames)))
	}
	if err := page.EnterFrame(ctx, frame); err != nil {
		return wrap("enter content frame", "switch", p.location(ctx), err, frameLabel(frame))
	}

	polls := max(p.Config.Sync.FramePolls, 1)
	delay := p.Config.Sync.FramePollDelay
	err = browser.Poll(ctx, p.Clock, delay*time.Duration(polls-1), delay, func(ctx context.Context) (bool, error) {
		loaded, err := n.contentLoaded(ctx)
		if errors.Is(err, browser.ErrSessionDead) {
			return false, err
		}
		return loaded, nil
	})
	if errors.Is(err, browser.ErrWaitTimeout) {
		return wrap("enter content frame", "wait content", p.location(ctx), ErrContentNotLoaded, frameLabel(frame))
	}
	if err != nil {
		return err
	}
	p.Logger.WithField("frame", frameLabel(frame)).Debug("Entered content frame")
	return nil
}

func (n *Navigator) contentLoaded(ctx context.Context) (bool, error) {
	page := n.portal.Page
	bodies, err := page.FindAll(ctx, browser.CSS("body"))
	if err != nil {
		return false, err
	}
	if len(bodies) == 0 || len(strings.TrimSpace(bodies[0].Text)) <= 10 {
		return false, nil
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return false, err
	}
	if strings.Contains(html, ContentFieldMarker) {
		return true, nil
	}
	inputs, err := page.FindAll(ctx, browser.CSS("input"))
	if err != nil {
		return false, err
	}
	return len(inputs) > ContentMinInputs, nil
}

func frameLabel(f browser.Frame) string {
	switch {
	case f.Name != "":
		return f.Tag + "[name=" + f.Name + "]"
	case f.ID != "":
		return f.Tag + "#" + f.ID
	}
	return fmt.Sprintf("%s[%d] %s", f.Tag, f.Index, f.Src)
}

// FindMenuLink searches the root document, then each of its frames, for the
// first visible link of target. On success the page stays in the frame
// holding the link.
func (n *Navigator) FindMenuLink(ctx context.Context, target MenuTarget) (browser.Element, error) {
	page := n.portal.Page
	strategies := target.Strategies()

	if err := page.SwitchToRoot(ctx); err != nil {
		return browser.Element{}, err
	}
	if el, s, err := FindFirst(ctx, page, strategies); err == nil {
		n.logMenu(target, s, "root")
		return el, nil
	} else if errors.Is(err, browser.ErrSessionDead) {
		return browser.Element{}, err
	}

	frames, err := page.Frames(ctx)
	if err != nil {
		return browser.Element{}, err
	}
	for _, f := range frames {
		if err := page.SwitchToRoot(ctx); err != nil {
			return browser.Element{}, err
		}
		if err := page.EnterFrame(ctx, f); err != nil {
			continue
		}
		el, s, err := FindFirst(ctx, page, strategies)
		if err == nil {
			n.logMenu(target, s, frameLabel(f))
			return el, nil
		}
		if errors.Is(err, browser.ErrSessionDead) {
			return browser.Element{}, err
		}
	}

	_ = page.SwitchToRoot(ctx)
	return browser.Element{}, wrap("find menu link", "search", n.portal.location(ctx), ErrMenuNotFound, target.Label)
}

func (n *Navigator) logMenu(target MenuTarget, s Strategy, where string) {
	n.portal.Logger.WithFields(logrus.Fields{
		"menu":     target.Label,
		"strategy": s.Name,
		"frame":    where,
	}).Debug("Menu link located")
}

const (
	assignFrameSrc      = `(function(href){var f=document.getElementById('ifrConteudo');if(!f){return false;}f.src=href;return true;})(%s)`
	assignFrameLocation = `(function(href){var f=document.getElementById('ifrConteudo');if(!f||!f.contentWindow){return false;}f.contentWindow.location.href=href;return true;})(%s)`
)

// OpenMenu clicks the menu link of target. When the click does not populate
// the content frame, the link's href is assigned to the frame by script.
func (n *Navigator) OpenMenu(ctx context.Context, target MenuTarget) error {
	p := n.portal
	link, err := n.FindMenuLink(ctx, target)
	if err != nil {
		return err
	}

	if err := p.click(ctx, link); err != nil {
		p.Logger.WithError(err).Warn("Menu click failed")
	}
	if err := p.sleep(ctx, p.Config.Portal.ActionSettle); err != nil {
		return err
	}
	if n.contentPopulated(ctx) {
		return nil
	}

	if link.Href == "" {
		return wrap("open menu", "inject href", p.location(ctx), ErrContentNotLoaded, target.Label)
	}
	p.Logger.WithField("href", link.Href).Info("Menu click did not load content, assigning frame source")
	if err := p.Page.SwitchToRoot(ctx); err != nil {
		return err
	}
	href, _ := json.Marshal(link.Href)
	var assigned bool
	if err := p.Page.Evaluate(ctx, fmt.Sprintf(assignFrameSrc, href), &assigned); err != nil || !assigned {
		if err := p.Page.Evaluate(ctx, fmt.Sprintf(assignFrameLocation, href), &assigned); err != nil {
			return wrap("open menu", "inject href", p.location(ctx), err, link.Href)
		}
	}
	if !assigned {
		return wrap("open menu", "inject href", p.location(ctx), ErrFrameNotFound, FrameContentID)
	}
	return p.sleep(ctx, p.Config.Portal.ActionSettle)
}

// contentPopulated reports whether the content frame has any body text. The
// page is left at the root.
func (n *Navigator) contentPopulated(ctx context.Context) bool {
	page := n.portal.Page
	defer page.SwitchToRoot(ctx)

	if err := page.SwitchToRoot(ctx); err != nil {
		return false
	}
	frames, err := page.Frames(ctx)
	if err != nil {
		return false
	}
	frame, ok := pickContentFrame(frames)
	if !ok || page.EnterFrame(ctx, frame) != nil {
		return false
	}
	bodies, err := page.FindAll(ctx, browser.CSS("body"))
	return err == nil && len(bodies) > 0 && strings.TrimSpace(bodies[0].Text) != ""
}

// Open navigates to a portal path, logging in again once when the portal
// redirects to the login page
func (n *Navigator) Open(ctx context.Context, path string) error {
	p := n.portal
	target := p.URL(path)

	if err := p.Page.Navigate(ctx, target); err != nil {
		return wrap("open", "navigate", target, err, "")
	}
	if !p.onLoginPage(p.location(ctx)) {
		return nil
	}

	n.auth.Invalidate()
	if err := n.auth.EnsureLogin(ctx); err != nil {
		return err
	}
	if err := p.Page.Navigate(ctx, target); err != nil {
		return wrap("open", "navigate", target, err, "")
	}
	if p.onLoginPage(p.location(ctx)) {
		return wrap("open", "navigate", target, ErrSessionExpired, "redirected to login after re-authentication")
	}
	return nil
}

// GoHome opens the home frameset
func (n *Navigator) GoHome(ctx context.Context) error {
	return n.Open(ctx, n.portal.Config.Portal.HomePath)
}

// EnsureOnRegistrationPage leaves the page inside the content frame showing
// the patient grid
func (n *Navigator) EnsureOnRegistrationPage(ctx context.Context) error {
	p := n.portal
	current := p.location(ctx)
	if !strings.Contains(current, p.Config.Portal.HomeFragment) {
		if err := n.GoHome(ctx); err != nil {
			return err
		}
	}

	if err := n.EnterContentFrame(ctx); err == nil && n.onRegistrationPage(ctx) {
		return nil
	}

	if err := n.OpenMenu(ctx, PatientsMenu); err != nil {
		return err
	}
	if err := n.EnterContentFrame(ctx); err != nil {
		return err
	}
	if err := p.waitPresent(ctx, browser.ID(SelectorGrid), p.Config.Browser.ImplicitWait); err != nil {
		return wrap("ensure registration page", "wait grid", p.location(ctx), ErrContentNotLoaded, SelectorGrid)
	}
	return nil
}

func (n *Navigator) onRegistrationPage(ctx context.Context) bool {
	for _, q := range []browser.Query{browser.ID(SelectorGrid), browser.AttrContains("id", SelectorNameField, "input")} {
		els, err := n.portal.Page.FindAll(ctx, q)
		if err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}
