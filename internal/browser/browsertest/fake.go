// Package browsertest provides an in-memory Page backed by goquery documents
// and a fake clock, so portal flows can be exercised without a browser.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/goc-sync/internal/browser"
)

// ScriptFunc answers an Evaluate call
type ScriptFunc func(p *FakePage, script string) (interface{}, error)

// ClickFunc reacts to a click on a matching element
type ClickFunc func(p *FakePage, el browser.Element)

type scriptHandler struct {
	fragment string
	fn       ScriptFunc
}

type clickHandler struct {
	match func(browser.Element) bool
	fn    ClickFunc
}

// FakePage implements browser.Page over static HTML. Pages are keyed by URL,
// frame documents by frame name, id or src.
type FakePage struct {
	mu sync.Mutex

	pages     map[string]string
	redirects map[string]string
	frames    map[string]string

	url       string
	root      *goquery.Document
	stack     []*goquery.Document
	frameDocs map[string]*goquery.Document

	scripts []scriptHandler
	clicks  []clickHandler

	readOnly  map[string]bool
	noNative  map[string]bool
	dead      bool
	events    []string
	navigated []string
}

// NewFakePage creates an empty fake positioned at about:blank
func NewFakePage() *FakePage {
	p := &FakePage{
		pages:     make(map[string]string),
		redirects: make(map[string]string),
		frames:    make(map[string]string),
		frameDocs: make(map[string]*goquery.Document),
		readOnly:  make(map[string]bool),
		noNative:  make(map[string]bool),
	}
	p.url = "about:blank"
	p.root = mustParse("<html><body></body></html>")
	return p
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("browsertest: invalid html: %v", err))
	}
	return doc
}

// SetPage registers the HTML served for url
func (p *FakePage) SetPage(url, html string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[url] = html
	return p
}

// Redirect makes navigation to from land on to
func (p *FakePage) Redirect(from, to string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirects[from] = to
	return p
}

// SetFrame registers the document of a frame matched by name, id or src.
// Replacing a frame's content takes effect the next time it is entered.
func (p *FakePage) SetFrame(key, html string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[key] = html
	delete(p.frameDocs, key)
	return p
}

// OnScript answers Evaluate calls whose script contains fragment
func (p *FakePage) OnScript(fragment string, fn ScriptFunc) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, scriptHandler{fragment: fragment, fn: fn})
	return p
}

// OnClick runs fn after a native or script click on an element accepted by match
func (p *FakePage) OnClick(match func(browser.Element) bool, fn ClickFunc) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, clickHandler{match: match, fn: fn})
	return p
}

// ReadOnly makes value assignments to these element ids silently do nothing
func (p *FakePage) ReadOnly(ids ...string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.readOnly[id] = true
	}
	return p
}

// RejectNativeClick makes native clicks on these ids fail, as an overlay would
func (p *FakePage) RejectNativeClick(ids ...string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.noNative[id] = true
	}
	return p
}

// Kill makes every call fail like a crashed browser
func (p *FakePage) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead = true
}

// Load replaces the top-level document with the page registered for url
// without recording a navigation, as a form post or redirect would.
func (p *FakePage) Load(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.load(url)
}

func (p *FakePage) load(url string) {
	if to, ok := p.redirects[url]; ok {
		url = to
	}
	html, ok := p.pages[url]
	if !ok {
		if i := strings.IndexByte(url, '?'); i >= 0 {
			html, ok = p.pages[url[:i]]
		}
	}
	if !ok {
		html = "<html><body></body></html>"
	}
	p.url = url
	p.root = mustParse(html)
	p.stack = nil
	p.frameDocs = make(map[string]*goquery.Document)
}

// ReplaceDocument swaps the current frame's document, as a postback would
func (p *FakePage) ReplaceDocument(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc := mustParse(html)
	if len(p.stack) == 0 {
		p.root = doc
		return
	}
	p.stack[len(p.stack)-1] = doc
}

// Events returns the recorded interaction log
func (p *FakePage) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	copy(out, p.events)
	return out
}

// HasEvent reports whether any recorded event starts with prefix
func (p *FakePage) HasEvent(prefix string) bool {
	for _, e := range p.Events() {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

// Navigations lists the URLs passed to Navigate
func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.navigated))
	copy(out, p.navigated)
	return out
}

// FrameDepth is the number of frames entered from the root
func (p *FakePage) FrameDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}

func (p *FakePage) record(format string, args ...interface{}) {
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

func (p *FakePage) current() *goquery.Document {
	if len(p.stack) == 0 {
		return p.root
	}
	return p.stack[len(p.stack)-1]
}

func (p *FakePage) alive() error {
	if p.dead {
		return browser.ErrSessionDead
	}
	return nil
}

// Navigate implements browser.Page
func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(); err != nil {
		return err
	}
	p.navigated = append(p.navigated, url)
	p.record("navigate:%s", url)
	p.load(url)
	return nil
}

// Location implements browser.Page
func (p *FakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(); err != nil {
		return "", err
	}
	return p.url, nil
}

// HTML implements browser.Page
func (p *FakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(); err != nil {
		return "", err
	}
	return p.current().Html()
}

// Screenshot implements browser.Page
func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

// Evaluate dispatches to the first handler whose fragment occurs in script.
// Scripts without a handler fail like an undefined reference would.
func (p *FakePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	p.mu.Lock()
	if err := p.alive(); err != nil {
		p.mu.Unlock()
		return err
	}
	var handler *scriptHandler
	for i := range p.scripts {
		if strings.Contains(script, p.scripts[i].fragment) {
			handler = &p.scripts[i]
			break
		}
	}
	p.record("script:%s", abbreviate(script))
	p.mu.Unlock()

	if handler == nil {
		return fmt.Errorf("ReferenceError: no handler for script %q", abbreviate(script))
	}
	res, err := handler.fn(p, script)
	if err != nil || out == nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func abbreviate(s string) string {
	s = browser.NormalizeSpace(s)
	if len(s) > 80 {
		return s[:80]
	}
	return s
}

// FindAll implements browser.Page
func (p *FakePage) FindAll(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(); err != nil {
		return nil, err
	}
	sel, err := find(p.current(), q)
	if err != nil {
		return nil, err
	}
	els := make([]browser.Element, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		els = append(els, describe(s, q, i))
	})
	return els, nil
}

func (p *FakePage) resolve(el browser.Element) (*goquery.Selection, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	sel, err := find(p.current(), el.Query)
	if err != nil {
		return nil, err
	}
	if el.Index >= sel.Length() {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, el.Label())
	}
	return sel.Eq(el.Index), nil
}

// Click implements browser.Page
func (p *FakePage) Click(ctx context.Context, el browser.Element) error {
	return p.click(el, "click", true)
}

// ScriptClick implements browser.Page
func (p *FakePage) ScriptClick(ctx context.Context, el browser.Element) error {
	return p.click(el, "scriptclick", false)
}

func (p *FakePage) click(el browser.Element, kind string, native bool) error {
	p.mu.Lock()
	s, err := p.resolve(el)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	current := describe(s, el.Query, el.Index)
	if native && p.noNative[current.ID] {
		p.mu.Unlock()
		return fmt.Errorf("element click intercepted: %s", current.Label())
	}
	p.record("%s:%s", kind, current.Label())
	var matched []clickHandler
	for _, h := range p.clicks {
		if h.match(current) {
			matched = append(matched, h)
		}
	}
	p.mu.Unlock()

	for _, h := range matched {
		h.fn(p, current)
	}
	return nil
}

// ScrollIntoView implements browser.Page
func (p *FakePage) ScrollIntoView(ctx context.Context, el browser.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.resolve(el)
	return err
}

// Focus implements browser.Page
func (p *FakePage) Focus(ctx context.Context, el browser.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.resolve(el)
	return err
}

// SetValue implements browser.Page. On a select without a matching option
// the value becomes empty, as it does in a browser.
func (p *FakePage) SetValue(ctx context.Context, el browser.Element, value string, events ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(el)
	if err != nil {
		return err
	}
	id := s.AttrOr("id", "")
	p.record("setvalue:%s=%s", labelOf(s), value)
	if p.readOnly[id] {
		return nil
	}
	if goquery.NodeName(s) == "select" {
		selectWhere(s, func(o *goquery.Selection) bool { return o.AttrOr("value", optionText(o)) == value })
	} else {
		writeValue(s, value)
	}
	for _, e := range events {
		p.record("event:%s:%s", labelOf(s), e)
	}
	return nil
}

// Value implements browser.Page
func (p *FakePage) Value(ctx context.Context, el browser.Element) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(el)
	if err != nil {
		return "", err
	}
	return valueOf(s), nil
}

// Clear implements browser.Page
func (p *FakePage) Clear(ctx context.Context, el browser.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(el)
	if err != nil {
		return err
	}
	p.record("clear:%s", labelOf(s))
	if !p.readOnly[s.AttrOr("id", "")] {
		writeValue(s, "")
	}
	return nil
}

// TypeText implements browser.Page
func (p *FakePage) TypeText(ctx context.Context, el browser.Element, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(el)
	if err != nil {
		return err
	}
	p.record("type:%s=%s", labelOf(s), text)
	if !p.readOnly[s.AttrOr("id", "")] {
		writeValue(s, valueOf(s)+text)
	}
	return nil
}

// Options implements browser.Page
func (p *FakePage) Options(ctx context.Context, el browser.Element) ([]browser.Option, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(el)
	if err != nil {
		return nil, err
	}
	current := valueOf(s)
	var opts []browser.Option
	s.Find("option").Each(func(_ int, o *goquery.Selection) {
		v := o.AttrOr("value", optionText(o))
		_, selected := o.Attr("selected")
		opts = append(opts, browser.Option{Value: v, Text: optionText(o), Selected: selected && v == current})
	})
	return opts, nil
}

// SelectByValue implements browser.Page
func (p *FakePage) SelectByValue(ctx context.Context, el browser.Element, value string) error {
	return p.selectOption(el, "selectvalue", value, func(o *goquery.Selection) bool {
		return o.AttrOr("value", optionText(o)) == value
	})
}

// SelectByText implements browser.Page
func (p *FakePage) SelectByText(ctx context.Context, el browser.Element, text string) error {
	return p.selectOption(el, "selecttext", text, func(o *goquery.Selection) bool {
		return optionText(o) == text
	})
}

func (p *FakePage) selectOption(el browser.Element, kind, arg string, match func(*goquery.Selection) bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(el)
	if err != nil {
		return err
	}
	p.record("%s:%s=%s", kind, labelOf(s), arg)
	if p.readOnly[s.AttrOr("id", "")] {
		return nil
	}
	if s.Find("option").FilterFunction(func(_ int, o *goquery.Selection) bool { return match(o) }).Length() == 0 {
		return fmt.Errorf("%w: %q", browser.ErrNoSuchOption, arg)
	}
	selectWhere(s, match)
	return nil
}

// Frames implements browser.Page
func (p *FakePage) Frames(ctx context.Context) ([]browser.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(); err != nil {
		return nil, err
	}
	var frames []browser.Frame
	p.current().Find("frame, iframe").Each(func(i int, s *goquery.Selection) {
		frames = append(frames, browser.Frame{
			Tag:   goquery.NodeName(s),
			ID:    s.AttrOr("id", ""),
			Name:  s.AttrOr("name", ""),
			Src:   s.AttrOr("src", ""),
			Index: i,
		})
	})
	return frames, nil
}

// EnterFrame implements browser.Page
func (p *FakePage) EnterFrame(ctx context.Context, f browser.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.alive(); err != nil {
		return err
	}
	if f.Index >= p.current().Find("frame, iframe").Length() {
		return fmt.Errorf("%w: index %d", browser.ErrNoSuchFrame, f.Index)
	}

	key := p.frameKey(f)
	doc, ok := p.frameDocs[key]
	if !ok {
		html, registered := p.frames[key]
		if !registered {
			html = "<html><body></body></html>"
		}
		doc = mustParse(html)
		p.frameDocs[key] = doc
	}
	p.stack = append(p.stack, doc)
	p.record("frame:%s", key)
	return nil
}

func (p *FakePage) frameKey(f browser.Frame) string {
	for _, k := range []string{f.Name, f.ID, f.Src} {
		if k == "" {
			continue
		}
		if _, ok := p.frames[k]; ok {
			return k
		}
	}
	switch {
	case f.Name != "":
		return f.Name
	case f.ID != "":
		return f.ID
	}
	return fmt.Sprintf("%s#%d", f.Src, f.Index)
}

// SwitchToRoot implements browser.Page
func (p *FakePage) SwitchToRoot(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stack = nil
	return nil
}
