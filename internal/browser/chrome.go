package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

//go:embed runtime.js
var runtimeJS string

// ChromePage implements Page on top of a chromedp tab. Frame switching is
// emulated with a path of frame indexes resolved by the injected runtime.
type ChromePage struct {
	tab         context.Context
	loadTimeout time.Duration

	mu   sync.Mutex
	path []int
}

// NewChromePage wraps a chromedp tab context
func NewChromePage(tab context.Context, loadTimeout time.Duration) *ChromePage {
	return &ChromePage{tab: tab, loadTimeout: loadTimeout}
}

// run executes actions on the tab while honoring the caller's cancellation and deadline
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if p.tab.Err() != nil {
			return fmt.Errorf("%w: %v", ErrSessionDead, err)
		}
		return err
	}
	return nil
}

func (p *ChromePage) currentPath() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.path))
	copy(out, p.path)
	return out
}

// call invokes a runtime function with JSON-encoded arguments
func (p *ChromePage) call(ctx context.Context, out interface{}, fn string, args ...interface{}) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode argument for %s: %w", fn, err)
		}
		encoded[i] = string(b)
	}
	expr := runtimeJS + "\nwindow.__gocsync." + fn + "(" + strings.Join(encoded, ", ") + ");"

	var raw []byte
	if err := p.run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func jsQuery(q Query) map[string]string {
	if css, ok := q.CSSSelector(); ok {
		return map[string]string{"css": css}
	}
	return map[string]string{"xpath": q.XPath()}
}

func (p *ChromePage) act(ctx context.Context, el Element, op string, arg interface{}, out interface{}) error {
	err := p.call(ctx, out, "act", p.currentPath(), jsQuery(el.Query), el.Index, op, arg)
	if err != nil && strings.Contains(err.Error(), "no such element") {
		return fmt.Errorf("%w: %s", ErrNoSuchElement, el.Label())
	}
	return err
}

// Navigate loads url in the top-level document and resets the frame context
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.path = nil
	p.mu.Unlock()

	if p.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.loadTimeout)
		defer cancel()
	}
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Location returns the top-level URL
func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// HTML returns the current frame's document source
func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.call(ctx, &html, "html", p.currentPath())
	return html, err
}

// Screenshot captures the viewport as PNG
func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Evaluate runs script in the current frame's window
func (p *ChromePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	return p.call(ctx, out, "eval", p.currentPath(), script)
}

// FindAll lists the elements matching q in the current frame
func (p *ChromePage) FindAll(ctx context.Context, q Query) ([]Element, error) {
	var els []Element
	if err := p.call(ctx, &els, "all", p.currentPath(), jsQuery(q)); err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", q, err)
	}
	for i := range els {
		els[i].Query = q
	}
	return els, nil
}

// Click dispatches a native mouse click at the element's center
func (p *ChromePage) Click(ctx context.Context, el Element) error {
	var pt struct{ X, Y float64 }
	if err := p.act(ctx, el, "center", nil, &pt); err != nil {
		return err
	}
	return p.run(ctx, chromedp.MouseClickXY(pt.X, pt.Y))
}

// ScriptClick calls element.click() from script
func (p *ChromePage) ScriptClick(ctx context.Context, el Element) error {
	return p.act(ctx, el, "click", nil, nil)
}

func (p *ChromePage) ScrollIntoView(ctx context.Context, el Element) error {
	return p.act(ctx, el, "scroll", nil, nil)
}

func (p *ChromePage) Focus(ctx context.Context, el Element) error {
	return p.act(ctx, el, "focus", nil, nil)
}

func (p *ChromePage) SetValue(ctx context.Context, el Element, value string, events ...string) error {
	if events == nil {
		events = []string{}
	}
	return p.act(ctx, el, "set", map[string]interface{}{"value": value, "events": events}, nil)
}

func (p *ChromePage) Value(ctx context.Context, el Element) (string, error) {
	var v string
	err := p.act(ctx, el, "value", nil, &v)
	return v, err
}

// Clear selects the field content and deletes it with a native key press
func (p *ChromePage) Clear(ctx context.Context, el Element) error {
	if err := p.act(ctx, el, "select", nil, nil); err != nil {
		return err
	}
	return p.run(ctx, chromedp.KeyEvent(kb.Backspace))
}

// TypeText focuses the element and sends native key events
func (p *ChromePage) TypeText(ctx context.Context, el Element, text string) error {
	if err := p.act(ctx, el, "focus", nil, nil); err != nil {
		return err
	}
	return p.run(ctx, chromedp.KeyEvent(text))
}

func (p *ChromePage) Options(ctx context.Context, el Element) ([]Option, error) {
	var opts []Option
	err := p.act(ctx, el, "options", nil, &opts)
	return opts, err
}

func (p *ChromePage) SelectByValue(ctx context.Context, el Element, value string) error {
	return p.selectOption(ctx, el, "selectValue", value)
}

func (p *ChromePage) SelectByText(ctx context.Context, el Element, text string) error {
	return p.selectOption(ctx, el, "selectText", text)
}

func (p *ChromePage) selectOption(ctx context.Context, el Element, op, arg string) error {
	var ok bool
	if err := p.act(ctx, el, op, arg, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrNoSuchOption, arg, el.Label())
	}
	return nil
}

// Frames lists frame and iframe elements of the current document
func (p *ChromePage) Frames(ctx context.Context) ([]Frame, error) {
	var frames []Frame
	err := p.call(ctx, &frames, "frameList", p.currentPath())
	return frames, err
}

// EnterFrame makes f the current frame
func (p *ChromePage) EnterFrame(ctx context.Context, f Frame) error {
	next := append(p.currentPath(), f.Index)
	var html string
	if err := p.call(ctx, &html, "html", next); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoSuchFrame, frameLabel(f), err)
	}

	p.mu.Lock()
	p.path = next
	p.mu.Unlock()
	return nil
}

// SwitchToRoot returns to the top-level document
func (p *ChromePage) SwitchToRoot(ctx context.Context) error {
	p.mu.Lock()
	p.path = nil
	p.mu.Unlock()
	return nil
}

func frameLabel(f Frame) string {
	switch {
	case f.Name != "":
		return f.Tag + "[name=" + f.Name + "]"
	case f.ID != "":
		return f.Tag + "#" + f.ID
	}
	return fmt.Sprintf("%s[%d]", f.Tag, f.Index)
}
