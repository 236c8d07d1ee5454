package browser

import (
	"context"
	"errors"
)

var (
	ErrSessionDead   = errors.New("browser session is dead")
	ErrNoSuchElement = errors.New("element no longer present")
	ErrNoSuchOption  = errors.New("select has no matching option")
	ErrNoSuchFrame   = errors.New("frame not found")
	ErrWaitTimeout   = errors.New("timed out waiting for condition")
)

// Element is a snapshot of a matched node. It is not a live handle: actions
// resolve Query and Index again in the frame that is current at call time.
type Element struct {
	Query Query `json:"-"`
	Index int   `json:"index"`

	Tag       string `json:"tag"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	Value     string `json:"value"`
	Href      string `json:"href"`
	Src       string `json:"src"`
	Title     string `json:"title"`
	Class     string `json:"class"`
	AccessKey string `json:"accesskey"`
	OnClick   string `json:"onclick"`
	Target    string `json:"target"`
	Visible   bool   `json:"visible"`
	Enabled   bool   `json:"enabled"`
}

// Interactable reports whether the element is visible and enabled
func (e Element) Interactable() bool {
	return e.Visible && e.Enabled
}

// Label is a short description for logs
func (e Element) Label() string {
	switch {
	case e.ID != "":
		return e.Tag + "#" + e.ID
	case e.Name != "":
		return e.Tag + "[name=" + e.Name + "]"
	case e.Text != "":
		return e.Tag + "(" + e.Text + ")"
	}
	return e.Tag
}

// Option is one entry of a select element
type Option struct {
	Value    string `json:"value"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// Frame describes a frame or iframe of the current document
type Frame struct {
	Tag   string `json:"tag"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Src   string `json:"src"`
	Index int    `json:"index"`
}

// Page is the scriptable page context of a session. Element lookups and
// actions are relative to the current frame; Navigate resets it to the root.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Evaluate runs script in the current frame's window and decodes its result into out (may be nil).
	Evaluate(ctx context.Context, script string, out interface{}) error

	FindAll(ctx context.Context, q Query) ([]Element, error)
	Click(ctx context.Context, el Element) error
	ScriptClick(ctx context.Context, el Element) error
	ScrollIntoView(ctx context.Context, el Element) error
	Focus(ctx context.Context, el Element) error

	// SetValue assigns value by script and dispatches the named events.
	SetValue(ctx context.Context, el Element, value string, events ...string) error
	Value(ctx context.Context, el Element) (string, error)
	Clear(ctx context.Context, el Element) error
	TypeText(ctx context.Context, el Element, text string) error

	Options(ctx context.Context, el Element) ([]Option, error)
	SelectByValue(ctx context.Context, el Element, value string) error
	SelectByText(ctx context.Context, el Element, text string) error

	Frames(ctx context.Context) ([]Frame, error)
	EnterFrame(ctx context.Context, f Frame) error
	SwitchToRoot(ctx context.Context) error
}

// FirstInteractable returns the first visible and enabled element
func FirstInteractable(els []Element) (Element, bool) {
	for _, el := range els {
		if el.Interactable() {
			return el, true
		}
	}
	return Element{}, false
}

// FirstVisible returns the first visible element
func FirstVisible(els []Element) (Element, bool) {
	for _, el := range els {
		if el.Visible {
			return el, true
		}
	}
	return Element{}, false
}
