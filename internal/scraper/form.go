package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	fieldWait  = 3 * time.Second
	retryPause = 500 * time.Millisecond
)

// Form drives the new patient FormView inside the content frame
type Form struct {
	portal  *Portal
	fields  []FieldMapping
	retries int
}

// NewForm creates a form filler for fields
func NewForm(portal *Portal, fields []FieldMapping) *Form {
	return &Form{portal: portal, fields: fields, retries: max(portal.Config.Sync.FieldRetries, 1)}
}

func imageInput(el browser.Element) bool {
	return el.Tag == "input" && strings.EqualFold(el.Type, "image")
}

func titled(title string) func(browser.Element) bool {
	return func(el browser.Element) bool { return strings.EqualFold(strings.TrimSpace(el.Title), title) }
}

// newEntryStrategies find the "Novo" image button under the patient grid
var newEntryStrategies = []Strategy{
	{Name: "title", Query: browser.CSS("input[type='image']"), Filter: titled("Novo")},
	{Name: "accesskey", Query: browser.CSS("input[type='image'][accesskey='N']")},
	{Name: "icon", Query: browser.CSS("input[src*='page_white']")},
	{Name: "id", Query: browser.CSS("input[id*='ImageButton1']")},
	{Name: "form view id", Query: browser.CSS("input[type='image'][id*='FormView1_ImageButton1']")},
	{Name: "scan", Query: browser.CSS("input"), Filter: func(el browser.Element) bool {
		return imageInput(el) && (strings.Contains(strings.ToLower(el.Title), "novo") || el.AccessKey == "N")
	}},
}

// submitStrategies find the "Gravar" image button of the FormView
var submitStrategies = []Strategy{
	{Name: "title", Query: browser.CSS("input[type='image']"), Filter: titled("Gravar")},
	{Name: "icon", Query: browser.CSS("input[src*='accept']")},
	{Name: "id", Query: browser.CSS("input[id*='BtnGravar']")},
	{Name: "form view id", Query: browser.CSS("input[id*='FormView1_BtnGravar']")},
	{Name: "scan", Query: browser.CSS("input"), Filter: func(el browser.Element) bool {
		return imageInput(el) && (strings.Contains(strings.ToLower(el.Title), "gravar") ||
			strings.Contains(strings.ToLower(el.Src), "accept") ||
			strings.Contains(el.ID, "BtnGravar"))
	}},
}

const scrollToBottom = `window.scrollTo(0, document.body.scrollHeight); true`

// OpenNewEntry clicks "Novo" and waits for the name field or the dialog
func (f *Form) OpenNewEntry(ctx context.Context) error {
	p := f.portal
	_ = p.Page.Evaluate(ctx, scrollToBottom, nil)

	button, s, err := FindFirst(ctx, p.Page, newEntryStrategies)
	if err != nil {
		return wrap("open new entry", "locate button", p.location(ctx), err, "Novo")
	}
	p.Logger.WithField("strategy", s.Name).Debug("New entry button located")

	if err := p.click(ctx, button); err != nil {
		return wrap("open new entry", "click", p.location(ctx), err, button.Label())
	}
	if err := p.sleep(ctx, p.Config.Portal.ActionSettle); err != nil {
		return err
	}

	wait := p.Config.Browser.ImplicitWait + p.Config.Portal.ActionSettle*2
	nameField := browser.AttrContains("id", SelectorFormNameField, "input")
	if _, err := p.waitFor(ctx, nameField, wait); err == nil {
		return nil
	}
	if _, err := p.waitFor(ctx, browser.ID(SelectorNewEntryDialog), p.Config.Portal.ActionSettle); err == nil {
		return nil
	}
	return wrap("open new entry", "wait form", p.location(ctx), ErrFormNotOpened, "")
}

// FillAll writes every mapped answer. A required field that cannot be
// located or filled aborts; optional failures are logged and skipped.
func (f *Form) FillAll(ctx context.Context, resp models.FormResponse) ([]string, error) {
	p := f.portal
	if len(f.fields) > 0 {
		if _, _, err := Locate(ctx, p.Page, p.Clock, f.fields[0].Strategies(), p.Config.Browser.ImplicitWait, p.Config.Browser.PollInterval); err != nil {
			return nil, wrap("fill form", "wait form", p.location(ctx), err, f.fields[0].Label)
		}
	}

	var filled []string
	for _, m := range f.fields {
		raw := resp.Get(m.Label)
		if raw == "" && !m.Required {
			continue
		}
		value := m.Value(raw)
		if value == "" && !m.Required {
			p.Logger.WithField("field", m.Label).Debug("No portal value for answer, skipping")
			continue
		}

		if err := f.Fill(ctx, m, value); err != nil {
			if errors.Is(err, browser.ErrSessionDead) {
				return filled, err
			}
			if m.Required {
				return filled, wrap("fill form", "required field", p.location(ctx), err,
					fmt.Sprintf("Campo obrigatório não preenchido: %s", m.Label))
			}
			p.Logger.WithFields(logrus.Fields{
				"field": m.Label,
				"error": err.Error(),
			}).Warn("Optional field not filled")
			continue
		}
		filled = append(filled, m.Label)
	}
	return filled, nil
}

// Fill locates the control of m and writes value, retrying when the value
// does not stick
func (f *Form) Fill(ctx context.Context, m FieldMapping, value string) error {
	p := f.portal
	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		el, _, err := Locate(ctx, p.Page, p.Clock, m.Strategies(), fieldWait, p.Config.Browser.PollInterval)
		if err != nil {
			return err
		}
		_ = p.Page.ScrollIntoView(ctx, el)
		_ = p.Page.Focus(ctx, el)

		if m.Kind == SelectField {
			err = f.fillSelect(ctx, m, el, value)
		} else {
			err = f.fillText(ctx, el, value)
		}
		if err == nil {
			p.Logger.WithFields(logrus.Fields{
				"field":   m.Label,
				"attempt": attempt,
			}).Debug("Field filled")
			return nil
		}
		if errors.Is(err, browser.ErrSessionDead) {
			return err
		}
		lastErr = err
		if err := p.sleep(ctx, retryPause); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", m.Label, f.retries, lastErr)
}

func (f *Form) fillText(ctx context.Context, el browser.Element, value string) error {
	page := f.portal.Page
	if err := page.SetValue(ctx, el, ""); err != nil {
		if err := page.Clear(ctx, el); err != nil {
			return err
		}
	}
	if err := page.SetValue(ctx, el, value, "input", "change"); err != nil {
		if err := page.TypeText(ctx, el, value); err != nil {
			return err
		}
	}
	got, err := page.Value(ctx, el)
	if err != nil {
		return err
	}
	if strings.TrimSpace(got) == "" {
		return ErrFieldNotFilled
	}
	return nil
}

// fillSelect tries script assignment, exact value, exact text, partial
// match and finally synonyms, in that order
func (f *Form) fillSelect(ctx context.Context, m FieldMapping, el browser.Element, value string) error {
	page := f.portal.Page

	if err := page.SetValue(ctx, el, value, "change"); err == nil {
		if got, err := page.Value(ctx, el); err == nil && got == value {
			return nil
		}
	}
	if err := page.SelectByValue(ctx, el, value); err == nil {
		return nil
	}
	if err := page.SelectByText(ctx, el, value); err == nil {
		return nil
	}

	options, err := page.Options(ctx, el)
	if err != nil {
		return err
	}
	if opt, ok := partialOption(options, value); ok {
		if err := page.SelectByValue(ctx, el, opt.Value); err == nil {
			return nil
		}
	}

	if m.Label == models.FieldGender {
		for _, synonym := range genderSynonyms[NormalizeGender(value)] {
			if page.SelectByText(ctx, el, synonym) == nil || page.SelectByValue(ctx, el, synonym) == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: no option matches %q", browser.ErrNoSuchOption, value)
}

// partialOption matches value against option text, then option value,
// ignoring case and in both directions
func partialOption(options []browser.Option, value string) (browser.Option, bool) {
	want := strings.ToLower(strings.TrimSpace(value))
	if want == "" {
		return browser.Option{}, false
	}
	related := func(s string) bool {
		s = strings.ToLower(strings.TrimSpace(s))
		return s != "" && (strings.Contains(s, want) || strings.Contains(want, s))
	}
	for _, opt := range options {
		if related(opt.Text) {
			return opt, true
		}
	}
	for _, opt := range options {
		if related(opt.Value) {
			return opt, true
		}
	}
	return browser.Option{}, false
}

// Submit clicks "Gravar" by script and waits for the postback to settle
func (f *Form) Submit(ctx context.Context) error {
	p := f.portal
	button, s, err := FindFirst(ctx, p.Page, submitStrategies)
	if err != nil {
		return wrap("submit", "locate button", p.location(ctx), ErrSubmitNotFound, "Gravar")
	}
	p.Logger.WithField("strategy", s.Name).Debug("Submit button located")

	_ = p.Page.ScrollIntoView(ctx, button)
	if err := p.Page.ScriptClick(ctx, button); err != nil {
		return wrap("submit", "click", p.location(ctx), err, button.Label())
	}
	return p.sleep(ctx, p.Config.Portal.ActionSettle)
}

// SubmitResult is the portal's answer to a submission
type SubmitResult struct {
	Success   bool
	Duplicate bool
	Message   string
	PatientID string
}

var (
	urlIDRe = regexp.MustCompile(`(?i)[?&]id=(\d+)`)
	digitRe = regexp.MustCompile(`\d+`)
)

// DefaultSuccessMessage is reported when the portal shows no indicator
const DefaultSuccessMessage = "Cadastro realizado com sucesso"

// InterpretResult reads the post-submit DOM. With no success or error
// indicator the submission counts as accepted.
func (f *Form) InterpretResult(ctx context.Context) SubmitResult {
	p := f.portal
	for _, sel := range successIndicators {
		els, err := p.Page.FindAll(ctx, browser.CSS(sel))
		if err != nil {
			continue
		}
		for _, el := range els {
			text := strings.TrimSpace(el.Text)
			if el.Visible && containsAny(strings.ToLower(text), successWords) {
				return SubmitResult{Success: true, Message: text, PatientID: f.patientID(ctx)}
			}
		}
	}

	if text, ok := p.visibleText(ctx, errorIndicators); ok {
		return SubmitResult{
			Message:   text,
			Duplicate: containsAny(strings.ToLower(text), duplicateWords),
		}
	}
	return SubmitResult{Success: true, Message: DefaultSuccessMessage, PatientID: f.patientID(ctx)}
}

func (f *Form) patientID(ctx context.Context) string {
	p := f.portal
	if m := urlIDRe.FindStringSubmatch(p.location(ctx)); m != nil {
		return m[1]
	}
	for _, sel := range resultIDSelectors {
		els, err := p.Page.FindAll(ctx, browser.CSS(sel))
		if err != nil {
			continue
		}
		for _, el := range els {
			if id := digitRe.FindString(el.Text); id != "" {
				return id
			}
		}
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
