package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/models"
)

const (
	DefaultAppointmentTime = "09:00"
	UnknownVaccine         = "Vacina não especificada"
	UnknownPhone           = "Não informado"
)

// cellContentsScript reads the calendar's per-day HTML map
const cellContentsScript = `(function(){ return (typeof cellContents === 'undefined') ? null : JSON.parse(JSON.stringify(cellContents)); })()`

var (
	appointmentBlockRe = regexp.MustCompile(`(?is)<div align=left style="[^"]*margin: 1px;[^"]*background-color: #F4511E[^"]*"[^>]*>(.*?)</div>`)
	fontRe             = regexp.MustCompile(`(?is)<font[^>]*>(.*?)</font>`)
	lineBreakRe        = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe              = regexp.MustCompile(`<[^>]+>`)
	timeRe             = regexp.MustCompile(`\d{1,2}:\d{2}`)
	phoneRe            = regexp.MustCompile(`\d{2}\s*\d{4,5}-\d{4}`)
	cellContentsVarRe  = regexp.MustCompile(`(?s)var\s+cellContents\s*=\s*(\{.*?\});`)
	trailingCommaRe    = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseAppointmentBlock reads one appointment div: the first line holds the
// time and patient name, the second the vaccine, the rest observations.
func ParseAppointmentBlock(date, block string) (models.Appointment, bool) {
	font := fontRe.FindStringSubmatch(block)
	if font == nil {
		return models.Appointment{}, false
	}

	var lines []string
	for _, part := range lineBreakRe.Split(font[1], -1) {
		line := strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(part, "")))
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return models.Appointment{}, false
	}

	a := models.Appointment{
		Date:        date,
		Time:        DefaultAppointmentTime,
		PatientName: lines[0],
		VaccineInfo: UnknownVaccine,
		Phone:       UnknownPhone,
		Lines:       lines,
	}
	if t := timeRe.FindString(lines[0]); t != "" {
		a.Time = t
		a.PatientName = strings.TrimSpace(strings.Replace(lines[0], t, "", 1))
	}
	if len(lines) > 1 {
		a.VaccineInfo = lines[1]
	}
	if len(lines) > 2 {
		a.Observations = strings.Join(lines[2:], " | ")
	}
	if phone := phoneRe.FindString(block); phone != "" {
		a.Phone = phone
	}
	return a, true
}

// ParseDayAppointments extracts every appointment block of one day cell
func ParseDayAppointments(date, cell string) []models.Appointment {
	var out []models.Appointment
	for _, m := range appointmentBlockRe.FindAllStringSubmatch(cell, -1) {
		if a, ok := ParseAppointmentBlock(date, m[1]); ok {
			out = append(out, a)
		}
	}
	return out
}

// ParseCellContents turns the day→HTML map into appointments ordered by day,
// dropping repeated (date, time, patient) entries
func ParseCellContents(cells map[string]string) []models.Appointment {
	dates := make([]string, 0, len(cells))
	for d := range cells {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool {
		ti, erri := time.Parse("02-01-2006", dates[i])
		tj, errj := time.Parse("02-01-2006", dates[j])
		if erri != nil || errj != nil || ti.Equal(tj) {
			return dates[i] < dates[j]
		}
		return ti.Before(tj)
	})

	seen := make(map[string]struct{})
	var out []models.Appointment
	for _, d := range dates {
		for _, a := range ParseDayAppointments(d, cells[d]) {
			if _, dup := seen[a.Key()]; dup {
				continue
			}
			seen[a.Key()] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// JSObjectToJSON rewrites a JavaScript object literal as JSON: single-quoted
// strings become double-quoted, raw newlines are escaped and trailing commas
// are dropped.
func JSObjectToJSON(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	var quote rune
	escaped := false
	for _, r := range src {
		if quote == 0 {
			switch r {
			case '\'', '"':
				quote = r
				b.WriteRune('"')
			default:
				b.WriteRune(r)
			}
			continue
		}

		if escaped {
			escaped = false
			if r == '\'' {
				b.WriteRune('\'')
			} else {
				b.WriteRune('\\')
				b.WriteRune(r)
			}
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case quote:
			quote = 0
			b.WriteRune('"')
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return trailingCommaRe.ReplaceAllString(b.String(), "$1")
}

// CellContentsFromHTML finds the cellContents assignment in the page source
func CellContentsFromHTML(source string) (map[string]string, error) {
	m := cellContentsVarRe.FindStringSubmatch(source)
	if m == nil {
		return nil, fmt.Errorf("%w: cellContents not found in page source", ErrParsingFailed)
	}
	var cells map[string]string
	if err := json.Unmarshal([]byte(JSObjectToJSON(m[1])), &cells); err != nil {
		return nil, fmt.Errorf("%w: cellContents: %v", ErrParsingFailed, err)
	}
	return cells, nil
}

// CalendarExtractor reads the appointment calendar
type CalendarExtractor struct {
	portal *Portal
	nav    *Navigator
	auth   *Authenticator
}

// NewCalendarExtractor creates a calendar extractor on one portal session
func NewCalendarExtractor(portal *Portal, auth *Authenticator) *CalendarExtractor {
	return &CalendarExtractor{portal: portal, nav: NewNavigator(portal, auth), auth: auth}
}

// Extract returns the appointments of the visible calendar period
func (e *CalendarExtractor) Extract(ctx context.Context) ([]models.Appointment, error) {
	p := e.portal
	if err := e.auth.EnsureLogin(ctx); err != nil {
		return nil, err
	}
	if err := e.nav.Open(ctx, p.Config.Portal.CalendarPath); err != nil {
		return nil, err
	}
	if err := p.waitPresent(ctx, browser.ID(SelectorDatePicker), p.Config.Portal.BodyTimeout); err != nil {
		return nil, wrap("extract calendar", "wait calendar", p.location(ctx), ErrContentNotLoaded, SelectorDatePicker)
	}

	cells, err := e.cellContents(ctx)
	if err != nil {
		return nil, wrap("extract calendar", "read cellContents", p.location(ctx), err, "")
	}
	appointments := ParseCellContents(cells)
	p.Logger.WithField("days", len(cells)).WithField("appointments", len(appointments)).Info("Calendar extracted")
	return appointments, nil
}

// cellContents reads the script variable, falling back to the page source
func (e *CalendarExtractor) cellContents(ctx context.Context) (map[string]string, error) {
	p := e.portal
	var cells map[string]string
	err := p.Page.Evaluate(ctx, cellContentsScript, &cells)
	if err == nil && cells != nil {
		return cells, nil
	}
	if err != nil {
		p.Logger.WithError(err).Debug("cellContents script failed, parsing page source")
	}

	source, err := p.Page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return CellContentsFromHTML(source)
}
