package browser

import (
	"fmt"
	"strings"
	"unicode"
)

// By selects how a Query matches elements
type By int

const (
	ByCSS By = iota
	ByID
	ByName
	ByText
	ByAttrContains
)

func (b By) String() string {
	switch b {
	case ByCSS:
		return "css"
	case ByID:
		return "id"
	case ByName:
		return "name"
	case ByText:
		return "text"
	case ByAttrContains:
		return "attr-contains"
	}
	return fmt.Sprintf("by(%d)", int(b))
}

// Query describes a set of elements in the current frame. Queries are values:
// an Element keeps the Query that found it so it can be resolved again later.
type Query struct {
	By    By
	Value string
	// Attr is the attribute inspected by ByAttrContains.
	Attr string
	// Tags restricts ByText and ByAttrContains matches; empty means any tag.
	Tags []string
	// Exact makes ByText compare the whole normalized text.
	Exact bool
	// Fold makes ByText case-insensitive.
	Fold bool
}

// CSS matches a CSS selector
func CSS(selector string) Query { return Query{By: ByCSS, Value: selector} }

// ID matches an exact id attribute
func ID(id string) Query { return Query{By: ByID, Value: id} }

// Name matches an exact name attribute
func Name(name string) Query { return Query{By: ByName, Value: name} }

// Text matches elements whose normalized visible text equals text
func Text(text string, tags ...string) Query {
	return Query{By: ByText, Value: text, Tags: tags, Exact: true}
}

// TextContains matches elements whose text contains text, ignoring case
func TextContains(text string, tags ...string) Query {
	return Query{By: ByText, Value: text, Tags: tags, Fold: true}
}

// AttrContains matches elements whose attr contains fragment
func AttrContains(attr, fragment string, tags ...string) Query {
	return Query{By: ByAttrContains, Attr: attr, Value: fragment, Tags: tags}
}

func (q Query) String() string {
	if q.By == ByAttrContains {
		return fmt.Sprintf("%s(%s*=%q in %s)", q.By, q.Attr, q.Value, q.TagSelector())
	}
	return fmt.Sprintf("%s(%q)", q.By, q.Value)
}

// TagSelector is the CSS list of tags the query is restricted to
func (q Query) TagSelector() string {
	if len(q.Tags) == 0 {
		return "*"
	}
	return strings.Join(q.Tags, ", ")
}

// CSSSelector renders the query as CSS when it can be expressed that way
func (q Query) CSSSelector() (string, bool) {
	switch q.By {
	case ByCSS:
		return q.Value, true
	case ByID:
		return fmt.Sprintf("[id=%s]", cssString(q.Value)), true
	case ByName:
		return fmt.Sprintf("[name=%s]", cssString(q.Value)), true
	}
	return "", false
}

// XPath renders text and attribute-contains queries
func (q Query) XPath() string {
	tags := q.Tags
	if len(tags) == 0 {
		tags = []string{"*"}
	}

	var pred string
	switch q.By {
	case ByText:
		subject := "normalize-space(.)"
		value := NormalizeSpace(q.Value)
		if q.Fold {
			subject = fmt.Sprintf("translate(%s, '%s', '%s')", subject, foldUpper, foldLower)
			value = strings.ToLower(value)
		}
		if q.Exact {
			pred = fmt.Sprintf("%s=%s", subject, xpathLiteral(value))
		} else {
			pred = fmt.Sprintf("contains(%s, %s)", subject, xpathLiteral(value))
		}
	case ByAttrContains:
		pred = fmt.Sprintf("contains(@%s, %s)", q.Attr, xpathLiteral(q.Value))
	case ByID:
		pred = fmt.Sprintf("@id=%s", xpathLiteral(q.Value))
	case ByName:
		pred = fmt.Sprintf("@name=%s", xpathLiteral(q.Value))
	default:
		return ""
	}

	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("//%s[%s]", t, pred)
	}
	return strings.Join(parts, " | ")
}

// MatchText applies the ByText comparison to an element's text
func (q Query) MatchText(text string) bool {
	text = NormalizeSpace(text)
	want := NormalizeSpace(q.Value)
	if q.Fold {
		text = strings.ToLower(text)
		want = strings.ToLower(want)
	}
	if q.Exact {
		return text == want
	}
	return strings.Contains(text, want)
}

// MatchAttr applies the ByAttrContains comparison to an attribute value
func (q Query) MatchAttr(value string) bool {
	return strings.Contains(value, q.Value)
}

// NormalizeSpace trims and collapses whitespace like XPath normalize-space()
func NormalizeSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

const (
	foldUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZÁÀÂÃÉÊÍÓÔÕÚÇ"
	foldLower = "abcdefghijklmnopqrstuvwxyzáàâãéêíóôõúç"
)

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
