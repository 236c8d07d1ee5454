package browsertest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/goc-sync/internal/browser"
)

// find evaluates q against doc in document order
func find(doc *goquery.Document, q browser.Query) (*goquery.Selection, error) {
	switch q.By {
	case browser.ByCSS:
		return doc.Find(q.Value), nil
	case browser.ByID:
		return doc.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.AttrOr("id", "") == q.Value
		}), nil
	case browser.ByName:
		return doc.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.AttrOr("name", "") == q.Value
		}), nil
	case browser.ByText:
		return doc.Find(q.TagSelector()).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return q.MatchText(s.Text())
		}), nil
	case browser.ByAttrContains:
		return doc.Find(q.TagSelector()).FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, ok := s.Attr(q.Attr)
			return ok && q.MatchAttr(v)
		}), nil
	}
	return nil, fmt.Errorf("unsupported query %s", q)
}

func describe(s *goquery.Selection, q browser.Query, index int) browser.Element {
	tag := goquery.NodeName(s)
	el := browser.Element{
		Query:     q,
		Index:     index,
		Tag:       tag,
		ID:        s.AttrOr("id", ""),
		Name:      s.AttrOr("name", ""),
		Type:      s.AttrOr("type", ""),
		Href:      s.AttrOr("href", ""),
		Src:       s.AttrOr("src", ""),
		Title:     s.AttrOr("title", ""),
		Class:     s.AttrOr("class", ""),
		AccessKey: s.AttrOr("accesskey", ""),
		OnClick:   s.AttrOr("onclick", ""),
		Target:    s.AttrOr("target", ""),
		Visible:   visible(s),
	}
	_, disabled := s.Attr("disabled")
	el.Enabled = !disabled

	switch tag {
	case "input", "select", "textarea", "option", "button":
		el.Value = valueOf(s)
	}
	if tag != "input" {
		el.Text = browser.NormalizeSpace(s.Text())
	}
	return el
}

func visible(s *goquery.Selection) bool {
	if strings.EqualFold(s.AttrOr("type", ""), "hidden") {
		return false
	}
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

const noSelection = "data-fake-none"

func valueOf(s *goquery.Selection) string {
	switch goquery.NodeName(s) {
	case "select":
		if _, none := s.Attr(noSelection); none {
			return ""
		}
		opts := s.Find("option")
		selected := opts.FilterFunction(func(_ int, o *goquery.Selection) bool {
			_, ok := o.Attr("selected")
			return ok
		})
		if selected.Length() == 0 {
			selected = opts
		}
		if selected.Length() == 0 {
			return ""
		}
		first := selected.First()
		return first.AttrOr("value", optionText(first))
	case "textarea":
		if v, ok := s.Attr("data-fake-value"); ok {
			return v
		}
		return s.Text()
	}
	return s.AttrOr("value", "")
}

func writeValue(s *goquery.Selection, v string) {
	if goquery.NodeName(s) == "textarea" {
		s.SetAttr("data-fake-value", v)
		return
	}
	s.SetAttr("value", v)
}

// selectWhere selects the first option accepted by match; with no match the
// select is left without a selection and reports false
func selectWhere(s *goquery.Selection, match func(*goquery.Selection) bool) bool {
	opts := s.Find("option")
	target := opts.FilterFunction(func(_ int, o *goquery.Selection) bool { return match(o) }).First()
	opts.RemoveAttr("selected")
	if target.Length() == 0 {
		s.SetAttr(noSelection, "1")
		return false
	}
	s.RemoveAttr(noSelection)
	target.SetAttr("selected", "selected")
	return true
}

func optionText(o *goquery.Selection) string {
	return strings.TrimSpace(o.Text())
}

func labelOf(s *goquery.Selection) string {
	if id := s.AttrOr("id", ""); id != "" {
		return id
	}
	if name := s.AttrOr("name", ""); name != "" {
		return name
	}
	return goquery.NodeName(s)
}
