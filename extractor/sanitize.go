package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// boilerplateElements never carry article content.
const boilerplateElements = "script, style, nav, aside, footer, header, iframe, form, noscript"

// noisePattern matches class or id tokens of ads, share widgets and overlays.
// Tokens are split on '-', '_' and whitespace so that "header-ad" matches but "heading" does not.
var noisePattern = regexp.MustCompile(`(?i)(^|[-_\s])(ad|ads|advertisement|social|share|related|sidebar|popup|modal)($|[-_\s])`)

// keptWhenEmpty are elements that are content on their own.
var keptWhenEmpty = map[string]bool{
	"img": true,
	"br":  true,
	"hr":  true,
	"p":   true,
}

var ugcPolicy = bluemonday.UGCPolicy()

// sanitize cleans the descendants of content and returns its inner HTML.
// content is modified in place; callers pass a clone.
func sanitize(content *goquery.Selection) string {
	content.Find(boilerplateElements).Remove()

	content.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if noisePattern.MatchString(class) || noisePattern.MatchString(id) {
			s.Remove()
		}
	})

	removeEmpty(content)

	inner, err := content.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ugcPolicy.Sanitize(inner))
}

// removeEmpty drops elements without text, unless they are kept elements or
// still contain one (an image inside a figure keeps the figure).
func removeEmpty(content *goquery.Selection) {
	content.Find("*").Each(func(_ int, s *goquery.Selection) {
		if keptWhenEmpty[goquery.NodeName(s)] {
			return
		}
		if strings.TrimSpace(s.Text()) != "" {
			return
		}
		if s.Find("img, br, hr").Length() > 0 {
			return
		}
		s.Remove()
	})
}
