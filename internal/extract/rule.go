// Package extract turns rendered listing text into structured fields using
// ordered pattern rules, and applies the acceptance thresholds.
package extract

import (
	"regexp"
	"strings"
)

// Source selects which part of a page a rule reads.
type Source int

// Sources a rule can read from.
const (
	FromTitle Source = iota
	FromBody
)

// Document is the rendered text of one detail page.
type Document struct {
	Title string
	Body  string
}

func (d Document) text(src Source) string {
	if src == FromTitle {
		return d.Title
	}
	return d.Body
}

// Rule tries to pull a single field value out of a document.
type Rule interface {
	Match(doc Document) (string, bool)
}

// regexRule matches pattern against one source. With perLine set, lines are
// tried in order and the first matching line wins.
type regexRule struct {
	source  Source
	pattern *regexp.Regexp
	group   int
	perLine bool
	format  func(groups []string) string
}

func (r regexRule) Match(doc Document) (string, bool) {
	text := doc.text(r.source)
	if text == "" {
		return "", false
	}
	if !r.perLine {
		return r.apply(text)
	}
	for _, line := range strings.Split(text, "\n") {
		if v, ok := r.apply(line); ok {
			return v, true
		}
	}
	return "", false
}

func (r regexRule) apply(text string) (string, bool) {
	groups := r.pattern.FindStringSubmatch(text)
	if groups == nil {
		return "", false
	}
	if r.format != nil {
		v := r.format(groups)
		return v, v != ""
	}
	if r.group >= len(groups) {
		return "", false
	}
	v := strings.TrimSpace(groups[r.group])
	return v, v != ""
}

// keywordRule yields a fixed value when pattern occurs anywhere in source.
type keywordRule struct {
	source  Source
	pattern *regexp.Regexp
	value   string
}

func (r keywordRule) Match(doc Document) (string, bool) {
	if r.pattern.MatchString(doc.text(r.source)) {
		return r.value, true
	}
	return "", false
}

// FirstMatch returns the value of the first rule that matches.
func FirstMatch(rules []Rule, doc Document) (string, bool) {
	for _, rule := range rules {
		if v, ok := rule.Match(doc); ok {
			return v, true
		}
	}
	return "", false
}
