// Package personalize fills {placeholder} fields in message templates from
// recipient records.
package personalize

import (
	"regexp"
	"sort"

	"github.com/blockedby/outreach/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Result is the outcome of filling one template string.
type Result struct {
	Text    string
	Missing []string
}

// OK reports whether every placeholder was resolved.
func (r Result) OK() bool {
	return len(r.Missing) == 0
}

// Placeholders lists the distinct placeholder names in text, in order of
// first appearance.
func Placeholders(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Fill substitutes every placeholder in text with the record value of the
// same name. If any placeholder is absent from the record, the text is
// returned unmodified together with the missing names.
func Fill(text string, rec models.Record) Result {
	var missing []string
	for _, name := range Placeholders(text) {
		if _, ok := rec[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Result{Text: text, Missing: missing}
	}

	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		return rec[m[1:len(m)-1]]
	})
	return Result{Text: out}
}

// Outcome aggregates the results of filling a whole template set.
type Outcome struct {
	Missing []string
}

// OK reports whether every part of the template was personalized.
func (o Outcome) OK() bool {
	return len(o.Missing) == 0
}

// Apply personalizes subject, body and html of tmpl against rec. Parts with
// missing keys fall back to their raw text; the union of missing names is
// reported in the outcome, sorted.
func Apply(tmpl models.Template, rec models.Record) (models.Template, Outcome) {
	subject := Fill(tmpl.Subject, rec)
	body := Fill(tmpl.Body, rec)
	html := Fill(tmpl.HTML, rec)

	set := make(map[string]bool)
	for _, r := range []Result{subject, body, html} {
		for _, name := range r.Missing {
			set[name] = true
		}
	}
	missing := make([]string, 0, len(set))
	for name := range set {
		missing = append(missing, name)
	}
	sort.Strings(missing)

	out := models.Template{
		Subject: subject.Text,
		Body:    body.Text,
		HTML:    html.Text,
	}
	if len(missing) == 0 {
		return out, Outcome{}
	}
	return out, Outcome{Missing: missing}
}
