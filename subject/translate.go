package subject

import "github.com/arc-self/alchemist-core/kernel"

// TranslateRule is one rewrite rule: if Match matches a subject, Rewrite
// produces the replacement subject. Rules are evaluated in registration
// order; the first match wins (spec.md §4.4).
type TranslateRule struct {
	Match   Pattern
	Rewrite func(kernel.Subject) kernel.Subject
}

// Translator applies an ordered list of TranslateRules, e.g. for
// environment-prefix swaps or legacy→current subject migrations.
type Translator struct {
	rules []TranslateRule
}

// NewTranslator builds a Translator from rules in registration order.
func NewTranslator(rules ...TranslateRule) *Translator {
	return &Translator{rules: rules}
}

// Translate returns the rewritten subject for the first matching rule, or
// s unchanged if no rule matches.
func (t *Translator) Translate(s kernel.Subject) kernel.Subject {
	for _, r := range t.rules {
		if r.Match.Matches(s) {
			return r.Rewrite(s)
		}
	}
	return s
}
