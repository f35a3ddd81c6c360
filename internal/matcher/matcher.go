// Package matcher implements the rule matching engine.
package matcher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"receptionist/internal/model"
)

// Evaluate reports whether any condition of the rule matches the message.
// Conditions are OR-ed: a rule fires when at least one of them triggers, and a
// rule without conditions never fires.
func Evaluate(rule model.Rule, text string) bool {
	for _, c := range rule.Conditions {
		if ShouldTrigger(c, text) {
			return true
		}
	}
	return false
}

// Matching returns the rules whose conditions match the message, in order.
func Matching(rules []model.Rule, text string) []model.Rule {
	var matched []model.Rule
	for _, r := range rules {
		if Evaluate(r, text) {
			matched = append(matched, r)
		}
	}
	return matched
}

// ShouldTrigger reports whether a single condition matches the message.
//
// Patterns are validated when a rule is edited. A pattern that no longer
// compiles here is a configuration fault and panics.
func ShouldTrigger(c model.Condition, text string) bool {
	switch c.Kind {
	case model.ConditionPhrase:
		if c.Value == "" {
			return false
		}
		return containsWord(text, c.Value)
	case model.ConditionRegex:
		return regexp.MustCompile(c.Value).MatchString(text)
	}
	return false
}

// containsWord reports whether phrase occurs in text with a word boundary on
// both ends. Word characters are Unicode letters, digits, marks and
// connector punctuation.
func containsWord(text, phrase string) bool {
	first, _ := utf8.DecodeRuneInString(phrase)
	last, _ := utf8.DecodeLastRuneInString(phrase)
	for offset := 0; offset <= len(text)-len(phrase); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		if boundary(runeBefore(text, start), first) && boundary(last, runeAfter(text, end)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func boundary(a, b rune) bool {
	return isWordRune(a) != isWordRune(b)
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || unicode.Is(unicode.Pc, r)
}

func runeBefore(s string, i int) rune {
	if i == 0 {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r
}

func runeAfter(s string, i int) rune {
	if i >= len(s) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r
}
