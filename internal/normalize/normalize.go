// Package normalize turns a free-form model reply into render-ready LaTeX.
//
// The pipeline is pure and deterministic: fence stripping, lead-in removal,
// one layer of math delimiter unwrapping, a best-effort fallback scan for
// embedded math, and canonical spacing. Normalize(Normalize(x).Text) yields
// the same text as Normalize(x) for any reply the pipeline accepts.
package normalize

import (
	"regexp"
	"strings"

	"github.com/null12138/AI4LATEX/pkg/vision"
)

// Unresolved is returned when nothing resembling a formula survives.
const Unresolved = "no formula recognized"

// Formula is the normalized result. Text is never empty.
type Formula struct {
	Text      string
	Confident bool
}

var (
	commandRe = regexp.MustCompile(`\\[a-zA-Z]+`)
	markupRe  = regexp.MustCompile(`[{}\\^_]`)
	displayRe = regexp.MustCompile(`\$\$([^$]+)\$\$`)
	inlineRe  = regexp.MustCompile(`\$([^$]+)\$`)
)

// LooksLikeMarkup reports whether s contains a LaTeX command or one of the
// structural characters { } \ ^ _.
func LooksLikeMarkup(s string) bool {
	return commandRe.MatchString(s) || markupRe.MatchString(s)
}

// Normalize cleans a raw reply.
func Normalize(raw string) Formula {
	s := strings.TrimSpace(raw)
	s = applyAll(FenceRules, s)
	s = applyUntilStable(PreambleRules, s)
	s = strings.TrimSpace(s)
	s = unwrapDelimiters(s)
	s = strings.TrimSpace(applyUntilStable(PreambleRules, s))

	if s != "" && !LooksLikeMarkup(outsideMath(s)) {
		if inner, ok := embeddedMath(raw); ok {
			s = inner
		}
	}

	s = strings.TrimSpace(applyAll(CanonicalRules, s))
	if s == "" {
		return Formula{Text: Unresolved}
	}
	return Formula{Text: s, Confident: true}
}

// Extract normalizes an upstream response. An error object in a 2xx body
// is surfaced as text and never treated as a formula.
func Extract(resp *vision.Response) Formula {
	if resp == nil {
		return Formula{Text: Unresolved}
	}
	if resp.HasError() {
		return Formula{Text: "upstream error: " + resp.ErrorMessage}
	}
	return Normalize(resp.Text)
}

// unwrapDelimiters removes one $$…$$ layer, or one $…$ layer when the text
// holds no $$ at all.
func unwrapDelimiters(s string) string {
	if len(s) >= 4 && strings.HasPrefix(s, "$$") && strings.HasSuffix(s, "$$") {
		return strings.TrimSpace(s[2 : len(s)-2])
	}
	if !strings.Contains(s, "$$") && len(s) >= 2 && strings.HasPrefix(s, "$") && strings.HasSuffix(s, "$") {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// outsideMath drops every $$…$$ and $…$ span so markup inside a math span
// does not count as markup in the surrounding prose.
func outsideMath(s string) string {
	s = displayRe.ReplaceAllString(s, " ")
	return inlineRe.ReplaceAllString(s, " ")
}

// embeddedMath looks for the first $$…$$ and then the first $…$ span in the
// untouched reply.
func embeddedMath(raw string) (string, bool) {
	for _, re := range []*regexp.Regexp{displayRe, inlineRe} {
		if m := re.FindStringSubmatch(raw); m != nil {
			if inner := strings.TrimSpace(m[1]); inner != "" {
				return inner, true
			}
		}
	}
	return "", false
}
