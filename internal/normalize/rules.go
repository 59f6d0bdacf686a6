package normalize

import (
	"regexp"
	"strings"
)

// Rule is one named rewrite step. Exactly one of Replace or Func is used;
// Func wins when set.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
	Func    func(match string) string
}

// Apply runs the rule once over s.
func (r Rule) Apply(s string) string {
	if r.Func != nil {
		return r.Pattern.ReplaceAllStringFunc(s, r.Func)
	}
	return r.Pattern.ReplaceAllString(s, r.Replace)
}

// applyAll runs rules in order, each once.
func applyAll(rules []Rule, s string) string {
	for _, r := range rules {
		s = r.Apply(s)
	}
	return s
}

// applyUntilStable repeats the ordered rules until a full pass changes
// nothing. Every rule only deletes text, so this terminates.
func applyUntilStable(rules []Rule, s string) string {
	for {
		next := applyAll(rules, s)
		if next == s {
			return s
		}
		s = next
	}
}

// FenceRules strip a Markdown code fence around the reply.
var FenceRules = []Rule{
	{
		Name:    "leading_fence",
		Pattern: regexp.MustCompile("(?i)^```(?:latex|math|tex|katex)?[ \\t]*\\n?"),
	},
	{
		Name:    "trailing_fence",
		Pattern: regexp.MustCompile("\\n?```\\s*$"),
	},
}

// PreambleRules strip conversational lead-ins such as "这是" or
// "The LaTeX code is:".
var PreambleRules = []Rule{
	{
		Name:    "zh_lead_in",
		Pattern: regexp.MustCompile(`^(?:这是|答案是|结果是|公式是|识别到的公式是|LaTeX代码是)[：:]?\s*`),
	},
	{
		Name:    "en_lead_in",
		Pattern: regexp.MustCompile(`(?i)^(?:here is |here's )?the (?:latex )?(?:code|formula|equation|expression) is[：:]?\s*`),
	},
	{
		Name:    "zh_label",
		Pattern: regexp.MustCompile(`^(?:LaTeX\s*代码|数学公式|识别结果)(?:[：:]\s*|\s*\n\s*)`),
	},
}

// CanonicalRules tighten spacing LaTeX renderers tolerate but humans find
// noisy. Each rule is idempotent.
var CanonicalRules = []Rule{
	{
		// "\ frac" -> "\frac". A "\\" line break is matched first and kept.
		Name:    "command_space",
		Pattern: regexp.MustCompile(`\\\\|\\\s+[a-zA-Z]+`),
		Func: func(m string) string {
			if m == `\\` {
				return m
			}
			return `\` + strings.TrimLeft(m[1:], " \t\n\r\f\v")
		},
	},
	{
		Name:    "frac_braces",
		Pattern: regexp.MustCompile(`\\frac\s*\{\s*([^{}]*?)\s*\}\s*\{\s*([^{}]*?)\s*\}`),
		Replace: `\frac{$1}{$2}`,
	},
	{
		Name:    "sqrt_braces",
		Pattern: regexp.MustCompile(`\\sqrt\s*\{\s*([^{}]*?)\s*\}`),
		Replace: `\sqrt{$1}`,
	},
	{
		Name:    "superscript_braces",
		Pattern: regexp.MustCompile(`\^\s*\{\s*([^{}]*?)\s*\}`),
		Replace: `^{$1}`,
	},
	{
		Name:    "subscript_braces",
		Pattern: regexp.MustCompile(`_\s*\{\s*([^{}]*?)\s*\}`),
		Replace: `_{$1}`,
	},
}
