package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
)

// Category groups rules for reporting.
type Category string

const (
	CategoryTraversal   Category = "traversal"
	CategoryAbsolute    Category = "absolute-path"
	CategorySymlink     Category = "symlink"
	CategoryDestructive Category = "destructive"
	CategoryPrivilege   Category = "privilege"
	CategoryProtected   Category = "protected-path"
	CategoryCustom      Category = "custom"
	CategoryOverflow    Category = "overflow"
)

// Rule is a single deny rule. Pattern is a Go regular expression matched
// against both the raw line and its normalized form.
type Rule struct {
	Name     string   `yaml:"name" toml:"name"`
	Category Category `yaml:"category" toml:"category"`
	Pattern  string   `yaml:"pattern" toml:"pattern"`
	Reason   string   `yaml:"reason" toml:"reason"`
}

// Verdict is the outcome of evaluating one line.
type Verdict struct {
	Allowed  bool
	Rule     string
	Category Category
	Reason   string
}

// Allow is the verdict for lines no rule matches.
var Allow = Verdict{Allowed: true}

// TooLong is the verdict for lines that overflowed the line buffer.
var TooLong = Verdict{
	Rule:     "line-too-long",
	Category: CategoryOverflow,
	Reason:   fmt.Sprintf("command lines are limited to %d bytes", MaxLineLength),
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

type protectedGlob struct {
	pattern string
	reason  string
}

// Policy is an immutable set of deny rules. It is safe for concurrent use.
type Policy struct {
	rules     []compiledRule
	protected []protectedGlob
}

// NewPolicy compiles rules and protected path globs into a policy.
func NewPolicy(rules []Rule, protectedPaths []string) (*Policy, error) {
	p := &Policy{}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule with pattern %q has no name", r.Pattern)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = true

		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if r.Category == "" {
			r.Category = CategoryCustom
		}
		if r.Reason == "" {
			r.Reason = "command not allowed"
		}
		p.rules = append(p.rules, compiledRule{Rule: r, re: re})
	}
	for _, g := range protectedPaths {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid protected path glob %q", g)
		}
		p.protected = append(p.protected, protectedGlob{
			pattern: g,
			reason:  "access to a protected path is not allowed",
		})
	}
	return p, nil
}

// DefaultPolicy returns the built in deny list.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultRules(), DefaultProtectedPaths())
	if err != nil {
		panic(fmt.Sprintf("filter: default policy does not compile: %v", err))
	}
	return p
}

// Rules returns a copy of the policy's rules.
func (p *Policy) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Rule
	}
	return out
}

// Evaluate decides whether a complete command line may reach the shell.
// The line terminator, if present, is ignored.
func (p *Policy) Evaluate(line string) Verdict {
	raw := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(raw) == "" {
		return Allow
	}
	raw = maskDevices(raw)
	norm := maskDevices(Normalize(raw))

	for _, r := range p.rules {
		if r.re.MatchString(raw) || r.re.MatchString(norm) {
			return Verdict{Rule: r.Name, Category: r.Category, Reason: r.Reason}
		}
	}
	for _, tok := range tokens(norm) {
		for _, g := range p.protected {
			if ok, _ := doublestar.Match(g.pattern, tok); ok {
				return Verdict{Rule: "protected:" + g.pattern, Category: CategoryProtected, Reason: g.reason}
			}
		}
	}
	return Allow
}

// Normalize strips quotes and backslashes and collapses whitespace, so that
// c"d" '..' is matched like cd ..
func Normalize(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	space := false
	for _, r := range line {
		switch {
		case r == '\'' || r == '"' || r == '\\':
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Harmless device files are masked so redirections such as 2>/dev/null are
// not reported as absolute paths.
var deviceFiles = regexp.MustCompile(`/dev/(?:null|zero|u?random|stdin|stdout|stderr|tty)(\s|$|[;&|)])`)

func maskDevices(s string) string {
	return deviceFiles.ReplaceAllString(s, "_${1}")
}

// tokens splits a normalized line on whitespace and shell operators.
func tokens(norm string) []string {
	return strings.FieldsFunc(norm, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(";&|<>()`=", r)
	})
}
