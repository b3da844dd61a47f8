package matching

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Mismatch is a single difference between an expected and an actual value.
type Mismatch struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s", m.Path, m.Message)
}

// Result is the outcome of a match: success when there are no mismatches.
type Result struct {
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func (r Result) OK() bool { return len(r.Mismatches) == 0 }

// Merge appends the mismatches of other to r.
func (r Result) Merge(other Result) Result {
	r.Mismatches = append(r.Mismatches, other.Mismatches...)
	return r
}

// Err returns nil on success and a *MismatchError otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &MismatchError{Mismatches: r.Mismatches}
}

// MismatchError is a data level contract violation.
type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	lines := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		lines = append(lines, m.String())
	}
	return fmt.Sprintf("%d mismatch(es):\n%s", len(e.Mismatches), strings.Join(lines, "\n"))
}

var regexCache sync.Map

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// Match compares actual against expected starting at root, using rules
// instead of literal equality wherever one is registered. Extra keys in
// actual objects are ignored.
func Match(expected, actual Value, rules Rules, root Path) Result {
	m, err := newMatcher(rules)
	if err != nil {
		return Result{Mismatches: []Mismatch{{
			Path:    root.String(),
			Message: fmt.Sprintf("invalid matching rules: %s", err),
		}}}
	}
	m.compare(root, expected, actual)
	return Result{Mismatches: m.mismatches}
}

type matcher struct {
	resolver   *resolver
	mismatches []Mismatch
}

func newMatcher(rules Rules) (*matcher, error) {
	res, err := newResolver(rules)
	if err != nil {
		return nil, err
	}
	return &matcher{resolver: res}, nil
}

func (m *matcher) fail(path Path, expected string, actual Value, format string, args ...interface{}) {
	rendered := actual.String()
	if !actual.IsDefined() {
		rendered = "<missing>"
	}
	m.mismatches = append(m.mismatches, Mismatch{
		Path:     path.String(),
		Expected: expected,
		Actual:   rendered,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (m *matcher) compare(path Path, expected, actual Value) {
	if rs, ok := m.resolver.direct(path); ok {
		m.applyRuleSet(path, rs, expected, actual)
		return
	}
	if m.resolver.inherited(path) {
		m.applyRuleSet(path, RuleSet{Matchers: []Rule{TypeRule()}, Combine: CombineAnd}, expected, actual)
		return
	}
	m.literal(path, expected, actual)
}

func (m *matcher) literal(path Path, expected, actual Value) {
	switch expected.Kind() {
	case KindObject:
		if actual.Kind() != KindObject {
			m.fail(path, "object", actual, "expected an object but got %s", actual.Kind())
			return
		}
		m.compareKeys(path, expected, actual)
	case KindArray:
		if actual.Kind() != KindArray {
			m.fail(path, "array", actual, "expected an array but got %s", actual.Kind())
			return
		}
		if expected.Len() != actual.Len() {
			m.fail(path, fmt.Sprintf("array of length %d", expected.Len()), actual,
				"expected an array of length %d but got length %d", expected.Len(), actual.Len())
			return
		}
		for i, item := range expected.Items() {
			m.compare(path.Item(i), item, actual.Index(i))
		}
	case KindUndefined:
	default:
		if !Equal(expected, actual) {
			m.fail(path, expected.String(), actual, "expected %s but got %s", describe(expected), describe(actual))
		}
	}
}

func (m *matcher) compareKeys(path Path, expected, actual Value) {
	for _, key := range expected.Keys() {
		child, _ := expected.Get(key)
		got, ok := actual.Get(key)
		if !ok {
			m.fail(path.Field(key), child.String(), Value{}, "expected key %q was not found", key)
			continue
		}
		m.compare(path.Field(key), child, got)
	}
}

func (m *matcher) applyRuleSet(path Path, rs RuleSet, expected, actual Value) {
	if !actual.IsDefined() {
		m.fail(path, expected.String(), actual, "expected a value but none was present")
		return
	}

	var failures []string
	passed := 0
	for _, rule := range rs.Matchers {
		if msg := m.evaluate(path, rule, expected, actual); msg != "" {
			failures = append(failures, msg)
			continue
		}
		passed++
	}

	if rs.Combine == CombineOr && passed > 0 {
		failures = nil
	}
	if len(failures) > 0 {
		m.fail(path, describeRules(rs), actual, "%s", strings.Join(failures, "; "))
		return
	}

	if rs.structural() {
		m.descend(path, rs, expected, actual)
	}
}

// evaluate returns an empty string when rule accepts actual.
func (m *matcher) evaluate(path Path, rule Rule, expected, actual Value) string {
	switch rule.Kind {
	case RuleEquality:
		if !Equal(expected, actual) {
			return fmt.Sprintf("expected %s to equal %s", describe(actual), describe(expected))
		}
	case RuleType:
		if expected.IsDefined() && expected.Kind() != actual.Kind() {
			return fmt.Sprintf("expected a %s but got %s", expected.Kind(), describe(actual))
		}
		if actual.Kind() == KindArray {
			if rule.Min != nil && actual.Len() < *rule.Min {
				return fmt.Sprintf("expected an array with at least %d element(s) but got %d", *rule.Min, actual.Len())
			}
			if rule.Max != nil && actual.Len() > *rule.Max {
				return fmt.Sprintf("expected an array with at most %d element(s) but got %d", *rule.Max, actual.Len())
			}
		} else if rule.Min != nil || rule.Max != nil {
			return fmt.Sprintf("expected an array but got %s", describe(actual))
		}
	case RuleRegex:
		if actual.IsContainer() {
			return fmt.Sprintf("expected a value matching /%s/ but got %s", rule.Regex, actual.Kind())
		}
		re, err := compileAnchored(rule.Regex)
		if err != nil {
			return fmt.Sprintf("invalid regex /%s/: %s", rule.Regex, err)
		}
		if !re.MatchString(actual.String()) {
			return fmt.Sprintf("expected %q to match /%s/", actual.String(), rule.Regex)
		}
	case RuleInclude:
		if !strings.Contains(actual.String(), rule.Value) {
			return fmt.Sprintf("expected %q to include %q", actual.String(), rule.Value)
		}
	case RuleInteger:
		if !actual.IsInteger() {
			return fmt.Sprintf("expected an integer but got %s", describe(actual))
		}
	case RuleDecimal:
		if !actual.IsDecimal() {
			return fmt.Sprintf("expected a decimal number but got %s", describe(actual))
		}
	default:
		return fmt.Sprintf("unknown matcher %q", rule.Kind)
	}
	return ""
}

// descend applies a structural rule to the children of a container. Array
// elements are all compared against the first expected element as template.
func (m *matcher) descend(path Path, rs RuleSet, expected, actual Value) {
	switch actual.Kind() {
	case KindObject:
		if expected.Kind() == KindObject {
			m.compareKeys(path, expected, actual)
		}
	case KindArray:
		if expected.Kind() != KindArray || expected.Len() == 0 {
			return
		}
		template := expected.Index(0)
		for i, item := range actual.Items() {
			m.compare(path.Item(i), template, item)
		}
	}
}

func describe(v Value) string {
	switch v.Kind() {
	case KindUndefined:
		return "nothing"
	case KindString:
		return fmt.Sprintf("%q", v.StringValue())
	case KindArray, KindObject:
		return fmt.Sprintf("%s %s", v.Kind(), v.String())
	}
	return v.String()
}

func describeRules(rs RuleSet) string {
	parts := make([]string, 0, len(rs.Matchers))
	for _, r := range rs.Matchers {
		desc := string(r.Kind)
		switch {
		case r.Kind == RuleRegex:
			desc = fmt.Sprintf("regex(%s)", r.Regex)
		case r.Kind == RuleInclude:
			desc = fmt.Sprintf("include(%s)", r.Value)
		case r.Min != nil:
			desc = fmt.Sprintf("minArrayLike(%d)", *r.Min)
		case r.Max != nil:
			desc = fmt.Sprintf("maxArrayLike(%d)", *r.Max)
		}
		parts = append(parts, desc)
	}
	sep := " and "
	if rs.Combine == CombineOr {
		sep = " or "
	}
	return strings.Join(parts, sep)
}
