package dsl

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/form3tech-oss/pactkit/internal/app/matching"
)

// Matcher is a placeholder in a request or response definition. It carries
// the example value that is served or sent, and the rule recorded in the
// contract for the location it appears at.
type Matcher interface {
	example() interface{}
	rule() (matching.Rule, bool)
}

// String is a literal string. It records no rule.
type String string

func (s String) example() interface{} { return string(s) }

func (s String) rule() (matching.Rule, bool) { return matching.Rule{}, false }

type like struct {
	value interface{}
}

func (l like) example() interface{} { return l.value }

func (l like) rule() (matching.Rule, bool) { return matching.TypeRule(), true }

// Like matches any value of the same shape as example. Inside containers
// every descendant is matched by type.
func Like(example interface{}) Matcher {
	return like{value: example}
}

type eachLike struct {
	template interface{}
	min      int
	max      int
}

func (e eachLike) example() interface{} {
	n := e.min
	if n < 1 {
		n = 1
	}
	items := make([]interface{}, n)
	for i := range items {
		items[i] = e.template
	}
	return items
}

func (e eachLike) rule() (matching.Rule, bool) {
	if e.max > 0 {
		return matching.MaxTypeRule(e.max), true
	}
	return matching.MinTypeRule(e.min), true
}

// EachLike matches an array of at least min elements, each shaped like
// template.
func EachLike(template interface{}, min int) Matcher {
	if min < 1 {
		min = 1
	}
	return eachLike{template: template, min: min}
}

// AtMostLike matches an array of at most max elements, each shaped like
// template.
func AtMostLike(template interface{}, max int) Matcher {
	return eachLike{template: template, min: 1, max: max}
}

type term struct {
	value string
	regex string
}

func (t term) example() interface{} { return t.value }

func (t term) rule() (matching.Rule, bool) { return matching.RegexRule(t.regex), true }

// Term matches strings against regex. The example must itself match, or the
// contract would describe a request the consumer never sends.
func Term(example, regex string) Matcher {
	re, err := regexp.Compile("^(?:" + regex + ")$")
	if err != nil {
		panic(fmt.Sprintf("dsl.Term: invalid regex %q: %s", regex, err))
	}
	if !re.MatchString(example) {
		panic(fmt.Sprintf("dsl.Term: example %q does not match %q", example, regex))
	}
	return term{value: example, regex: regex}
}

type includes struct {
	value   string
	include string
}

func (i includes) example() interface{} { return i.value }

func (i includes) rule() (matching.Rule, bool) { return matching.IncludeRule(i.include), true }

// Includes matches strings containing value.
func Includes(example, value string) Matcher {
	if !strings.Contains(example, value) {
		panic(fmt.Sprintf("dsl.Includes: example %q does not contain %q", example, value))
	}
	return includes{value: example, include: value}
}

type number struct {
	literal string
	kind    matching.RuleKind
}

func (n number) example() interface{} { return json.Number(n.literal) }

func (n number) rule() (matching.Rule, bool) { return matching.Rule{Kind: n.kind}, true }

// Integer matches any whole number.
func Integer(example int) Matcher {
	return number{literal: strconv.Itoa(example), kind: matching.RuleInteger}
}

// Decimal matches any number with a fractional part.
func Decimal(example float64) Matcher {
	literal := strconv.FormatFloat(example, 'f', -1, 64)
	if !strings.Contains(literal, ".") {
		literal += ".0"
	}
	return number{literal: literal, kind: matching.RuleDecimal}
}

type equality struct {
	value interface{}
}

func (e equality) example() interface{} { return e.value }

func (e equality) rule() (matching.Rule, bool) { return matching.EqualityRule(), true }

// Equality restores literal matching below a Like.
func Equality(example interface{}) Matcher {
	return equality{value: example}
}

// Common string formats.
func UUID() Matcher {
	return Term("fc763eba-0905-41c5-a27f-3934ab26786c", `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
}

func Timestamp() Matcher {
	return Term("2000-02-01T00:00:00Z", `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`)
}

func Date() Matcher {
	return Term("2000-02-01", `\d{4}-\d{2}-\d{2}`)
}
