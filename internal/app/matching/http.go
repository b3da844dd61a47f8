package matching

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// MatchHeaders checks every expected header against actual. Header names are
// case insensitive and extra actual headers are ignored.
func MatchHeaders(expected map[string]string, actual http.Header, rules Rules) Result {
	m, err := newMatcher(rules)
	if err != nil {
		return Result{Mismatches: []Mismatch{{Path: "$.header", Message: err.Error()}}}
	}

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := Root("header", name)
		values := actualHeader(actual, name)
		if len(values) == 0 {
			m.fail(path, expected[name], Value{}, "expected header %q was not present", name)
			continue
		}
		got := strings.Join(values, ", ")
		if rs, ok := m.resolver.direct(path); ok {
			m.applyRuleSet(path, rs, String(expected[name]), String(got))
			continue
		}
		if !headerValuesEqual(name, expected[name], got) {
			m.fail(path, expected[name], String(got), "expected header %q to equal %q but got %q", name, expected[name], got)
		}
	}
	return Result{Mismatches: m.mismatches}
}

func actualHeader(h http.Header, name string) []string {
	if values := h.Values(name); len(values) > 0 {
		return values
	}
	for k, values := range h {
		if strings.EqualFold(k, name) {
			return values
		}
	}
	return nil
}

// headerValuesEqual ignores whitespace around list separators, and for
// Content-Type compares the media type and the expected parameters
// independently of formatting. Extra actual parameters are allowed.
func headerValuesEqual(name, expected, actual string) bool {
	if strings.EqualFold(name, "Content-Type") {
		em, ep, errE := mime.ParseMediaType(expected)
		am, ap, errA := mime.ParseMediaType(actual)
		if errE == nil && errA == nil {
			if em != am {
				return false
			}
			for k, v := range ep {
				if !strings.EqualFold(ap[k], v) {
					return false
				}
			}
			return true
		}
	}
	return normaliseList(expected) == normaliseList(actual)
}

func normaliseList(v string) string {
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

// MatchQuery checks every expected query parameter. Parameter names are case
// insensitive, values are compared in order, and extra parameters are
// ignored.
func MatchQuery(expected map[string][]string, actual url.Values, rules Rules) Result {
	m, err := newMatcher(rules)
	if err != nil {
		return Result{Mismatches: []Mismatch{{Path: "$.query", Message: err.Error()}}}
	}

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := Root("query", name)
		values := actualQuery(actual, name)
		want := expected[name]
		if values == nil {
			m.fail(path, strings.Join(want, ","), Value{}, "expected query parameter %q was not present", name)
			continue
		}
		if rs, ok := m.resolver.direct(path); ok {
			template := String("")
			if len(want) > 0 {
				template = String(want[0])
			}
			for _, v := range values {
				m.applyRuleSet(path, rs, template, String(v))
			}
			continue
		}
		if len(values) != len(want) {
			m.fail(path, strings.Join(want, ","), String(strings.Join(values, ",")),
				"expected %d value(s) for query parameter %q but got %d", len(want), name, len(values))
			continue
		}
		for i := range want {
			if want[i] != values[i] {
				m.fail(path, want[i], String(values[i]),
					"expected query parameter %q to equal %q but got %q", name, want[i], values[i])
			}
		}
	}
	return Result{Mismatches: m.mismatches}
}

func actualQuery(q url.Values, name string) []string {
	if values, ok := q[name]; ok {
		return values
	}
	for k, values := range q {
		if strings.EqualFold(k, name) {
			return values
		}
	}
	return nil
}

// MatchScalar matches a single top level field such as the path or status.
func MatchScalar(name string, expected, actual Value, rules Rules) Result {
	m, err := newMatcher(rules)
	if err != nil {
		return Result{Mismatches: []Mismatch{{Path: "$." + name, Message: err.Error()}}}
	}
	path := Root(name)
	if rs, ok := m.resolver.direct(path); ok {
		m.applyRuleSet(path, rs, expected, actual)
	} else if !Equal(expected, actual) {
		m.fail(path, expected.String(), actual, "expected %s %s but got %s", name, describe(expected), describe(actual))
	}
	return Result{Mismatches: m.mismatches}
}

// IsJSONContentType reports whether the media type carries a JSON document.
func IsJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// MatchBody compares an actual body against expected. An undefined expected
// body asserts nothing. JSON bodies are compared as trees, anything else as
// text at $.body.
func MatchBody(expected Value, actual []byte, contentType string, rules Rules) Result {
	if !expected.IsDefined() {
		return Result{}
	}

	path := Root("body")
	if IsJSONContentType(contentType) || (contentType == "" && expected.IsContainer()) {
		got, err := Parse(actual)
		if err != nil {
			return Result{Mismatches: []Mismatch{{
				Path:     path.String(),
				Expected: expected.String(),
				Actual:   string(actual),
				Message:  fmt.Sprintf("body is not valid json: %s", err),
			}}}
		}
		if !got.IsDefined() {
			return Result{Mismatches: []Mismatch{{
				Path:     path.String(),
				Expected: expected.String(),
				Actual:   "<missing>",
				Message:  "expected a body but none was present",
			}}}
		}
		return Match(expected, got, rules, path)
	}

	want := expected
	if want.Kind() != KindString {
		want = String(expected.String())
	}
	return Match(want, String(string(actual)), rules, path)
}
