package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) Value {
	t.Helper()
	v, err := Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func TestMatchWithoutRules(t *testing.T) {
	tests := []struct {
		name      string
		expected  string
		actual    string
		wantPaths []string
	}{
		{
			name:     "equal scalars match",
			expected: `"alice"`,
			actual:   `"alice"`,
		},
		{
			name:      "different scalars mismatch",
			expected:  `"alice"`,
			actual:    `"bob"`,
			wantPaths: []string{"$.body"},
		},
		{
			name:     "numbers compare numerically",
			expected: `1`,
			actual:   `1.0`,
		},
		{
			name:      "integers beyond float precision stay distinct",
			expected:  `{"id": 9007199254740993}`,
			actual:    `{"id": 9007199254740992}`,
			wantPaths: []string{"$.body.id"},
		},
		{
			name:      "number does not equal string",
			expected:  `1`,
			actual:    `"1"`,
			wantPaths: []string{"$.body"},
		},
		{
			name:     "extra keys in actual are ignored",
			expected: `{"a": 1, "b": 2}`,
			actual:   `{"a": 1, "b": 2, "c": 3}`,
		},
		{
			name:      "missing key mismatches",
			expected:  `{"a": 1, "b": 2}`,
			actual:    `{"a": 1}`,
			wantPaths: []string{"$.body.b"},
		},
		{
			name:      "nested difference reports the leaf path",
			expected:  `{"user": {"name": "alice", "tags": ["x", "y"]}}`,
			actual:    `{"user": {"name": "alice", "tags": ["x", "z"]}}`,
			wantPaths: []string{"$.body.user.tags[1]"},
		},
		{
			name:      "arrays require equal length",
			expected:  `[1, 2]`,
			actual:    `[1, 2, 3]`,
			wantPaths: []string{"$.body"},
		},
		{
			name:      "object expected but array given",
			expected:  `{"a": 1}`,
			actual:    `[1]`,
			wantPaths: []string{"$.body"},
		},
		{
			name:      "keys with spaces are quoted in paths",
			expected:  `{"first name": "a"}`,
			actual:    `{"first name": "b"}`,
			wantPaths: []string{"$.body['first name']"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Match(mustParse(t, tt.expected), mustParse(t, tt.actual), Rules{}, Root("body"))

			var paths []string
			for _, m := range result.Mismatches {
				paths = append(paths, m.Path)
			}
			assert.Equal(t, tt.wantPaths, paths)
			assert.Equal(t, len(tt.wantPaths) == 0, result.OK())
		})
	}
}

func TestMatchWithRules(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		actual   string
		rules    Rules
		ok       bool
	}{
		{
			name:     "type ignores content",
			expected: `{"count": 1}`,
			actual:   `{"count": 99}`,
			rules:    Rules{"$.body.count": {Matchers: []Rule{TypeRule()}}},
			ok:       true,
		},
		{
			name:     "type checks shape class",
			expected: `{"count": 1}`,
			actual:   `{"count": "99"}`,
			rules:    Rules{"$.body.count": {Matchers: []Rule{TypeRule()}}},
		},
		{
			name:     "type at the root cascades to leaves",
			expected: `{"name": "alice", "address": {"city": "London"}}`,
			actual:   `{"name": "bob", "address": {"city": "Paris", "zip": "75001"}}`,
			rules:    Rules{"$.body": {Matchers: []Rule{TypeRule()}}},
			ok:       true,
		},
		{
			name:     "cascaded type still requires expected keys",
			expected: `{"name": "alice", "address": {"city": "London"}}`,
			actual:   `{"name": "bob", "address": {}}`,
			rules:    Rules{"$.body": {Matchers: []Rule{TypeRule()}}},
		},
		{
			name:     "regex on rendered string",
			expected: `{"date": "2020-01-01"}`,
			actual:   `{"date": "2023-12-31"}`,
			rules:    Rules{"$.body.date": {Matchers: []Rule{RegexRule(`\d{4}-\d{2}-\d{2}`)}}},
			ok:       true,
		},
		{
			name:     "regex is anchored",
			expected: `{"date": "2020-01-01"}`,
			actual:   `{"date": "on 2023-12-31"}`,
			rules:    Rules{"$.body.date": {Matchers: []Rule{RegexRule(`\d{4}-\d{2}-\d{2}`)}}},
		},
		{
			name:     "regex against a number",
			expected: `{"id": 10}`,
			actual:   `{"id": 42}`,
			rules:    Rules{"$.body.id": {Matchers: []Rule{RegexRule(`\d+`)}}},
			ok:       true,
		},
		{
			name:     "include",
			expected: `{"msg": "hello world"}`,
			actual:   `{"msg": "well hello there"}`,
			rules:    Rules{"$.body.msg": {Matchers: []Rule{IncludeRule("hello")}}},
			ok:       true,
		},
		{
			name:     "integer rejects decimals",
			expected: `{"n": 1}`,
			actual:   `{"n": 1.5}`,
			rules:    Rules{"$.body.n": {Matchers: []Rule{{Kind: RuleInteger}}}},
		},
		{
			name:     "decimal accepts decimals",
			expected: `{"n": 1.5}`,
			actual:   `{"n": 100.25}`,
			rules:    Rules{"$.body.n": {Matchers: []Rule{{Kind: RuleDecimal}}}},
			ok:       true,
		},
		{
			name:     "wildcard rule applies to each element",
			expected: `{"items": [{"id": "a1"}]}`,
			actual:   `{"items": [{"id": "b2"}]}`,
			rules:    Rules{"$.body.items[*].id": {Matchers: []Rule{RegexRule(`[a-z]\d`)}}},
			ok:       true,
		},
		{
			name:     "or combination passes if one matcher passes",
			expected: `{"v": "abc"}`,
			actual:   `{"v": "123"}`,
			rules: Rules{"$.body.v": {
				Matchers: []Rule{RegexRule(`[a-z]+`), RegexRule(`\d+`)},
				Combine:  CombineOr,
			}},
			ok: true,
		},
		{
			name:     "and combination requires all matchers",
			expected: `{"v": "abc"}`,
			actual:   `{"v": "123"}`,
			rules: Rules{"$.body.v": {
				Matchers: []Rule{RegexRule(`\d+`), IncludeRule("4")},
				Combine:  CombineAnd,
			}},
		},
		{
			name:     "more specific rule wins",
			expected: `{"items": [{"id": "x"}]}`,
			actual:   `{"items": [{"id": "x"}]}`,
			rules: Rules{
				"$.body.items[*].id": {Matchers: []Rule{RegexRule(`\d+`)}},
				"$.body.items[0].id": {Matchers: []Rule{EqualityRule()}},
			},
			ok: true,
		},
		{
			name:     "equality overrides a cascading type",
			expected: `{"kind": "user", "name": "a"}`,
			actual:   `{"kind": "admin", "name": "b"}`,
			rules: Rules{
				"$.body":      {Matchers: []Rule{TypeRule()}},
				"$.body.kind": {Matchers: []Rule{EqualityRule()}},
			},
		},
		{
			name:     "rule on a missing key fails",
			expected: `{"id": 1}`,
			actual:   `{}`,
			rules:    Rules{"$.body.id": {Matchers: []Rule{TypeRule()}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Match(mustParse(t, tt.expected), mustParse(t, tt.actual), tt.rules, Root("body"))
			assert.Equalf(t, tt.ok, result.OK(), "mismatches: %v", result.Mismatches)
		})
	}
}

func TestMinArrayLike(t *testing.T) {
	rules := Rules{"$.body.items": {Matchers: []Rule{MinTypeRule(2)}, Combine: CombineAnd}}
	expected := mustParse(t, `{"items": [{"id": 1, "name": "a"}, {"id": 1, "name": "a"}]}`)

	tests := []struct {
		name   string
		actual string
		ok     bool
	}{
		{name: "exactly n elements", actual: `{"items": [{"id": 5, "name": "x"}, {"id": 6, "name": "y"}]}`, ok: true},
		{name: "more than n elements", actual: `{"items": [{"id": 5, "name": "x"}, {"id": 6, "name": "y"}, {"id": 7, "name": "z"}]}`, ok: true},
		{name: "fewer than n elements", actual: `{"items": [{"id": 5, "name": "x"}]}`},
		{name: "empty array", actual: `{"items": []}`},
		{name: "element of the wrong shape", actual: `{"items": [{"id": 5, "name": "x"}, {"id": "6", "name": "y"}]}`},
		{name: "element missing a template key", actual: `{"items": [{"id": 5, "name": "x"}, {"id": 6}]}`},
		{name: "not an array", actual: `{"items": {"id": 5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Match(expected, mustParse(t, tt.actual), rules, Root("body"))
			assert.Equalf(t, tt.ok, result.OK(), "mismatches: %v", result.Mismatches)
		})
	}
}

func TestMaxArrayLike(t *testing.T) {
	rules := Rules{"$.body": {Matchers: []Rule{MaxTypeRule(2)}, Combine: CombineAnd}}
	expected := mustParse(t, `[1]`)

	assert.True(t, Match(expected, mustParse(t, `[7, 8]`), rules, Root("body")).OK())
	assert.False(t, Match(expected, mustParse(t, `[7, 8, 9]`), rules, Root("body")).OK())
}

func TestMismatchErrorListsPaths(t *testing.T) {
	result := Match(mustParse(t, `{"a": 1, "b": 2}`), mustParse(t, `{"a": 2}`), Rules{}, Root("body"))
	require.False(t, result.OK())

	err := result.Err()
	var mismatchErr *MismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Len(t, mismatchErr.Mismatches, 2)
	assert.Contains(t, err.Error(), "$.body.a")
	assert.Contains(t, err.Error(), "$.body.b")
}

func TestInvalidRulesAreReported(t *testing.T) {
	result := Match(String("a"), String("a"), Rules{"body": {Matchers: []Rule{TypeRule()}}}, Root("body"))
	assert.False(t, result.OK())
}
