package matching

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type RuleKind string

const (
	RuleEquality RuleKind = "equality"
	RuleType     RuleKind = "type"
	RuleRegex    RuleKind = "regex"
	RuleInclude  RuleKind = "include"
	RuleInteger  RuleKind = "integer"
	RuleDecimal  RuleKind = "decimal"
)

const (
	CombineAnd = "AND"
	CombineOr  = "OR"
)

// Rule is a single matcher. Min and Max only apply to arrays and imply type
// matching of every element against the first expected element.
type Rule struct {
	Kind  RuleKind `json:"match"`
	Regex string   `json:"regex,omitempty"`
	Value string   `json:"value,omitempty"`
	Min   *int     `json:"min,omitempty"`
	Max   *int     `json:"max,omitempty"`
}

func TypeRule() Rule { return Rule{Kind: RuleType} }

func RegexRule(pattern string) Rule { return Rule{Kind: RuleRegex, Regex: pattern} }

func IncludeRule(value string) Rule { return Rule{Kind: RuleInclude, Value: value} }

func EqualityRule() Rule { return Rule{Kind: RuleEquality} }

// MinTypeRule is the minArrayLike(n) rule.
func MinTypeRule(min int) Rule {
	return Rule{Kind: RuleType, Min: &min}
}

func MaxTypeRule(max int) Rule {
	return Rule{Kind: RuleType, Max: &max}
}

// structural rules cascade to descendants that carry no rule of their own.
func (r Rule) structural() bool {
	return r.Kind == RuleType || r.Min != nil || r.Max != nil
}

// RuleSet is the list of matchers registered at one path.
type RuleSet struct {
	Matchers []Rule `json:"matchers"`
	Combine  string `json:"combine,omitempty"`
}

func (rs RuleSet) structural() bool {
	for _, r := range rs.Matchers {
		if r.structural() {
			return true
		}
	}
	return false
}

// Rules maps rule paths ($.body.items[*].id, $.header.Accept, $.query.page,
// $.path, $.status) to the matchers registered there.
type Rules map[string]RuleSet

// Add registers rule at path, appending to any rules already present.
func (r Rules) Add(path string, rule Rule) {
	rs := r[path]
	rs.Matchers = append(rs.Matchers, rule)
	if rs.Combine == "" {
		rs.Combine = CombineAnd
	}
	r[path] = rs
}

// Paths returns the registered paths in a stable order.
func (r Rules) Paths() []string {
	paths := make([]string, 0, len(r))
	for p := range r {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Select returns only the rules under the given category ("body", "header",
// "query", "path" or "status").
func (r Rules) Select(category string) Rules {
	out := Rules{}
	prefix := "$." + category
	for p, rs := range r {
		if p == prefix || strings.HasPrefix(p, prefix+".") || strings.HasPrefix(p, prefix+"[") {
			out[p] = rs
		}
	}
	return out
}

// Validate checks that every path parses and every regex compiles.
func (r Rules) Validate() error {
	for _, p := range r.Paths() {
		if _, err := ParsePath(p); err != nil {
			return err
		}
		for _, m := range r[p].Matchers {
			switch m.Kind {
			case RuleEquality, RuleType, RuleInteger, RuleDecimal:
			case RuleRegex:
				if _, err := compileAnchored(m.Regex); err != nil {
					return errors.Wrapf(err, "invalid regex for %s", p)
				}
			case RuleInclude:
				if m.Value == "" {
					return errors.Errorf("include rule at %s has no value", p)
				}
			default:
				return errors.Errorf("unknown matcher %q at %s", m.Kind, p)
			}
		}
	}
	return nil
}

type compiledRule struct {
	path Path
	set  RuleSet
}

// resolver picks the rule set governing a concrete path.
type resolver struct {
	rules []compiledRule
}

func newResolver(rules Rules) (*resolver, error) {
	res := &resolver{}
	for _, p := range rules.Paths() {
		path, err := ParsePath(p)
		if err != nil {
			return nil, err
		}
		res.rules = append(res.rules, compiledRule{path: path, set: rules[p]})
	}
	return res, nil
}

// direct returns the heaviest rule whose path matches concrete exactly in
// length.
func (res *resolver) direct(concrete Path) (RuleSet, bool) {
	best, bestWeight := RuleSet{}, 0
	for _, r := range res.rules {
		if len(r.path) != len(concrete) {
			continue
		}
		if w := r.path.weight(concrete); w > bestWeight {
			best, bestWeight = r.set, w
		}
	}
	return best, bestWeight > 0
}

// inherited reports whether an ancestor of concrete carries a structural
// rule, in which case concrete is matched by type.
func (res *resolver) inherited(concrete Path) bool {
	for _, r := range res.rules {
		if len(r.path) >= len(concrete) || !r.set.structural() {
			continue
		}
		if r.path.weight(concrete) > 0 {
			return true
		}
	}
	return false
}

type v2Rule struct {
	Match string `json:"match,omitempty"`
	Regex string `json:"regex,omitempty"`
	Value string `json:"value,omitempty"`
	Min   *int   `json:"min,omitempty"`
	Max   *int   `json:"max,omitempty"`
}

func (r v2Rule) rule() Rule {
	kind := RuleKind(r.Match)
	if kind == "" {
		switch {
		case r.Regex != "":
			kind = RuleRegex
		case r.Min != nil || r.Max != nil:
			kind = RuleType
		default:
			kind = RuleEquality
		}
	}
	return Rule{Kind: kind, Regex: r.Regex, Value: r.Value, Min: r.Min, Max: r.Max}
}

// ParseRules understands both the pact v2 flat form
// ("$.body.id": {"match": "type"}) and the v3 nested form
// ("body": {"$.id": {"matchers": [...]}}).
func ParseRules(data []byte) (Rules, error) {
	rules := Rules{}
	if len(data) == 0 || string(data) == "null" {
		return rules, nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to parse matchingRules")
	}
	for key, value := range raw {
		if strings.HasPrefix(key, "$.") {
			if err := parseV2Rule(rules, key, value); err != nil {
				return nil, err
			}
			continue
		}
		if err := parseV3Category(rules, key, value); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func parseV2Rule(rules Rules, key string, value json.RawMessage) error {
	var rule v2Rule
	if err := json.Unmarshal(value, &rule); err != nil {
		return errors.Wrapf(err, "invalid v2 matching rule at %s", key)
	}
	path := key
	if strings.HasPrefix(path, "$.headers") {
		path = "$.header" + strings.TrimPrefix(path, "$.headers")
	}
	rules.Add(path, rule.rule())
	return nil
}

type v3RuleSet struct {
	Matchers []v2Rule `json:"matchers"`
	Combine  string   `json:"combine,omitempty"`
}

func (s v3RuleSet) ruleSet() RuleSet {
	rs := RuleSet{Combine: strings.ToUpper(s.Combine)}
	if rs.Combine == "" {
		rs.Combine = CombineAnd
	}
	for _, m := range s.Matchers {
		rs.Matchers = append(rs.Matchers, m.rule())
	}
	return rs
}

func parseV3Category(rules Rules, category string, value json.RawMessage) error {
	switch category {
	case "path", "status":
		var set v3RuleSet
		if err := json.Unmarshal(value, &set); err != nil {
			return errors.Wrapf(err, "invalid v3 %s matching rule", category)
		}
		if len(set.Matchers) == 0 {
			return errors.Errorf("invalid v3 %s matching rule - no matchers found", category)
		}
		rules["$."+category] = set.ruleSet()
		return nil
	case "body", "header", "headers", "query":
	default:
		return errors.Errorf("unknown matchingRules category %q", category)
	}
	if category == "headers" {
		category = "header"
	}

	sets := map[string]v3RuleSet{}
	if err := json.Unmarshal(value, &sets); err != nil {
		return errors.Wrapf(err, "invalid v3 %s matching rules", category)
	}
	for key, set := range sets {
		var path string
		switch {
		case category == "body" && key == "$":
			path = "$.body"
		case category == "body":
			path = "$.body" + strings.TrimPrefix(key, "$")
		default:
			path = "$." + category + "." + key
		}
		rules[path] = set.ruleSet()
	}
	return nil
}

// MarshalV2 renders the flat pact v2 form. Only the first matcher of each
// path survives, which is all v2 can express.
func (r Rules) MarshalV2() ([]byte, error) {
	out := map[string]v2Rule{}
	for p, rs := range r {
		if len(rs.Matchers) == 0 {
			continue
		}
		key := p
		if strings.HasPrefix(key, "$.header") {
			key = "$.headers" + strings.TrimPrefix(key, "$.header")
		}
		m := rs.Matchers[0]
		out[key] = v2Rule{Match: string(m.Kind), Regex: m.Regex, Value: m.Value, Min: m.Min, Max: m.Max}
	}
	return json.Marshal(out)
}

// MarshalV3 renders the nested pact v3 form.
func (r Rules) MarshalV3() ([]byte, error) {
	out := map[string]interface{}{}
	for p, rs := range r {
		set := v3RuleSet{Combine: rs.Combine}
		for _, m := range rs.Matchers {
			set.Matchers = append(set.Matchers, v2Rule{Match: string(m.Kind), Regex: m.Regex, Value: m.Value, Min: m.Min, Max: m.Max})
		}
		switch {
		case p == "$.path" || p == "$.status":
			out[strings.TrimPrefix(p, "$.")] = set
		case p == "$.body" || strings.HasPrefix(p, "$.body.") || strings.HasPrefix(p, "$.body["):
			category(out, "body")["$"+strings.TrimPrefix(p, "$.body")] = set
		case strings.HasPrefix(p, "$.header."):
			category(out, "header")[strings.TrimPrefix(p, "$.header.")] = set
		case strings.HasPrefix(p, "$.query."):
			category(out, "query")[strings.TrimPrefix(p, "$.query.")] = set
		default:
			return nil, errors.Errorf("cannot render matching rule path %q", p)
		}
	}
	return json.Marshal(out)
}

// SingleMatcher reports whether every path carries exactly one matcher, i.e.
// whether the v2 form is lossless.
func (r Rules) SingleMatcher() bool {
	for _, rs := range r {
		if len(rs.Matchers) != 1 || rs.Combine == CombineOr {
			return false
		}
	}
	return true
}

func category(out map[string]interface{}, name string) map[string]v3RuleSet {
	existing, ok := out[name].(map[string]v3RuleSet)
	if !ok {
		existing = map[string]v3RuleSet{}
		out[name] = existing
	}
	return existing
}
