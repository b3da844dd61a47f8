package dsl

import (
	"sort"

	"github.com/form3tech-oss/pactkit/internal/app/matching"
	"github.com/pkg/errors"
)

// Reify turns a definition that may contain matchers into its literal
// example and the rules recorded for it, rooted at root (e.g. $.body).
func Reify(definition interface{}, root matching.Path) (matching.Value, matching.Rules, error) {
	rules := matching.Rules{}
	v, err := reify(definition, root, rules)
	if err != nil {
		return matching.Value{}, nil, err
	}
	if len(rules) == 0 {
		rules = nil
	}
	return v, rules, nil
}

func reify(definition interface{}, path matching.Path, rules matching.Rules) (matching.Value, error) {
	switch v := definition.(type) {
	case eachLike:
		r, _ := v.rule()
		rules.Add(path.String(), r)
		template, err := reify(v.template, path.AnyItem(), rules)
		if err != nil {
			return matching.Value{}, err
		}
		n := v.min
		if n < 1 {
			n = 1
		}
		items := make([]matching.Value, n)
		for i := range items {
			items[i] = template
		}
		return matching.Array(items...), nil
	case Matcher:
		if r, ok := v.rule(); ok {
			rules.Add(path.String(), r)
		}
		return reify(v.example(), path, rules)
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := matching.Object()
		for _, k := range keys {
			child, err := reify(v[k], path.Field(k), rules)
			if err != nil {
				return matching.Value{}, err
			}
			out = out.With(k, child)
		}
		return out, nil
	case []interface{}:
		items := make([]matching.Value, 0, len(v))
		for i, item := range v {
			child, err := reify(item, path.Item(i), rules)
			if err != nil {
				return matching.Value{}, err
			}
			items = append(items, child)
		}
		return matching.Array(items...), nil
	}

	out, err := matching.FromInterface(definition)
	if err != nil {
		return matching.Value{}, errors.Wrapf(err, "unable to reify %s", path)
	}
	return out, nil
}

// reifyString reifies a header, query or path value, which must be a string.
func reifyString(m Matcher, path matching.Path, rules matching.Rules) (string, error) {
	v, err := reify(m, path, rules)
	if err != nil {
		return "", err
	}
	if v.Kind() != matching.KindString {
		return "", errors.Errorf("%s must be a string but was %s", path, v.Kind())
	}
	return v.StringValue(), nil
}
