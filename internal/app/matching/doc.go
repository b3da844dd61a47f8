// Package matching decides whether an observed value satisfies an expected
// one.
//
// Values are held in a typed tree (Value) rather than decoded into
// interface{}, so comparison needs no reflection. A comparison walks the
// expected tree and, at each node, applies the rule set registered for that
// path if there is one:
//
//   - equality: strict structural equality
//   - type: same shape class only; cascades to descendants without a rule
//   - regex: the rendered string must fully match the pattern
//   - include: the rendered string must contain the value
//   - min/max: array length bounds, elements matched against the first
//     expected element as a template
//   - integer, decimal: number refinements
//
// Without a rule, scalars compare by equality, objects require every
// expected key (extra actual keys are ignored) and arrays compare by position
// with equal length.
package matching
