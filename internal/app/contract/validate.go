package contract

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/PaesslerAG/jsonpath"
)

// ValidationError reports a malformed or internally inconsistent contract.
// It is fatal: nothing is verified against a contract that fails validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid contract: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid contract, %d problems:\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Validate checks the contract is structurally valid, including that
// interaction descriptions are unique and that every request side matching
// rule points at a concrete example value.
func (c *Contract) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Consumer.Name) == "" {
		add("consumer name is required")
	}
	if strings.TrimSpace(c.Provider.Name) == "" {
		add("provider name is required")
	}
	if v := c.Metadata.PactSpecification.Version; v != "" {
		if _, err := semver.NewVersion(v); err != nil {
			add("pact specification version %q is not a valid version", v)
		}
	}

	seen := map[string]int{}
	for n, i := range c.Interactions {
		label := fmt.Sprintf("interaction %d (%q)", n, i.Description)
		for _, p := range i.problems() {
			add("%s: %s", label, p)
		}
		if i.Description == "" {
			continue
		}
		if first, ok := seen[i.Description]; ok {
			if !c.Interactions[first].Equal(i) {
				add("%s: description is already used by interaction %d with a different request or response", label, first)
			}
			continue
		}
		seen[i.Description] = n
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (i Interaction) problems() []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(i.Description) == "" {
		add("description is required")
	}
	for _, s := range i.ProviderStates {
		if strings.TrimSpace(s.Name) == "" {
			add("provider state name is required")
		}
	}
	if !knownMethods[strings.ToUpper(i.Request.Method)] {
		add("request method %q is not a valid http method", i.Request.Method)
	}
	if !strings.HasPrefix(i.Request.Path, "/") {
		add("request path %q must start with /", i.Request.Path)
	}
	if i.Response.Status < 100 || i.Response.Status > 599 {
		add("response status %d is not a valid http status", i.Response.Status)
	}
	if err := i.Request.MatchingRules.Validate(); err != nil {
		add("request matching rules: %s", err)
	}
	if err := i.Response.MatchingRules.Validate(); err != nil {
		add("response matching rules: %s", err)
	}
	for _, p := range i.Request.missingExamples() {
		add("request matching rule %s has no example value, requests must be concrete", p)
	}
	return problems
}

// missingExamples lists request rule paths that do not resolve to a value in
// the request, since the verifier can only send literal requests.
func (r Request) missingExamples() []string {
	var missing []string
	for _, p := range r.MatchingRules.Paths() {
		switch {
		case p == "$.path":
			if r.Path == "" {
				missing = append(missing, p)
			}
		case strings.HasPrefix(p, "$.header."):
			if !hasHeader(r.Headers, strings.TrimPrefix(p, "$.header.")) {
				missing = append(missing, p)
			}
		case strings.HasPrefix(p, "$.query."):
			if !hasQuery(r.Query, strings.TrimPrefix(p, "$.query.")) {
				missing = append(missing, p)
			}
		case strings.HasPrefix(p, "$.body"):
			if !r.Body.IsDefined() {
				missing = append(missing, p)
				continue
			}
			expr := "$" + strings.TrimPrefix(p, "$.body")
			found, err := jsonpath.Get(expr, r.Body.Interface())
			if err != nil {
				missing = append(missing, p)
				continue
			}
			if list, ok := found.([]interface{}); ok && strings.Contains(expr, "*") && len(list) == 0 {
				missing = append(missing, p)
			}
		}
	}
	return missing
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func hasQuery(query map[string][]string, name string) bool {
	for k, v := range query {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return true
		}
	}
	return false
}
