package dsl

import (
	"net/http"
	"sort"
	"strings"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/matching"
	"github.com/pkg/errors"
)

// Interaction is the recorded form built by an InteractionBuilder.
type Interaction = contract.Interaction

// MapMatcher holds header or query values.
type MapMatcher map[string]Matcher

type Request struct {
	Method  string
	Path    Matcher
	Query   MapMatcher
	Headers MapMatcher
	Body    interface{}
}

type Response struct {
	Status  int
	Headers MapMatcher
	Body    interface{}
}

type InteractionBuilder struct {
	description string
	states      []contract.ProviderState
	request     *Request
	response    *Response
}

func NewInteraction() *InteractionBuilder {
	return &InteractionBuilder{}
}

func (b *InteractionBuilder) Given(state string) *InteractionBuilder {
	return b.GivenWithParams(state, nil)
}

func (b *InteractionBuilder) GivenWithParams(state string, params map[string]interface{}) *InteractionBuilder {
	b.states = append(b.states, contract.ProviderState{Name: state, Params: params})
	return b
}

func (b *InteractionBuilder) UponReceiving(description string) *InteractionBuilder {
	b.description = description
	return b
}

func (b *InteractionBuilder) WithRequest(r Request) *InteractionBuilder {
	b.request = &r
	return b
}

func (b *InteractionBuilder) WillRespondWith(r Response) *InteractionBuilder {
	b.response = &r
	return b
}

// Build resolves every matcher into example values and matching rules.
func (b *InteractionBuilder) Build() (Interaction, error) {
	if b.description == "" {
		return Interaction{}, errors.New("interaction has no description, call UponReceiving")
	}
	if b.request == nil {
		return Interaction{}, errors.Errorf("interaction %q has no request, call WithRequest", b.description)
	}
	if b.response == nil {
		return Interaction{}, errors.Errorf("interaction %q has no response, call WillRespondWith", b.description)
	}

	request, err := b.request.build()
	if err != nil {
		return Interaction{}, errors.Wrapf(err, "interaction %q request", b.description)
	}
	response, err := b.response.build()
	if err != nil {
		return Interaction{}, errors.Wrapf(err, "interaction %q response", b.description)
	}

	i := Interaction{
		Description: b.description,
		Request:     request,
		Response:    response,
	}
	for _, s := range b.states {
		i = i.WithProviderState(s.Name, s.Params)
	}
	return i, nil
}

// MustBuild is Build for test setup code, it panics on error.
func (b *InteractionBuilder) MustBuild() Interaction {
	i, err := b.Build()
	if err != nil {
		panic(err)
	}
	return i
}

func (r Request) build() (contract.Request, error) {
	if r.Path == nil {
		return contract.Request{}, errors.New("path is required")
	}
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	rules := matching.Rules{}
	path, err := reifyString(r.Path, matching.Root("path"), rules)
	if err != nil {
		return contract.Request{}, err
	}
	out := contract.Request{Method: method, Path: path}

	if len(r.Query) > 0 {
		out.Query = map[string][]string{}
		for _, name := range sortedNames(r.Query) {
			v, err := reifyString(r.Query[name], matching.Root("query", name), rules)
			if err != nil {
				return contract.Request{}, err
			}
			out.Query[name] = []string{v}
		}
	}
	if out.Headers, err = buildHeaders(r.Headers, rules); err != nil {
		return contract.Request{}, err
	}
	if out.Body, err = buildBody(r.Body, rules); err != nil {
		return contract.Request{}, err
	}
	if len(rules) > 0 {
		out.MatchingRules = rules
	}
	return out, nil
}

func (r Response) build() (contract.Response, error) {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	rules := matching.Rules{}
	out := contract.Response{Status: status}
	var err error
	if out.Headers, err = buildHeaders(r.Headers, rules); err != nil {
		return contract.Response{}, err
	}
	if out.Body, err = buildBody(r.Body, rules); err != nil {
		return contract.Response{}, err
	}
	if len(rules) > 0 {
		out.MatchingRules = rules
	}
	return out, nil
}

func buildHeaders(headers MapMatcher, rules matching.Rules) (map[string]string, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(headers))
	for _, name := range sortedNames(headers) {
		v, err := reifyString(headers[name], matching.Root("header", name), rules)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func buildBody(body interface{}, rules matching.Rules) (matching.Value, error) {
	if body == nil {
		return matching.Undefined(), nil
	}
	return reify(body, matching.Root("body"), rules)
}

func sortedNames(m MapMatcher) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
