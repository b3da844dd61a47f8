package contract

import (
	"bytes"
	"encoding/json"

	"github.com/form3tech-oss/pactkit/internal/app/matching"
)

const (
	SpecificationV2 = "2.0.0"
	SpecificationV3 = "3.0.0"

	DefaultSpecificationVersion = SpecificationV3
)

type Pacticipant struct {
	Name string `json:"name"`
}

type Metadata struct {
	PactSpecification PactSpecification `json:"pactSpecification"`
}

type PactSpecification struct {
	Version string `json:"version"`
}

// ProviderState is a precondition named by the consumer. Its implementation
// belongs to the provider.
type ProviderState struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type Request struct {
	Method        string
	Path          string
	Query         map[string][]string
	Headers       map[string]string
	Body          matching.Value
	MatchingRules matching.Rules
}

type Response struct {
	Status        int
	Headers       map[string]string
	Body          matching.Value
	MatchingRules matching.Rules
}

// Interaction is one request/response exchange. It is treated as immutable:
// the With* helpers return modified copies.
type Interaction struct {
	Description    string
	ProviderStates []ProviderState
	Request        Request
	Response       Response
}

// Contract is the ordered set of interactions between one consumer and one
// provider.
type Contract struct {
	Consumer     Pacticipant
	Provider     Pacticipant
	Interactions []Interaction
	Metadata     Metadata
}

func New(consumer, provider string, interactions ...Interaction) *Contract {
	c := &Contract{
		Consumer: Pacticipant{Name: consumer},
		Provider: Pacticipant{Name: provider},
		Metadata: Metadata{PactSpecification: PactSpecification{Version: DefaultSpecificationVersion}},
	}
	for _, i := range interactions {
		c.Interactions = append(c.Interactions, i.Clone())
	}
	return c
}

// WithInteraction returns a copy of c with i appended.
func (c *Contract) WithInteraction(i Interaction) *Contract {
	out := *c
	out.Interactions = make([]Interaction, 0, len(c.Interactions)+1)
	for _, existing := range c.Interactions {
		out.Interactions = append(out.Interactions, existing.Clone())
	}
	out.Interactions = append(out.Interactions, i.Clone())
	return &out
}

// Interaction finds an interaction by description.
func (c *Contract) Interaction(description string) (Interaction, bool) {
	for _, i := range c.Interactions {
		if i.Description == description {
			return i, true
		}
	}
	return Interaction{}, false
}

func (i Interaction) Clone() Interaction {
	out := i
	if i.ProviderStates != nil {
		out.ProviderStates = make([]ProviderState, len(i.ProviderStates))
		for n, s := range i.ProviderStates {
			out.ProviderStates[n] = s.clone()
		}
	}
	out.Request = i.Request.clone()
	out.Response = i.Response.clone()
	return out
}

func (i Interaction) WithProviderState(name string, params map[string]interface{}) Interaction {
	out := i.Clone()
	out.ProviderStates = append(out.ProviderStates, ProviderState{Name: name, Params: params}.clone())
	return out
}

func (i Interaction) WithRequest(r Request) Interaction {
	out := i.Clone()
	out.Request = r.clone()
	return out
}

func (i Interaction) WithResponse(r Response) Interaction {
	out := i.Clone()
	out.Response = r.clone()
	return out
}

// Equal compares interactions by their document form.
func (i Interaction) Equal(other Interaction) bool {
	a, errA := json.Marshal(newInteractionDocument(i, true))
	b, errB := json.Marshal(newInteractionDocument(other, true))
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

func (s ProviderState) clone() ProviderState {
	out := s
	if s.Params != nil {
		out.Params = make(map[string]interface{}, len(s.Params))
		for k, v := range s.Params {
			out.Params[k] = v
		}
	}
	return out
}

func (r Request) clone() Request {
	out := r
	if r.Query != nil {
		out.Query = make(map[string][]string, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	out.Headers = cloneHeaders(r.Headers)
	out.MatchingRules = cloneRules(r.MatchingRules)
	return out
}

func (r Response) clone() Response {
	out := r
	out.Headers = cloneHeaders(r.Headers)
	out.MatchingRules = cloneRules(r.MatchingRules)
	return out
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func cloneRules(r matching.Rules) matching.Rules {
	if r == nil {
		return nil
	}
	out := make(matching.Rules, len(r))
	for k, v := range r {
		out[k] = matching.RuleSet{
			Matchers: append([]matching.Rule(nil), v.Matchers...),
			Combine:  v.Combine,
		}
	}
	return out
}
