package mockservice

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/matching"
)

// Candidate is a configured interaction that did not match a request, with
// the reasons why.
type Candidate struct {
	Description string              `json:"description"`
	Mismatches  []matching.Mismatch `json:"mismatches"`
}

// UnexpectedRequest is a request no configured interaction matched.
type UnexpectedRequest struct {
	Request    RequestDocument `json:"request"`
	Candidates []Candidate     `json:"candidates,omitempty"`
}

// VerificationMismatchError is returned by Finish when the consumer test
// did not exercise exactly the configured interactions.
type VerificationMismatchError struct {
	MissingInteractions []string            `json:"missing_interactions,omitempty"`
	UnexpectedRequests  []UnexpectedRequest `json:"unexpected_requests,omitempty"`
}

func (e *VerificationMismatchError) Error() string {
	var sb strings.Builder
	sb.WriteString("mock service verification failed")
	if len(e.MissingInteractions) > 0 {
		sb.WriteString("\nmissing requests:")
		for _, d := range e.MissingInteractions {
			fmt.Fprintf(&sb, "\n  %s", d)
		}
	}
	if len(e.UnexpectedRequests) > 0 {
		sb.WriteString("\nunexpected requests:")
		for _, u := range e.UnexpectedRequests {
			fmt.Fprintf(&sb, "\n  %s", u.Request)
		}
	}
	return sb.String()
}

// Interactions is the ordered set of configured interactions and the
// requests nothing matched. Matching a request and recording the outcome
// happen under one lock.
type Interactions struct {
	mu            sync.Mutex
	interactions  []*Interaction
	unexpected    []UnexpectedRequest
	recordHistory bool
}

// Store adds an interaction. Storing an identical interaction again is a
// no-op; reusing a description for a different interaction is an error.
func (i *Interactions) Store(definition contract.Interaction) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, existing := range i.interactions {
		if existing.Description != definition.Description {
			continue
		}
		if existing.definition.Equal(definition) {
			return nil
		}
		return &contract.ValidationError{Problems: []string{
			fmt.Sprintf("interaction %q is already configured with a different request or response", definition.Description),
		}}
	}
	i.interactions = append(i.interactions, newInteraction(definition, i.recordHistory))
	return nil
}

// Clear removes every interaction and forgets unexpected requests.
func (i *Interactions) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interactions = nil
	i.unexpected = nil
}

func (i *Interactions) Load(description string) (*Interaction, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, interaction := range i.interactions {
		if interaction.Description == description {
			return interaction, true
		}
	}
	return nil, false
}

func (i *Interactions) All() []*Interaction {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*Interaction(nil), i.interactions...)
}

func (i *Interactions) Definitions() []contract.Interaction {
	all := i.All()
	out := make([]contract.Interaction, 0, len(all))
	for _, interaction := range all {
		out = append(out, interaction.Definition())
	}
	return out
}

// Match finds the first configured interaction matching the request and
// records the request against it, returning the attempt number. When
// nothing matches the request is recorded as unexpected and returned.
func (i *Interactions) Match(req *http.Request, body []byte) (*Interaction, int, *UnexpectedRequest) {
	doc := newRequestDocument(req, body)

	i.mu.Lock()
	defer i.mu.Unlock()

	candidates := make([]Candidate, 0, len(i.interactions))
	for _, interaction := range i.interactions {
		result := interaction.match(req, body)
		if result.OK() {
			return interaction, interaction.StoreRequest(doc), nil
		}
		candidates = append(candidates, Candidate{
			Description: interaction.Description,
			Mismatches:  result.Mismatches,
		})
	}

	unexpected := UnexpectedRequest{Request: doc, Candidates: candidates}
	i.unexpected = append(i.unexpected, unexpected)
	return nil, 0, &unexpected
}

func (i *Interactions) AllHaveRequests() bool {
	for _, interaction := range i.All() {
		if !interaction.HasRequests(1) {
			return false
		}
	}
	return true
}

// Verify reports configured interactions that were never requested and
// requests that matched nothing.
func (i *Interactions) Verify() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	mismatch := &VerificationMismatchError{}
	for _, interaction := range i.interactions {
		if !interaction.HasRequests(1) {
			mismatch.MissingInteractions = append(mismatch.MissingInteractions, interaction.Description)
		}
	}
	mismatch.UnexpectedRequests = append(mismatch.UnexpectedRequests, i.unexpected...)

	if len(mismatch.MissingInteractions) == 0 && len(mismatch.UnexpectedRequests) == 0 {
		return nil
	}
	return mismatch
}
