package mockservice

import (
	"net/http"
	"sync"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/matching"
	"github.com/pkg/errors"
)

// Interaction is a configured interaction together with the requests it has
// served.
type Interaction struct {
	mu             sync.RWMutex
	definition     contract.Interaction
	Description    string
	RequestCount   int
	RequestHistory []RequestDocument
	LastRequest    *RequestDocument
	modifiers      *interactionModifiers
	recordHistory  bool
}

func newInteraction(definition contract.Interaction, recordHistory bool) *Interaction {
	return &Interaction{
		definition:    definition.Clone(),
		Description:   definition.Description,
		modifiers:     newInteractionModifiers(),
		recordHistory: recordHistory,
	}
}

// LoadInteraction parses and validates a single interaction document.
func LoadInteraction(data []byte) (contract.Interaction, error) {
	var i contract.Interaction
	if err := i.UnmarshalJSON(data); err != nil {
		return contract.Interaction{}, errors.Wrap(err, "unable to parse interaction definition")
	}
	// validate through a single interaction contract, which reuses every
	// structural check
	c := &contract.Contract{
		Consumer:     contract.Pacticipant{Name: "consumer"},
		Provider:     contract.Pacticipant{Name: "provider"},
		Interactions: []contract.Interaction{i},
	}
	if err := c.Validate(); err != nil {
		return contract.Interaction{}, err
	}
	return i, nil
}

func (i *Interaction) Definition() contract.Interaction {
	return i.definition.Clone()
}

func (i *Interaction) match(req *http.Request, body []byte) matching.Result {
	return i.definition.Request.Match(req, body)
}

// StoreRequest records a served request and returns its attempt number,
// starting at 1.
func (i *Interaction) StoreRequest(request RequestDocument) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.LastRequest = &request
	i.RequestCount++

	if i.recordHistory {
		i.RequestHistory = append(i.RequestHistory, request)
	}
	return i.RequestCount
}

func (i *Interaction) HasRequests(count int) bool {
	return i.getRequestCount() >= count
}

func (i *Interaction) getRequestCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.RequestCount
}

func (i *Interaction) status() interactionStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s := interactionStatus{
		Description:  i.Description,
		RequestCount: i.RequestCount,
		LastRequest:  i.LastRequest,
	}
	if i.recordHistory {
		s.RequestHistory = append([]RequestDocument(nil), i.RequestHistory...)
	}
	return s
}

// interactionStatus is the admin API view of an interaction.
type interactionStatus struct {
	Description    string            `json:"description"`
	RequestCount   int               `json:"request_count"`
	RequestHistory []RequestDocument `json:"request_history,omitempty"`
	LastRequest    *RequestDocument  `json:"last_request,omitempty"`
}
