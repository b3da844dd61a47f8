package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// StateHandler puts the provider into (or takes it out of) a named state.
type StateHandler func(ctx context.Context, state contract.ProviderState) error

// StateHandlers resolves provider state names to setup handlers.
type StateHandlers interface {
	Lookup(name string) (StateHandler, bool)
}

// TeardownHandlers is implemented by StateHandlers that also undo states
// once an interaction has been verified.
type TeardownHandlers interface {
	LookupTeardown(name string) (StateHandler, bool)
}

// Registry is an in-process set of state handlers.
type Registry struct {
	mu       sync.RWMutex
	setup    map[string]StateHandler
	teardown map[string]StateHandler
}

func NewRegistry() *Registry {
	return &Registry{
		setup:    map[string]StateHandler{},
		teardown: map[string]StateHandler{},
	}
}

func (r *Registry) Register(name string, handler StateHandler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setup[name] = handler
	return r
}

func (r *Registry) RegisterTeardown(name string, handler StateHandler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardown[name] = handler
	return r
}

func (r *Registry) Lookup(name string) (StateHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.setup[name]
	return h, ok
}

func (r *Registry) LookupTeardown(name string) (StateHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.teardown[name]
	return h, ok
}

type stateChange struct {
	State  string                 `json:"state"`
	Params map[string]interface{} `json:"params,omitempty"`
	Action string                 `json:"action"`
}

// HTTPStateHandlers sets states up through a provider endpoint that
// accepts {"state", "params", "action"} posts. Every state name resolves.
type HTTPStateHandlers struct {
	URL    string
	Client *http.Client
}

func NewHTTPStateHandlers(url string) *HTTPStateHandlers {
	return &HTTPStateHandlers{URL: url, Client: http.DefaultClient}
}

func (h *HTTPStateHandlers) Lookup(string) (StateHandler, bool) {
	return h.post("setup"), true
}

func (h *HTTPStateHandlers) LookupTeardown(string) (StateHandler, bool) {
	return h.post("teardown"), true
}

func (h *HTTPStateHandlers) post(action string) StateHandler {
	return func(ctx context.Context, state contract.ProviderState) error {
		b, err := json.Marshal(stateChange{State: state.Name, Params: state.Params, Action: action})
		if err != nil {
			return errors.Wrap(err, "unable to encode state change")
		}
		return send(ctx, h.Client, stateRequest{Method: http.MethodPost, URL: h.URL,
			Headers: map[string]string{"Content-Type": "application/json"}}, b)
	}
}

// stateRequest is one HTTP call of a state table entry.
type stateRequest struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Body    interface{}       `yaml:"body"`
}

type stateTableEntry struct {
	Setup    *stateRequest `yaml:"setup"`
	Teardown *stateRequest `yaml:"teardown"`
}

type stateTable struct {
	States map[string]stateTableEntry `yaml:"states"`
}

// LoadStateTable builds a Registry from a YAML file mapping state names to
// HTTP requests:
//
//	states:
//	  user 1 exists:
//	    setup:
//	      method: PUT
//	      url: http://localhost:8080/fixtures/users/1
//	      body: {name: jim}
//	    teardown:
//	      method: DELETE
//	      url: http://localhost:8080/fixtures/users/1
//
// A request without a body sends the state params as JSON.
func LoadStateTable(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read state table")
	}
	var table stateTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, errors.Wrapf(err, "unable to parse state table %s", path)
	}

	registry := NewRegistry()
	for name, entry := range table.States {
		if entry.Setup == nil {
			return nil, errors.Errorf("state %q has no setup request", name)
		}
		if err := entry.Setup.validate(); err != nil {
			return nil, errors.Wrapf(err, "state %q setup", name)
		}
		registry.Register(name, entry.Setup.handler())
		if entry.Teardown != nil {
			if err := entry.Teardown.validate(); err != nil {
				return nil, errors.Wrapf(err, "state %q teardown", name)
			}
			registry.RegisterTeardown(name, entry.Teardown.handler())
		}
	}
	log.WithField("states", len(table.States)).Debugf("loaded state table %s", path)
	return registry, nil
}

func (r *stateRequest) validate() error {
	if r.URL == "" {
		return errors.New("url is required")
	}
	if r.Method == "" {
		r.Method = http.MethodPost
	}
	r.Method = strings.ToUpper(r.Method)
	return nil
}

func (r stateRequest) handler() StateHandler {
	return func(ctx context.Context, state contract.ProviderState) error {
		var body []byte
		switch b := r.Body.(type) {
		case nil:
			if len(state.Params) > 0 {
				encoded, err := json.Marshal(state.Params)
				if err != nil {
					return errors.Wrap(err, "unable to encode state params")
				}
				body = encoded
			}
		case string:
			body = []byte(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return errors.Wrap(err, "unable to encode state body")
			}
			body = encoded
		}
		return send(ctx, http.DefaultClient, r, body)
	}
}

func send(ctx context.Context, client *http.Client, r stateRequest, body []byte) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, reader)
	if err != nil {
		return errors.Wrap(err, "unable to build state request")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return &TransportError{Method: r.Method, URL: r.URL, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("state endpoint answered %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
