package verifier

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultTimeout = 10 * time.Second

// RequestFilter changes a request before it is sent to the provider, e.g.
// to add credentials the contract does not carry.
type RequestFilter func(*http.Request)

type Option func(*Verifier)

// WithTimeout bounds each interaction: state setup, request and response.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		v.timeout = d
	}
}

func WithRequestFilter(filter RequestFilter) Option {
	return func(v *Verifier) {
		v.filters = append(v.filters, filter)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		v.client = client
	}
}

// Verifier replays contract interactions against a running provider.
type Verifier struct {
	client  *http.Client
	timeout time.Duration
	filters []RequestFilter
}

func New(opts ...Option) *Verifier {
	v := &Verifier{
		client:  &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify replays every interaction of c, in order, against the provider at
// baseURL. Interaction failures are reported in the Result; an error is
// only returned when the contract itself is invalid.
func (v *Verifier) Verify(ctx context.Context, c *contract.Contract, baseURL string, states StateHandlers) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if states == nil {
		states = NewRegistry()
	}

	logger := log.WithFields(log.Fields{
		"consumer": c.Consumer.Name,
		"provider": c.Provider.Name,
	})
	logger.Infof("verifying %d interactions against %s", len(c.Interactions), baseURL)

	result := &Result{
		Consumer: c.Consumer.Name,
		Provider: c.Provider.Name,
		Success:  true,
	}
	for _, i := range c.Interactions {
		r := v.verifyInteraction(ctx, i, baseURL, states)
		if r.Status != StatusPass {
			result.Success = false
		}
		logger.WithFields(log.Fields{
			"interaction": i.Description,
			"status":      r.Status,
		}).Info("interaction verified")
		result.Interactions = append(result.Interactions, r)
	}
	return result, nil
}

// VerifyAll verifies independent contracts in parallel. Results are in the
// order of contracts; a contract that cannot be verified gets a failed
// Result carrying the error, so one bad contract does not hide the others.
func (v *Verifier) VerifyAll(ctx context.Context, contracts []*contract.Contract, baseURL string, states StateHandlers) []*Result {
	results := make([]*Result, len(contracts))
	var g errgroup.Group
	for n, c := range contracts {
		n, c := n, c
		g.Go(func() error {
			r, err := v.Verify(ctx, c, baseURL, states)
			if err != nil {
				err = errors.Wrapf(err, "contract %s -> %s", c.Consumer.Name, c.Provider.Name)
				log.WithError(err).Warn("contract could not be verified")
				r = &Result{Consumer: c.Consumer.Name, Provider: c.Provider.Name, Err: err}
			}
			results[n] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (v *Verifier) verifyInteraction(ctx context.Context, i contract.Interaction, baseURL string, states StateHandlers) (result InteractionResult) {
	start := time.Now()
	result.Description = i.Description
	for _, s := range i.ProviderStates {
		result.ProviderStates = append(result.ProviderStates, s.Name)
	}
	defer func() { result.Duration = time.Since(start) }()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := setUp(ctx, i.ProviderStates, states); err != nil {
		return result.errored(err)
	}
	defer v.tearDown(i.ProviderStates, states)

	req, err := i.Request.HTTPRequest(ctx, baseURL)
	if err != nil {
		return result.errored(err)
	}
	for _, filter := range v.filters {
		filter(req)
	}

	res, err := v.client.Do(req)
	if err != nil {
		return result.errored(&TransportError{Method: req.Method, URL: req.URL.String(), Err: err})
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return result.errored(&TransportError{Method: req.Method, URL: req.URL.String(), Err: err})
	}

	match := i.Response.Match(res.StatusCode, res.Header, body)
	if !match.OK() {
		result.Status = StatusFail
		result.Mismatches = match.Mismatches
		return result
	}
	result.Status = StatusPass
	return result
}

func setUp(ctx context.Context, provided []contract.ProviderState, states StateHandlers) error {
	for _, s := range provided {
		handler, ok := states.Lookup(s.Name)
		if !ok {
			return &StateSetupError{State: s.Name, Err: errNoStateHandler}
		}
		if err := handler(ctx, s); err != nil {
			return &StateSetupError{State: s.Name, Err: err}
		}
	}
	return nil
}

// tearDown undoes states in reverse order. Failures are logged, they do
// not change the interaction's outcome.
func (v *Verifier) tearDown(provided []contract.ProviderState, states StateHandlers) {
	teardown, ok := states.(TeardownHandlers)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()
	for n := len(provided) - 1; n >= 0; n-- {
		s := provided[n]
		handler, ok := teardown.LookupTeardown(s.Name)
		if !ok {
			continue
		}
		if err := handler(ctx, s); err != nil {
			log.WithError(err).WithField("state", s.Name).Warn("provider state teardown failed")
		}
	}
}
