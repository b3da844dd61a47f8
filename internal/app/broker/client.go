package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pactkit/internal/app/brokerapi"
	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/httpresponse"
	"github.com/form3tech-oss/pactkit/internal/app/verifier"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
	defaultTimeout  = 30 * time.Second
)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithRetry sets how often reads are attempted and the initial backoff.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// Client speaks the broker HTTP API. Reads are retried, writes never are.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	attempts uint
	delay    time.Duration
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
		delay:    defaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PendingPact is a pact the provider has to verify.
type PendingPact struct {
	Consumer        string
	Provider        string
	ConsumerVersion string
	PactVersion     string
	Contract        *contract.Contract
}

// Publish stores c under consumerVersion, tagging the version with tags.
func (c *Client) Publish(ctx context.Context, pact *contract.Contract, consumerVersion string, tags ...string) (*brokerapi.Publication, error) {
	if err := pact.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(pact)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode pact")
	}

	path := "/pacts/provider/" + url.PathEscape(pact.Provider.Name) +
		"/consumer/" + url.PathEscape(pact.Consumer.Name) +
		"/version/" + url.PathEscape(consumerVersion)
	if len(tags) > 0 {
		path += "?" + url.Values{"tag": tags}.Encode()
	}

	var publication brokerapi.Publication
	err = c.do(ctx, http.MethodPut, path, body, &publication)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return nil, &PublishConflictError{
			Consumer:        pact.Consumer.Name,
			Provider:        pact.Provider.Name,
			ConsumerVersion: consumerVersion,
			Message:         statusErr.Message,
		}
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"consumer":     pact.Consumer.Name,
		"provider":     pact.Provider.Name,
		"version":      consumerVersion,
		"pact_version": publication.PactVersion,
	}).Info("pact published")
	return &publication, nil
}

// FetchPending returns the latest pact of every consumer of provider, plus
// the latest pacts of consumer versions carrying any of tags, each pact
// version once.
func (c *Client) FetchPending(ctx context.Context, provider string, tags ...string) ([]PendingPact, error) {
	paths := []string{"/pacts/provider/" + url.PathEscape(provider) + "/latest"}
	for _, tag := range tags {
		paths = append(paths, paths[0]+"/"+url.PathEscape(tag))
	}

	seen := map[string]bool{}
	var pending []PendingPact
	for _, path := range paths {
		var list brokerapi.PactList
		if err := c.read(ctx, path, &list); err != nil {
			return nil, err
		}
		for _, p := range list.Pacts {
			if seen[p.PactVersion] {
				continue
			}
			seen[p.PactVersion] = true
			parsed, err := contract.Parse(p.Content)
			if err != nil {
				return nil, errors.Wrapf(err, "pact %s of %s version %s", p.PactVersion, p.Consumer, p.ConsumerVersion)
			}
			pending = append(pending, PendingPact{
				Consumer:        p.Consumer,
				Provider:        p.Provider,
				ConsumerVersion: p.ConsumerVersion,
				PactVersion:     p.PactVersion,
				Contract:        parsed,
			})
		}
	}
	return pending, nil
}

// PublishVerificationResult records result against the pact version and
// providerVersion.
func (c *Client) PublishVerificationResult(ctx context.Context, pact PendingPact, providerVersion string, result *verifier.Result) (*brokerapi.Verification, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode verification result")
	}
	body, err := json.Marshal(brokerapi.VerificationRequest{
		ProviderVersion: providerVersion,
		Success:         result.Success,
		Result:          encoded,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode verification result")
	}

	path := "/pacts/provider/" + url.PathEscape(pact.Provider) +
		"/consumer/" + url.PathEscape(pact.Consumer) +
		"/pact-version/" + url.PathEscape(pact.PactVersion) + "/verification-results"

	var verification brokerapi.Verification
	if err := c.do(ctx, http.MethodPost, path, body, &verification); err != nil {
		return nil, err
	}
	return &verification, nil
}

// CanIDeploy asks whether pacticipant at version is compatible with what is
// deployed in environment.
func (c *Client) CanIDeploy(ctx context.Context, pacticipant, version, environment string) (*brokerapi.CanIDeployResult, error) {
	q := url.Values{}
	q.Set("pacticipant", pacticipant)
	q.Set("version", version)
	q.Set("environment", environment)

	var result brokerapi.CanIDeployResult
	if err := c.read(ctx, "/can-i-deploy?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RecordDeployment(ctx context.Context, pacticipant, version, environment string) error {
	path := "/pacticipants/" + url.PathEscape(pacticipant) +
		"/versions/" + url.PathEscape(version) +
		"/deployments/" + url.PathEscape(environment)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// read is a GET retried with backoff on transport errors and 5xx answers.
func (c *Client) read(ctx context.Context, path string, out interface{}) error {
	return retry.Do(
		func() error {
			return c.do(ctx, http.MethodGet, path, nil, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("attempt", n+1).Warn("retrying broker read")
		}),
	)
}

func retryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	target := c.baseURL + path
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrap(err, "unable to build broker request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{Method: method, URL: target, StatusCode: res.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "unable to decode broker answer to %s %s", method, target)
	}
	return nil
}

func errorMessage(data []byte) string {
	var apiErr httpresponse.APIError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		return apiErr.ErrorMessage
	}
	return strings.TrimSpace(string(data))
}
