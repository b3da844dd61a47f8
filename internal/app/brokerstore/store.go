package brokerstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"
	"github.com/pkg/errors"
)

var (
	// ErrConflict is returned when a consumer version is published again
	// with different content.
	ErrConflict = errors.New("pact already published with different content")
	ErrNotFound = errors.New("not found")
)

// Pact is a contract as published by one consumer version. Tags label the
// consumer version and are only read on publish.
type Pact struct {
	Consumer        string          `json:"consumer"`
	Provider        string          `json:"provider"`
	ConsumerVersion string          `json:"consumer_version"`
	Tags            []string        `json:"tags,omitempty"`
	PactVersion     string          `json:"pact_version"`
	Content         json.RawMessage `json:"content"`
	PublishedAt     time.Time       `json:"published_at"`

	seq int64
}

type Verification struct {
	ID              string          `json:"id"`
	Consumer        string          `json:"consumer"`
	Provider        string          `json:"provider"`
	PactVersion     string          `json:"pact_version"`
	ProviderVersion string          `json:"provider_version"`
	Success         bool            `json:"success"`
	Result          json.RawMessage `json:"result,omitempty"`
	VerifiedAt      time.Time       `json:"verified_at"`
}

type Deployment struct {
	Pacticipant string    `json:"pacticipant"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	DeployedAt  time.Time `json:"deployed_at"`
}

// Integration is the can-i-deploy verdict for one consumer/provider pair.
type Integration struct {
	Consumer        string `json:"consumer"`
	ConsumerVersion string `json:"consumer_version,omitempty"`
	Provider        string `json:"provider"`
	ProviderVersion string `json:"provider_version,omitempty"`
	PactVersion     string `json:"pact_version,omitempty"`
	Deployable      bool   `json:"deployable"`
	Reason          string `json:"reason"`
}

type CanIDeployResult struct {
	Pacticipant  string        `json:"pacticipant"`
	Version      string        `json:"version"`
	Environment  string        `json:"environment"`
	Deployable   bool          `json:"deployable"`
	Reason       string        `json:"reason,omitempty"`
	Integrations []Integration `json:"integrations"`
}

// Store is the broker's versioned, append-mostly storage. Published pacts
// are never edited in place.
type Store interface {
	// PublishPact stores a pact for a consumer version. Publishing identical
	// content again is a no-op that reports created=false.
	PublishPact(ctx context.Context, p Pact) (stored Pact, created bool, err error)
	// LatestPacts returns the latest pact of every consumer of provider,
	// restricted to consumer versions tagged tag when tag is not empty.
	LatestPacts(ctx context.Context, provider, tag string) ([]Pact, error)
	PactByVersion(ctx context.Context, provider, consumer, pactVersion string) (Pact, error)
	RecordVerification(ctx context.Context, v Verification) (Verification, error)
	RecordDeployment(ctx context.Context, d Deployment) error
	CanIDeploy(ctx context.Context, pacticipant, version, environment string) (*CanIDeployResult, error)
	Close() error
}

// PactVersion identifies pact content independently of formatting: the
// SHA-256 of its JSON canonical form.
func PactVersion(content []byte) (string, error) {
	canonical, err := jcs.Transform(content)
	if err != nil {
		return "", errors.Wrap(err, "unable to canonicalise pact")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func preparePact(p Pact) (Pact, error) {
	if p.Consumer == "" || p.Provider == "" || p.ConsumerVersion == "" {
		return Pact{}, errors.New("consumer, provider and consumer version are required")
	}
	version, err := PactVersion(p.Content)
	if err != nil {
		return Pact{}, err
	}
	p.PactVersion = version
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	return p, nil
}

// newer orders two pacts of the same consumer: semantic versions when both
// parse, publication order otherwise.
func newer(a, b Pact) bool {
	va, errA := semver.NewVersion(a.ConsumerVersion)
	vb, errB := semver.NewVersion(b.ConsumerVersion)
	if errA == nil && errB == nil && !va.Equal(vb) {
		return va.GreaterThan(vb)
	}
	return a.seq > b.seq
}

// latestPerConsumer reduces pacts to the newest one per consumer, keeping
// the order in which consumers first published.
func latestPerConsumer(pacts []Pact) []Pact {
	index := map[string]int{}
	var latest []Pact
	for _, p := range pacts {
		n, ok := index[p.Consumer]
		if !ok {
			index[p.Consumer] = len(latest)
			latest = append(latest, p)
			continue
		}
		if newer(p, latest[n]) {
			latest[n] = p
		}
	}
	return latest
}

// querier is what can-i-deploy needs from a store.
type querier interface {
	pactsOfConsumerVersion(ctx context.Context, consumer, version string) ([]Pact, error)
	pactOf(ctx context.Context, consumer, consumerVersion, provider string) (Pact, bool, error)
	consumersOf(ctx context.Context, provider string) ([]string, error)
	deployedVersion(ctx context.Context, pacticipant, environment string) (string, bool, error)
	verified(ctx context.Context, pactVersion, provider, providerVersion string) (found, success bool, err error)
	// knownVersion reports whether pacticipant ever published, verified or
	// deployed version.
	knownVersion(ctx context.Context, pacticipant, version string) (bool, error)
}

// canIDeploy checks every integration of pacticipant at version against the
// counterpart versions deployed in environment. A counterpart that is not
// deployed there does not block. A version the broker has never seen, with
// no integrations to judge, is not deployable.
func canIDeploy(ctx context.Context, q querier, pacticipant, version, environment string) (*CanIDeployResult, error) {
	result := &CanIDeployResult{
		Pacticipant: pacticipant,
		Version:     version,
		Environment: environment,
		Deployable:  true,
	}
	add := func(i Integration) {
		if !i.Deployable {
			result.Deployable = false
		}
		result.Integrations = append(result.Integrations, i)
	}

	// as a consumer
	pacts, err := q.pactsOfConsumerVersion(ctx, pacticipant, version)
	if err != nil {
		return nil, err
	}
	for _, p := range pacts {
		i := Integration{Consumer: pacticipant, ConsumerVersion: version, Provider: p.Provider, PactVersion: p.PactVersion}
		providerVersion, deployed, err := q.deployedVersion(ctx, p.Provider, environment)
		if err != nil {
			return nil, err
		}
		if !deployed {
			i.Deployable = true
			i.Reason = fmt.Sprintf("%s is not deployed in %s", p.Provider, environment)
			add(i)
			continue
		}
		i.ProviderVersion = providerVersion
		if err := judge(ctx, q, &i); err != nil {
			return nil, err
		}
		add(i)
	}

	// as a provider
	consumers, err := q.consumersOf(ctx, pacticipant)
	if err != nil {
		return nil, err
	}
	for _, consumer := range consumers {
		i := Integration{Consumer: consumer, Provider: pacticipant, ProviderVersion: version}
		consumerVersion, deployed, err := q.deployedVersion(ctx, consumer, environment)
		if err != nil {
			return nil, err
		}
		if !deployed {
			i.Deployable = true
			i.Reason = fmt.Sprintf("%s is not deployed in %s", consumer, environment)
			add(i)
			continue
		}
		i.ConsumerVersion = consumerVersion
		p, found, err := q.pactOf(ctx, consumer, consumerVersion, pacticipant)
		if err != nil {
			return nil, err
		}
		if !found {
			i.Deployable = true
			i.Reason = fmt.Sprintf("%s version %s has no pact with %s", consumer, consumerVersion, pacticipant)
			add(i)
			continue
		}
		i.PactVersion = p.PactVersion
		if err := judge(ctx, q, &i); err != nil {
			return nil, err
		}
		add(i)
	}

	if len(result.Integrations) == 0 {
		result.Integrations = []Integration{}
		known, err := q.knownVersion(ctx, pacticipant, version)
		if err != nil {
			return nil, err
		}
		if !known {
			result.Deployable = false
			result.Reason = fmt.Sprintf("%s version %s is unknown to the broker", pacticipant, version)
		}
	}
	return result, nil
}

func judge(ctx context.Context, q querier, i *Integration) error {
	found, success, err := q.verified(ctx, i.PactVersion, i.Provider, i.ProviderVersion)
	if err != nil {
		return err
	}
	switch {
	case !found:
		i.Reason = fmt.Sprintf("no verification of the pact between %s %s and %s %s",
			i.Consumer, i.ConsumerVersion, i.Provider, i.ProviderVersion)
	case !success:
		i.Reason = fmt.Sprintf("verification of the pact between %s %s and %s %s failed",
			i.Consumer, i.ConsumerVersion, i.Provider, i.ProviderVersion)
	default:
		i.Deployable = true
		i.Reason = fmt.Sprintf("the pact between %s %s and %s %s is verified",
			i.Consumer, i.ConsumerVersion, i.Provider, i.ProviderVersion)
	}
	return nil
}
