package brokerstore

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type tagKey struct {
	pacticipant string
	version     string
}

// Memory is a Store held in process memory, for tests and throwaway brokers.
type Memory struct {
	mu            sync.RWMutex
	seq           int64
	pacts         []Pact
	tags          map[tagKey]map[string]bool
	verifications []Verification
	deployments   []Deployment
}

func NewMemory() *Memory {
	return &Memory{tags: map[tagKey]map[string]bool{}}
}

func (m *Memory) PublishPact(_ context.Context, p Pact) (Pact, bool, error) {
	p, err := preparePact(p)
	if err != nil {
		return Pact{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.pacts {
		if existing.Consumer != p.Consumer || existing.Provider != p.Provider || existing.ConsumerVersion != p.ConsumerVersion {
			continue
		}
		if existing.PactVersion != p.PactVersion {
			return Pact{}, false, ErrConflict
		}
		m.tag(p.Consumer, p.ConsumerVersion, p.Tags)
		return existing, false, nil
	}

	m.seq++
	p.seq = m.seq
	p.Content = append([]byte(nil), p.Content...)
	m.pacts = append(m.pacts, p)
	m.tag(p.Consumer, p.ConsumerVersion, p.Tags)
	return p, true, nil
}

func (m *Memory) tag(pacticipant, version string, tags []string) {
	if len(tags) == 0 {
		return
	}
	key := tagKey{pacticipant: pacticipant, version: version}
	if m.tags[key] == nil {
		m.tags[key] = map[string]bool{}
	}
	for _, t := range tags {
		m.tags[key][t] = true
	}
}

func (m *Memory) LatestPacts(_ context.Context, provider, tag string) ([]Pact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []Pact
	for _, p := range m.pacts {
		if p.Provider != provider {
			continue
		}
		if tag != "" && !m.tags[tagKey{pacticipant: p.Consumer, version: p.ConsumerVersion}][tag] {
			continue
		}
		candidates = append(candidates, p)
	}
	return latestPerConsumer(candidates), nil
}

func (m *Memory) PactByVersion(_ context.Context, provider, consumer, pactVersion string) (Pact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for n := len(m.pacts) - 1; n >= 0; n-- {
		p := m.pacts[n]
		if p.Provider == provider && p.Consumer == consumer && p.PactVersion == pactVersion {
			return p, nil
		}
	}
	return Pact{}, ErrNotFound
}

func (m *Memory) RecordVerification(_ context.Context, v Verification) (Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := false
	for _, p := range m.pacts {
		if p.Provider == v.Provider && p.Consumer == v.Consumer && p.PactVersion == v.PactVersion {
			known = true
			break
		}
	}
	if !known {
		return Verification{}, ErrNotFound
	}

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.VerifiedAt.IsZero() {
		v.VerifiedAt = time.Now().UTC()
	}
	v.Result = bytes.Clone(v.Result)
	m.verifications = append(m.verifications, v)
	return v, nil
}

func (m *Memory) RecordDeployment(_ context.Context, d Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.DeployedAt.IsZero() {
		d.DeployedAt = time.Now().UTC()
	}
	m.deployments = append(m.deployments, d)
	return nil
}

func (m *Memory) CanIDeploy(ctx context.Context, pacticipant, version, environment string) (*CanIDeployResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return canIDeploy(ctx, m, pacticipant, version, environment)
}

func (m *Memory) Close() error {
	return nil
}

// the query methods below are called with m.mu held

func (m *Memory) pactsOfConsumerVersion(_ context.Context, consumer, version string) ([]Pact, error) {
	var out []Pact
	for _, p := range m.pacts {
		if p.Consumer == consumer && p.ConsumerVersion == version {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) pactOf(_ context.Context, consumer, consumerVersion, provider string) (Pact, bool, error) {
	for _, p := range m.pacts {
		if p.Consumer == consumer && p.ConsumerVersion == consumerVersion && p.Provider == provider {
			return p, true, nil
		}
	}
	return Pact{}, false, nil
}

func (m *Memory) consumersOf(_ context.Context, provider string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range m.pacts {
		if p.Provider == provider && !seen[p.Consumer] {
			seen[p.Consumer] = true
			out = append(out, p.Consumer)
		}
	}
	return out, nil
}

func (m *Memory) deployedVersion(_ context.Context, pacticipant, environment string) (string, bool, error) {
	for n := len(m.deployments) - 1; n >= 0; n-- {
		d := m.deployments[n]
		if d.Pacticipant == pacticipant && d.Environment == environment {
			return d.Version, true, nil
		}
	}
	return "", false, nil
}

func (m *Memory) verified(_ context.Context, pactVersion, provider, providerVersion string) (bool, bool, error) {
	for n := len(m.verifications) - 1; n >= 0; n-- {
		v := m.verifications[n]
		if v.PactVersion == pactVersion && v.Provider == provider && v.ProviderVersion == providerVersion {
			return true, v.Success, nil
		}
	}
	return false, false, nil
}

func (m *Memory) knownVersion(_ context.Context, pacticipant, version string) (bool, error) {
	for _, p := range m.pacts {
		if p.Consumer == pacticipant && p.ConsumerVersion == version {
			return true, nil
		}
	}
	for _, v := range m.verifications {
		if v.Provider == pacticipant && v.ProviderVersion == version {
			return true, nil
		}
	}
	for _, d := range m.deployments {
		if d.Pacticipant == pacticipant && d.Version == version {
			return true, nil
		}
	}
	return false, nil
}
