// Package brokerapi holds the JSON documents exchanged over the broker HTTP
// API, shared by the server and the client.
package brokerapi

import (
	"encoding/json"
	"time"
)

// Publication is the answer to a pact publish.
type Publication struct {
	Consumer        string `json:"consumer"`
	Provider        string `json:"provider"`
	ConsumerVersion string `json:"consumer_version"`
	PactVersion     string `json:"pact_version"`
	Created         bool   `json:"created"`
}

type Pact struct {
	Consumer        string          `json:"consumer"`
	Provider        string          `json:"provider"`
	ConsumerVersion string          `json:"consumer_version"`
	Tags            []string        `json:"tags,omitempty"`
	PactVersion     string          `json:"pact_version"`
	Content         json.RawMessage `json:"content"`
	PublishedAt     time.Time       `json:"published_at"`
}

// PactList is the answer to a latest pacts query.
type PactList struct {
	Pacts []Pact `json:"pacts"`
}

// VerificationRequest is the body of a verification result post.
type VerificationRequest struct {
	ProviderVersion string          `json:"provider_version"`
	Success         bool            `json:"success"`
	Result          json.RawMessage `json:"result,omitempty"`
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

// CanIDeployResult is the answer to a can-i-deploy query. Reason explains a
// refusal that no single integration accounts for.
type CanIDeployResult struct {
	Pacticipant  string        `json:"pacticipant"`
	Version      string        `json:"version"`
	Environment  string        `json:"environment"`
	Deployable   bool          `json:"deployable"`
	Reason       string        `json:"reason,omitempty"`
	Integrations []Integration `json:"integrations"`
}
