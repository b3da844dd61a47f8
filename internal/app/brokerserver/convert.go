package brokerserver

import (
	"github.com/form3tech-oss/pactkit/internal/app/brokerapi"
	"github.com/form3tech-oss/pactkit/internal/app/brokerstore"
)

func toAPIPacts(pacts []brokerstore.Pact) []brokerapi.Pact {
	out := make([]brokerapi.Pact, 0, len(pacts))
	for _, p := range pacts {
		out = append(out, brokerapi.Pact{
			Consumer:        p.Consumer,
			Provider:        p.Provider,
			ConsumerVersion: p.ConsumerVersion,
			Tags:            p.Tags,
			PactVersion:     p.PactVersion,
			Content:         p.Content,
			PublishedAt:     p.PublishedAt,
		})
	}
	return out
}

func toAPIVerification(v brokerstore.Verification) brokerapi.Verification {
	return brokerapi.Verification{
		ID:              v.ID,
		Consumer:        v.Consumer,
		Provider:        v.Provider,
		PactVersion:     v.PactVersion,
		ProviderVersion: v.ProviderVersion,
		Success:         v.Success,
		Result:          v.Result,
		VerifiedAt:      v.VerifiedAt,
	}
}

func toAPIDeployment(d brokerstore.Deployment) brokerapi.Deployment {
	return brokerapi.Deployment{
		Pacticipant: d.Pacticipant,
		Version:     d.Version,
		Environment: d.Environment,
		DeployedAt:  d.DeployedAt,
	}
}

func toAPICanIDeploy(r *brokerstore.CanIDeployResult) brokerapi.CanIDeployResult {
	out := brokerapi.CanIDeployResult{
		Pacticipant:  r.Pacticipant,
		Version:      r.Version,
		Environment:  r.Environment,
		Deployable:   r.Deployable,
		Reason:       r.Reason,
		Integrations: make([]brokerapi.Integration, 0, len(r.Integrations)),
	}
	for _, i := range r.Integrations {
		out.Integrations = append(out.Integrations, brokerapi.Integration(i))
	}
	return out
}
