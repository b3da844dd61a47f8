package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/broker"
	"github.com/form3tech-oss/pactkit/internal/app/brokerapi"
	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/verifier"
	"github.com/form3tech-oss/pactkit/pkg/dsl"
	"github.com/form3tech-oss/pactkit/pkg/mockclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userExists = "user 1 exists"

// ContractFlowStage walks a pact from a consumer test through the broker to
// provider verification and a deployment decision.
type ContractFlowStage struct {
	t               *testing.T
	assert          *assert.Assertions
	require         *require.Assertions
	ctx             context.Context
	broker          *broker.Client
	consumer        string
	provider        string
	consumerVersion string
	pact            *contract.Contract
	providerServer  *httptest.Server
	users           map[string]string
	usersMu         sync.Mutex
	providerName    string
	results         []*verifier.Result
	canIDeploy      *brokerapi.CanIDeployResult
}

func NewContractFlowStage(t *testing.T) (*ContractFlowStage, *ContractFlowStage, *ContractFlowStage) {
	suffix := strconv.FormatInt(time.Now().UnixNano(), 10)
	s := &ContractFlowStage{
		t:        t,
		assert:   assert.New(t),
		require:  require.New(t),
		ctx:      context.Background(),
		broker:   broker.NewClient(brokerURL, broker.WithRetry(2, 10*time.Millisecond)),
		consumer: "web-" + suffix,
		provider: "users-" + suffix,
		users:    map[string]string{},
	}

	t.Cleanup(func() {
		_ = mockclient.NewConfiguration(adminURL.String()).Reset()
	})

	return s, s, s
}

func (s *ContractFlowStage) and() *ContractFlowStage {
	return s
}

func (s *ContractFlowStage) a_consumer_test_that_expects_a_user_with_any_name() *ContractFlowStage {
	mock, err := setupAndWaitForMock(s.consumer, s.provider, s.t.TempDir())
	s.require.NoError(err)

	s.require.NoError(mock.AddInteraction(dsl.NewInteraction().
		Given(userExists).
		UponReceiving("a request for user 1").
		WithRequest(dsl.Request{
			Method:  http.MethodGet,
			Path:    dsl.Term("/users/1", `/users/\d+`),
			Headers: dsl.MapMatcher{"Accept": dsl.String("application/json")},
		}).
		WillRespondWith(dsl.Response{
			Status:  http.StatusOK,
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body: map[string]interface{}{
				"id":   dsl.Integer(1),
				"name": dsl.Like("jim"),
			},
		}).
		MustBuild()))

	req, err := http.NewRequest(http.MethodGet, mock.URL()+"/users/1", nil)
	s.require.NoError(err)
	req.Header.Set("Accept", "application/json")
	res, err := http.DefaultClient.Do(req)
	s.require.NoError(err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	s.require.NoError(err)
	s.require.Equal(http.StatusOK, res.StatusCode, string(body))
	s.require.JSONEq(`{"id": 1, "name": "jim"}`, string(body))

	s.require.NoError(mock.Verify())
	path, err := mock.WritePact("")
	s.require.NoError(err)
	s.pact, err = contract.ReadFile(path)
	s.require.NoError(err)
	return s
}

func (s *ContractFlowStage) the_pact_is_published_as_version(version string) *ContractFlowStage {
	s.consumerVersion = version
	publication, err := s.broker.Publish(s.ctx, s.pact, version, "main")
	s.require.NoError(err)
	s.assert.True(publication.Created)
	return s
}

func (s *ContractFlowStage) a_provider_that_returns_the_name(name string) *ContractFlowStage {
	s.providerName = name
	s.providerServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/users/")
		s.usersMu.Lock()
		name, ok := s.users[id]
		s.usersMu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id": %s, "name": %q, "email": "%s@example.com"}`, id, name, name)
	}))
	s.t.Cleanup(s.providerServer.Close)
	return s
}

func (s *ContractFlowStage) stateHandlers() *verifier.Registry {
	return verifier.NewRegistry().
		Register(userExists, func(ctx context.Context, _ contract.ProviderState) error {
			s.usersMu.Lock()
			defer s.usersMu.Unlock()
			s.users["1"] = s.providerName
			return nil
		}).
		RegisterTeardown(userExists, func(ctx context.Context, _ contract.ProviderState) error {
			s.usersMu.Lock()
			defer s.usersMu.Unlock()
			delete(s.users, "1")
			return nil
		})
}

func (s *ContractFlowStage) the_provider_verifies_its_pending_pacts_as_version(version string) *ContractFlowStage {
	return s.verify(version, s.stateHandlers())
}

func (s *ContractFlowStage) the_provider_verifies_without_state_handlers_as_version(version string) *ContractFlowStage {
	return s.verify(version, verifier.NewRegistry())
}

func (s *ContractFlowStage) verify(version string, states verifier.StateHandlers) *ContractFlowStage {
	pending, err := s.broker.FetchPending(s.ctx, s.provider, "main")
	s.require.NoError(err)
	s.require.Len(pending, 1, "expected exactly the published pact to be pending")

	contracts := []*contract.Contract{pending[0].Contract}
	s.results = verifier.New().VerifyAll(s.ctx, contracts, s.providerServer.URL, states)
	s.require.NoError(s.results[0].Err)

	_, err = s.broker.PublishVerificationResult(s.ctx, pending[0], version, s.results[0])
	s.require.NoError(err)
	return s
}

func (s *ContractFlowStage) the_provider_version_is_deployed_to(version, environment string) *ContractFlowStage {
	s.require.NoError(s.broker.RecordDeployment(s.ctx, s.provider, version, environment))
	return s
}

func (s *ContractFlowStage) the_consumer_version_is_deployed_to(environment string) *ContractFlowStage {
	s.require.NoError(s.broker.RecordDeployment(s.ctx, s.consumer, s.consumerVersion, environment))
	return s
}

func (s *ContractFlowStage) the_consumer_asks_to_deploy_to(environment string) *ContractFlowStage {
	var err error
	s.canIDeploy, err = s.broker.CanIDeploy(s.ctx, s.consumer, s.consumerVersion, environment)
	s.require.NoError(err)
	return s
}

func (s *ContractFlowStage) the_provider_asks_to_deploy_version_to(version, environment string) *ContractFlowStage {
	var err error
	s.canIDeploy, err = s.broker.CanIDeploy(s.ctx, s.provider, version, environment)
	s.require.NoError(err)
	return s
}

func (s *ContractFlowStage) verification_is_successful() *ContractFlowStage {
	s.require.Len(s.results, 1)
	s.assert.True(s.results[0].Success, "verification failed: %+v", s.results[0].Interactions)
	return s
}

func (s *ContractFlowStage) verification_fails_with_status(status verifier.Status) *ContractFlowStage {
	s.require.Len(s.results, 1)
	s.assert.False(s.results[0].Success)
	s.require.Len(s.results[0].Interactions, 1)
	s.assert.Equal(status, s.results[0].Interactions[0].Status)
	return s
}

func (s *ContractFlowStage) deployment_is_allowed() *ContractFlowStage {
	s.require.NotNil(s.canIDeploy)
	s.assert.True(s.canIDeploy.Deployable, "%+v", s.canIDeploy.Integrations)
	return s
}

func (s *ContractFlowStage) deployment_is_refused_because(reason string) *ContractFlowStage {
	s.require.NotNil(s.canIDeploy)
	s.assert.False(s.canIDeploy.Deployable)
	var reasons []string
	for _, i := range s.canIDeploy.Integrations {
		reasons = append(reasons, i.Reason)
	}
	s.assert.Contains(strings.Join(reasons, "\n"), reason)
	return s
}
