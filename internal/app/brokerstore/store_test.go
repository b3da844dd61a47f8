package brokerstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	sqlStore, err := OpenSQLite(filepath.Join(t.TempDir(), "broker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlStore,
	}
}

func eachStore(t *testing.T, test func(t *testing.T, s Store)) {
	for name, s := range stores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			test(t, s)
		})
	}
}

func pactContent(consumer, provider, description string) []byte {
	return []byte(fmt.Sprintf(`{
		"consumer": {"name": %q},
		"provider": {"name": %q},
		"interactions": [{"description": %q, "request": {"method": "GET", "path": "/"}, "response": {"status": 200}}],
		"metadata": {"pactSpecification": {"version": "3.0.0"}}
	}`, consumer, provider, description))
}

func publish(t *testing.T, s Store, consumer, provider, version, description string, tags ...string) Pact {
	t.Helper()
	p, _, err := s.PublishPact(context.Background(), Pact{
		Consumer:        consumer,
		Provider:        provider,
		ConsumerVersion: version,
		Tags:            tags,
		Content:         pactContent(consumer, provider, description),
	})
	require.NoError(t, err)
	return p
}

func TestPactVersionIgnoresFormatting(t *testing.T) {
	a, err := PactVersion([]byte(`{"b": 1, "a": [1, 2]}`))
	require.NoError(t, err)
	b, err := PactVersion([]byte("{\n  \"a\": [1,2],\n  \"b\": 1.0\n}"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := PactVersion([]byte(`{"b": 2, "a": [1, 2]}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = PactVersion([]byte(`{`))
	assert.Error(t, err)
}

func TestPublishPact(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := Pact{Consumer: "web", Provider: "users", ConsumerVersion: "1.0.0", Content: pactContent("web", "users", "a")}

		first, created, err := s.PublishPact(ctx, p)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Len(t, first.PactVersion, 64)

		again, created, err := s.PublishPact(ctx, p)
		require.NoError(t, err)
		assert.False(t, created, "identical content is idempotent")
		assert.Equal(t, first.PactVersion, again.PactVersion)

		p.Content = pactContent("web", "users", "b")
		_, _, err = s.PublishPact(ctx, p)
		assert.True(t, errors.Is(err, ErrConflict))

		p.ConsumerVersion = "1.0.1"
		_, created, err = s.PublishPact(ctx, p)
		require.NoError(t, err)
		assert.True(t, created, "versions coexist")

		_, _, err = s.PublishPact(ctx, Pact{Consumer: "web", Content: pactContent("web", "users", "a")})
		assert.Error(t, err)
	})
}

func TestLatestPacts(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		publish(t, s, "web", "users", "1.2.0", "web 1.2.0", "main")
		publish(t, s, "web", "users", "1.10.0", "web 1.10.0")
		publish(t, s, "web", "users", "1.9.0", "web 1.9.0", "main")
		publish(t, s, "mobile", "users", "abc123", "mobile abc123")
		publish(t, s, "mobile", "users", "9f8e7d", "mobile 9f8e7d")
		publish(t, s, "web", "billing", "2.0.0", "web billing")

		latest, err := s.LatestPacts(ctx, "users", "")
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, "web", latest[0].Consumer)
		assert.Equal(t, "1.10.0", latest[0].ConsumerVersion, "semantic versions order")
		assert.Equal(t, "mobile", latest[1].Consumer)
		assert.Equal(t, "9f8e7d", latest[1].ConsumerVersion, "publication order otherwise")
		assert.JSONEq(t, string(pactContent("web", "users", "web 1.10.0")), string(latest[0].Content))

		tagged, err := s.LatestPacts(ctx, "users", "main")
		require.NoError(t, err)
		require.Len(t, tagged, 1)
		assert.Equal(t, "1.9.0", tagged[0].ConsumerVersion)

		none, err := s.LatestPacts(ctx, "nobody", "")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestTagsAreAddedOnRepublish(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		publish(t, s, "web", "users", "1.0.0", "a")
		publish(t, s, "web", "users", "1.0.0", "a", "prod")

		tagged, err := s.LatestPacts(context.Background(), "users", "prod")
		require.NoError(t, err)
		require.Len(t, tagged, 1)
	})
}

func TestRecordVerification(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := publish(t, s, "web", "users", "1.0.0", "a")

		v, err := s.RecordVerification(ctx, Verification{
			Consumer:        "web",
			Provider:        "users",
			PactVersion:     p.PactVersion,
			ProviderVersion: "2.0.0",
			Success:         true,
			Result:          []byte(`{"success": true}`),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, v.ID)
		assert.False(t, v.VerifiedAt.IsZero())

		_, err = s.RecordVerification(ctx, Verification{Consumer: "web", Provider: "users", PactVersion: "unknown", ProviderVersion: "2.0.0"})
		assert.True(t, errors.Is(err, ErrNotFound))

		found, err := s.PactByVersion(ctx, "users", "web", p.PactVersion)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", found.ConsumerVersion)
	})
}

func TestCanIDeploy(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		verify := func(p Pact, providerVersion string, success bool) {
			_, err := s.RecordVerification(ctx, Verification{
				Consumer: p.Consumer, Provider: p.Provider, PactVersion: p.PactVersion,
				ProviderVersion: providerVersion, Success: success,
			})
			require.NoError(t, err)
		}
		deploy := func(pacticipant, version string) {
			require.NoError(t, s.RecordDeployment(ctx, Deployment{Pacticipant: pacticipant, Version: version, Environment: "production"}))
		}

		web1 := publish(t, s, "web", "users", "1", "v1")
		web2 := publish(t, s, "web", "users", "2", "v2")

		// nothing deployed yet, nothing blocks
		result, err := s.CanIDeploy(ctx, "web", "1", "production")
		require.NoError(t, err)
		assert.True(t, result.Deployable)
		require.Len(t, result.Integrations, 1)
		assert.Equal(t, "users is not deployed in production", result.Integrations[0].Reason)

		deploy("users", "100")
		result, err = s.CanIDeploy(ctx, "web", "1", "production")
		require.NoError(t, err)
		assert.False(t, result.Deployable, "no verification recorded")

		verify(web1, "100", true)
		verify(web2, "100", false)

		result, err = s.CanIDeploy(ctx, "web", "1", "production")
		require.NoError(t, err)
		assert.True(t, result.Deployable)
		assert.Equal(t, "100", result.Integrations[0].ProviderVersion)

		result, err = s.CanIDeploy(ctx, "web", "2", "production")
		require.NoError(t, err)
		assert.False(t, result.Deployable)
		assert.Contains(t, result.Integrations[0].Reason, "failed")

		// provider side: the deployed consumer version decides
		deploy("web", "1")
		result, err = s.CanIDeploy(ctx, "users", "100", "production")
		require.NoError(t, err)
		assert.True(t, result.Deployable)

		result, err = s.CanIDeploy(ctx, "users", "101", "production")
		require.NoError(t, err)
		assert.False(t, result.Deployable)
		require.Len(t, result.Integrations, 1)
		assert.Equal(t, "web", result.Integrations[0].Consumer)
		assert.Equal(t, "1", result.Integrations[0].ConsumerVersion)

		// a later deployment replaces the earlier one
		deploy("web", "2")
		result, err = s.CanIDeploy(ctx, "users", "100", "production")
		require.NoError(t, err)
		assert.False(t, result.Deployable)

		result, err = s.CanIDeploy(ctx, "unknown", "1", "production")
		require.NoError(t, err)
		assert.False(t, result.Deployable)
		assert.Equal(t, "unknown version 1 is unknown to the broker", result.Reason)
		assert.Empty(t, result.Integrations)

		// a known version without integrations has nothing to block it
		require.NoError(t, s.RecordDeployment(ctx, Deployment{Pacticipant: "standalone", Version: "1", Environment: "staging"}))
		result, err = s.CanIDeploy(ctx, "standalone", "1", "production")
		require.NoError(t, err)
		assert.True(t, result.Deployable)
		assert.Empty(t, result.Reason)
		assert.Empty(t, result.Integrations)
	})
}

func TestSQLStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	publish(t, s, "web", "users", "1.0.0", "a")
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	latest, err := s.LatestPacts(context.Background(), "users", "")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "1.0.0", latest[0].ConsumerVersion)
}
