package mockclient_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/form3tech-oss/pactkit/internal/app/configuration"
	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/mockservice"
	"github.com/form3tech-oss/pactkit/pkg/dsl"
	"github.com/form3tech-oss/pactkit/pkg/mockclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMock(t *testing.T) *mockclient.MockService {
	t.Helper()
	h, err := mockservice.Configure(mockservice.Config{
		Consumer: "web",
		Provider: "users",
		PactDir:  t.TempDir(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.Finish() })
	return mockclient.New(h.URL())
}

func userInteraction() contract.Interaction {
	return dsl.NewInteraction().
		Given("user 1 exists").
		UponReceiving("get user 1").
		WithRequest(dsl.Request{Method: http.MethodGet, Path: dsl.String("/users/1")}).
		WillRespondWith(dsl.Response{
			Status:  http.StatusOK,
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"id": dsl.Integer(1), "name": dsl.Like("jim")},
		}).
		MustBuild()
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(b)
}

func TestMockServiceRoundTrip(t *testing.T) {
	mock := startMock(t)
	require.NoError(t, mock.AddInteraction(userInteraction()))

	assert.Error(t, mock.Verify())

	status, body := getBody(t, mock.URL()+"/users/1")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id": 1, "name": "jim"}`, body)

	require.NoError(t, mock.WaitForInteraction("get user 1", 1))
	require.NoError(t, mock.WaitForAll())
	require.NoError(t, mock.Verify())

	path, err := mock.WritePact("")
	require.NoError(t, err)
	c, err := contract.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, c.Interactions, 1)
	assert.Equal(t, "user 1 exists", c.Interactions[0].ProviderStates[0].Name)
}

func TestMockServiceVerifyReportsUnexpectedRequest(t *testing.T) {
	mock := startMock(t)
	require.NoError(t, mock.AddInteraction(userInteraction()))

	status, _ := getBody(t, mock.URL()+"/users/2")
	assert.Equal(t, http.StatusInternalServerError, status)

	err := mock.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"path":"/users/2"`)

	require.NoError(t, mock.Reset())
	require.NoError(t, mock.Verify())
}

func TestMockServiceModifiers(t *testing.T) {
	mock := startMock(t)
	require.NoError(t, mock.AddInteraction(userInteraction()))

	attempt := 1
	mock.ForInteraction("get user 1").
		AddModifier("$.status", http.StatusBadGateway, &attempt).
		AddModifier("$.body.name", "bob", nil)

	status, _ := getBody(t, mock.URL()+"/users/1")
	assert.Equal(t, http.StatusBadGateway, status)

	status, body := getBody(t, mock.URL()+"/users/1")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id": 1, "name": "bob"}`, body)

	assert.Panics(t, func() {
		mock.ForInteraction("missing").AddModifier("$.status", 500, nil)
	})
}

func TestConfiguration(t *testing.T) {
	admin := httptest.NewServer(configuration.NewAdminAPI())
	defer admin.Close()
	conf := mockclient.NewConfiguration(admin.URL)
	defer conf.Reset()

	mock, err := conf.SetupMockWithConfig(&mockclient.Config{
		Consumer:      "web",
		Provider:      "users",
		ServerAddress: url.URL{Scheme: "http", Host: "localhost:0"},
		PactDir:       t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.AddInteraction(userInteraction()))

	status, _ := getBody(t, mock.URL()+"/users/1")
	assert.Equal(t, http.StatusOK, status)
	assert.NoError(t, mock.Verify())

	require.NoError(t, conf.Reset())
	_, err = http.Get(mock.URL() + "/users/1")
	assert.Error(t, err)
}

func TestConfigurationRejectsBadAddress(t *testing.T) {
	conf := mockclient.NewConfiguration("http://localhost:1")

	_, err := conf.SetupMock("web", "users", "://bad")
	assert.ErrorContains(t, err, "failed to parse server address")
}
