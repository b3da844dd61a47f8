package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/pkg/dsl"
	"github.com/form3tech-oss/pactkit/pkg/mockclient"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type MockStage struct {
	t                  *testing.T
	assert             *assert.Assertions
	mock               *mockclient.MockService
	pactDir            string
	interactionName    string
	requestsToSend     int32
	requestsSent       int32
	responses          []*http.Response
	responseBodies     [][]byte
	modifiedStatusCode int
	modifiedAttempt    *int
	modifiedBody       map[string]interface{}
	verifyResult       error
	pact               *contract.Contract
}

var largeString = strings.Repeat("long_string123BBmmF8BYezrBhCROOCRJfeH5k69hMKXH77TSvwF5GHUZFnbh1dsZ3d90HeR0jUIOovJJVS508uI17djeLFFSb7", 440)

func NewMockStage(t *testing.T) (*MockStage, *MockStage, *MockStage) {
	s := &MockStage{
		t:               t,
		assert:          assert.New(t),
		pactDir:         t.TempDir(),
		modifiedBody:    make(map[string]interface{}),
		interactionName: "interaction-" + strconv.FormatInt(time.Now().UnixMilli(), 10),
	}

	mock, err := setupAndWaitForMock("web", "users", s.pactDir)
	if err != nil {
		t.Fatalf("Error setting up mock service: %v", err)
	}
	s.mock = mock

	s.t.Cleanup(func() {
		_ = mockclient.NewConfiguration(adminURL.String()).Reset()
	})

	return s, s, s
}

func setupAndWaitForMock(consumer, provider, pactDir string) (*mockclient.MockService, error) {
	var mock *mockclient.MockService
	err := retry.Do(
		func() error {
			var err error
			mock, err = mockclient.NewConfiguration(adminURL.String()).SetupMockWithConfig(&mockclient.Config{
				Consumer:      consumer,
				Provider:      provider,
				ServerAddress: url.URL{Scheme: "http", Host: "localhost:0"},
				PactDir:       pactDir,
				WaitDuration:  5 * time.Second,
			})
			return err
		},
		retry.Attempts(10),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(200*time.Millisecond),
	)
	if err != nil {
		return nil, errors.Wrap(err, "mock service setup failed")
	}
	return mock, nil
}

func (s *MockStage) and() *MockStage {
	return s
}

func (s *MockStage) addInteraction(b *dsl.InteractionBuilder) *MockStage {
	s.assert.NoError(s.mock.AddInteraction(b.UponReceiving(s.interactionName).MustBuild()))
	return s
}

func (s *MockStage) a_pact_that_allows_any_names() *MockStage {
	return s.addInteraction(dsl.NewInteraction().
		WithRequest(dsl.Request{
			Method:  http.MethodPost,
			Path:    dsl.String("/users"),
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"name": dsl.Term("any", ".*")},
		}).
		WillRespondWith(dsl.Response{
			Status:  http.StatusOK,
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"name": "any"},
		}))
}

func (s *MockStage) a_pact_that_allows_any_age() *MockStage {
	return s.addInteraction(dsl.NewInteraction().
		WithRequest(dsl.Request{
			Method:  http.MethodPost,
			Path:    dsl.String("/users"),
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"age": dsl.Integer(1)},
		}).
		WillRespondWith(dsl.Response{
			Status:  http.StatusOK,
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"age": 100},
		}))
}

func (s *MockStage) a_pact_that_returns_a_large_body() *MockStage {
	return s.addInteraction(dsl.NewInteraction().
		WithRequest(dsl.Request{
			Method:  http.MethodPost,
			Path:    dsl.String("/users"),
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"name": dsl.Term("any", ".*")},
		}).
		WillRespondWith(dsl.Response{
			Status:  http.StatusOK,
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body: map[string]interface{}{
				"large_string": largeString,
				"name":         "any",
			},
		}))
}

func (s *MockStage) a_pact_that_expects_plain_text() *MockStage {
	return s.addInteraction(dsl.NewInteraction().
		WithRequest(dsl.Request{
			Method:  http.MethodPost,
			Path:    dsl.String("/users"),
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("text/plain")},
			Body:    "text",
		}).
		WillRespondWith(dsl.Response{
			Status:  http.StatusOK,
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("text/plain")},
			Body:    "text",
		}))
}

func (s *MockStage) a_modified_response_status_of_(statusCode int) *MockStage {
	s.modifiedStatusCode = statusCode
	return s
}

func (s *MockStage) a_modified_response_body_of_(path string, value interface{}) *MockStage {
	s.modifiedBody[path] = value
	return s
}

func (s *MockStage) a_modified_response_attempt_of(i int) *MockStage {
	s.modifiedAttempt = &i
	return s
}

func (s *MockStage) a_plain_text_request_is_sent_with_body(body string) *MockStage {
	return s.n_requests_are_sent_using_the_body_and_content_type(1, body, "text/plain")
}

func (s *MockStage) a_request_is_sent_using_the_name(name string) *MockStage {
	return s.n_requests_are_sent_using_the_name(1, name)
}

func (s *MockStage) n_requests_are_sent_using_the_name(n int, name string) *MockStage {
	return s.n_requests_are_sent_using_the_body(n, fmt.Sprintf(`{"name":"%s"}`, name))
}

func (s *MockStage) n_requests_are_sent_using_the_age(n int, age int64) *MockStage {
	return s.n_requests_are_sent_using_the_body(n, fmt.Sprintf(`{"age": %d}`, age))
}

func (s *MockStage) n_requests_are_sent_using_the_body(n int, body string) *MockStage {
	return s.n_requests_are_sent_using_the_body_and_content_type(n, body, "application/json")
}

func (s *MockStage) n_requests_are_sent_using_the_body_and_content_type(n int, body, contentType string) *MockStage {
	setup := s.mock.ForInteraction(s.interactionName)
	if s.modifiedStatusCode != 0 {
		setup.AddModifier("$.status", fmt.Sprintf("%d", s.modifiedStatusCode), s.modifiedAttempt)
	}
	for path, value := range s.modifiedBody {
		setup.AddModifier(path, value, s.modifiedAttempt)
	}

	for i := 0; i < n; i++ {
		s.send_post_request_and_collect_response(body, s.mock.URL()+"/users", contentType)
	}
	s.verifyResult = s.mock.Verify()
	return s
}

func (s *MockStage) send_post_request_and_collect_response(body, url, contentType string) {
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	s.assert.NoError(err, "request creation failed")

	req.Header.Set("Content-Type", contentType)
	res, err := http.DefaultClient.Do(req)
	if !s.assert.NoError(err, "sending request failed") {
		return
	}
	defer res.Body.Close()

	s.responses = append(s.responses, res)
	bodyBytes, err := io.ReadAll(res.Body)
	s.assert.NoError(err, "unable to read response body")
	s.responseBodies = append(s.responseBodies, bodyBytes)
}

func (s *MockStage) multiple_requests_are_sent(requestsToSend int32) *MockStage {
	s.requestsToSend = requestsToSend
	atomic.StoreInt32(&s.requestsSent, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int32(0); i < requestsToSend; i++ {
			req, err := http.NewRequest(http.MethodPost, s.mock.URL()+"/users", strings.NewReader(`{"name":"test"}`))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			atomic.AddInt32(&s.requestsSent, 1)
			if res, err := http.DefaultClient.Do(req); err == nil {
				res.Body.Close()
			}
		}
	}()

	s.assert.NoError(s.mock.WaitForInteraction(s.interactionName, int(requestsToSend)))
	wg.Wait()
	s.verifyResult = s.mock.Verify()
	return s
}

func (s *MockStage) no_request_is_sent() *MockStage {
	s.verifyResult = s.mock.Verify()
	return s
}

func (s *MockStage) mock_verification_is_successful() *MockStage {
	s.assert.NoError(s.verifyResult)
	return s
}

func (s *MockStage) mock_verification_is_not_successful() *MockStage {
	s.assert.Error(s.verifyResult, "mock verification did not fail")
	return s
}

func (s *MockStage) mock_verification_names_the_missing_interaction() *MockStage {
	if s.assert.Error(s.verifyResult) {
		s.assert.Contains(s.verifyResult.Error(), s.interactionName)
	}
	return s
}

func (s *MockStage) the_mock_waits_for_all_requests() *MockStage {
	sent := atomic.LoadInt32(&s.requestsSent)
	s.assert.Equal(s.requestsToSend, sent, "mock service did not wait for requests")
	return s
}

func (s *MockStage) the_response_is_(statusCode int) *MockStage {
	return s.the_nth_response_is_(1, statusCode)
}

func (s *MockStage) the_response_name_is_(name string) *MockStage {
	return s.the_nth_response_name_is_(1, name)
}

func (s *MockStage) the_nth_response_is_(n, statusCode int) *MockStage {
	if !s.assert.GreaterOrEqual(len(s.responses), n, "number of responses is less than expected") {
		return s
	}
	s.assert.Equalf(statusCode, s.responses[n-1].StatusCode, "Expected status code on attempt %d: %d, got : %d", n, statusCode, s.responses[n-1].StatusCode)
	return s
}

func (s *MockStage) the_nth_response_name_is_(n int, name string) *MockStage {
	return s.the_nth_response_body_has_(n, "name", name)
}

func (s *MockStage) the_nth_response_age_is_(n int, age int64) *MockStage {
	if !s.assert.GreaterOrEqual(len(s.responseBodies), n, "number of responses is less than expected") {
		return s
	}

	var body map[string]int64
	err := json.Unmarshal(s.responseBodies[n-1], &body)
	s.assert.NoError(err, "unable to parse response body")
	s.assert.Equalf(age, body["age"], "Expected age on attempt %d,: %d, got: %d", n, age, body["age"])
	return s
}

func (s *MockStage) the_nth_response_body_has_(n int, key, value string) *MockStage {
	if !s.assert.GreaterOrEqual(len(s.responseBodies), n, "number of response bodies is less than expected") {
		return s
	}

	var responseBody map[string]interface{}
	err := json.Unmarshal(s.responseBodies[n-1], &responseBody)
	s.assert.NoError(err, "unable to parse response body, %v", err)
	s.assert.Equalf(value, responseBody[key], "Expected %s on attempt %d,: %s, got: %v", key, n, value, responseBody[key])
	return s
}

func (s *MockStage) the_response_body_is(data string) *MockStage {
	if !s.assert.NotEmpty(s.responseBodies, "no response received") {
		return s
	}
	s.assert.Equal(data, string(s.responseBodies[0]))
	return s
}

func (s *MockStage) n_responses_were_received(n int) *MockStage {
	s.assert.Len(s.responses, n)
	return s
}

func (s *MockStage) pact_can_be_generated() *MockStage {
	path, err := s.mock.WritePact(s.pactDir)
	if !s.assert.NoError(err) {
		return s
	}

	s.pact, err = contract.ReadFile(path)
	s.assert.NoError(err)
	return s
}

func (s *MockStage) the_pact_contains_the_interaction() *MockStage {
	if !s.assert.NotNil(s.pact, "no pact was generated") {
		return s
	}
	_, ok := s.pact.Interaction(s.interactionName)
	s.assert.True(ok, "pact does not contain %s", s.interactionName)
	s.assert.Equal("web", s.pact.Consumer.Name)
	s.assert.Equal("users", s.pact.Provider.Name)
	return s
}

func (s *MockStage) pact_cannot_be_generated() *MockStage {
	_, err := s.mock.WritePact(s.pactDir)
	s.assert.Error(err)
	return s
}
