package app

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/pactkit/pkg/dsl"
	"github.com/form3tech-oss/pactkit/pkg/mockclient"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

const (
	postAddressInteraction = "A request to create an address"
	postNameInteraction    = "A request to create a user with any name"
)

type ConcurrentMockStage struct {
	t                                  *testing.T
	assert                             *assert.Assertions
	mock                               *mockclient.MockService
	modifiedNameStatusCode             int
	modifiedAddressStatusCode          int
	concurrentUserRequestsPerSecond    int
	concurrentUserRequestsDuration     time.Duration
	concurrentAddressRequestsPerSecond int
	concurrentAddressRequestsDuration  time.Duration
	mu                                 sync.Mutex
	userResponses                      []int
	addressResponses                   []int
}

func NewConcurrentMockStage(t *testing.T) (*ConcurrentMockStage, *ConcurrentMockStage, *ConcurrentMockStage) {
	mock, err := setupAndWaitForMock("web", "users", t.TempDir())
	if err != nil {
		t.Fatalf("Error setting up mock service: %v", err)
	}

	s := &ConcurrentMockStage{
		t:      t,
		assert: assert.New(t),
		mock:   mock,
	}

	t.Cleanup(func() {
		_ = mockclient.NewConfiguration(adminURL.String()).Reset()
	})

	return s, s, s
}

func (s *ConcurrentMockStage) and() *ConcurrentMockStage {
	return s
}

func (s *ConcurrentMockStage) a_modified_name_status_code() *ConcurrentMockStage {
	s.modifiedNameStatusCode = http.StatusBadGateway
	s.mock.ForInteraction(postNameInteraction).AddModifier("$.status", s.modifiedNameStatusCode, nil)
	return s
}

func (s *ConcurrentMockStage) a_modified_address_status_code() *ConcurrentMockStage {
	s.modifiedAddressStatusCode = http.StatusConflict
	s.mock.ForInteraction(postAddressInteraction).AddModifier("$.status", s.modifiedAddressStatusCode, nil)
	return s
}

func (s *ConcurrentMockStage) a_pact_that_allows_any_names() *ConcurrentMockStage {
	s.assert.NoError(s.mock.AddInteraction(dsl.NewInteraction().
		UponReceiving(postNameInteraction).
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
		}).
		MustBuild()))
	return s
}

func (s *ConcurrentMockStage) a_pact_that_allows_any_address() *ConcurrentMockStage {
	s.assert.NoError(s.mock.AddInteraction(dsl.NewInteraction().
		UponReceiving(postAddressInteraction).
		WithRequest(dsl.Request{
			Method:  http.MethodPost,
			Path:    dsl.String("/addresses"),
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"address": dsl.Term("any", ".*")},
		}).
		WillRespondWith(dsl.Response{
			Status:  http.StatusOK,
			Headers: dsl.MapMatcher{"Content-Type": dsl.String("application/json")},
			Body:    map[string]interface{}{"address": "any"},
		}).
		MustBuild()))
	return s
}

func (s *ConcurrentMockStage) x_concurrent_user_requests_per_second_are_made_for_y_seconds(x int, y time.Duration) *ConcurrentMockStage {
	s.concurrentUserRequestsPerSecond = x
	s.concurrentUserRequestsDuration = y
	return s
}

func (s *ConcurrentMockStage) x_concurrent_address_requests_per_second_are_made_for_y_seconds(x int, y time.Duration) *ConcurrentMockStage {
	s.concurrentAddressRequestsPerSecond = x
	s.concurrentAddressRequestsDuration = y
	return s
}

func (s *ConcurrentMockStage) the_concurrent_requests_are_sent() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.makeUserRequests()
	}()
	go func() {
		defer wg.Done()
		s.makeAddressRequests()
	}()
	wg.Wait()
}

func (s *ConcurrentMockStage) makeUserRequests() {
	s.makeRequests("/users", `{"name":"jim"}`, s.concurrentUserRequestsPerSecond, s.concurrentUserRequestsDuration,
		func(code int) { s.userResponses = append(s.userResponses, code) })
}

func (s *ConcurrentMockStage) makeAddressRequests() {
	s.makeRequests("/addresses", `{"address":"test"}`, s.concurrentAddressRequestsPerSecond, s.concurrentAddressRequestsDuration,
		func(code int) { s.addressResponses = append(s.addressResponses, code) })
}

func (s *ConcurrentMockStage) makeRequests(path, body string, perSecond int, duration time.Duration, record func(int)) {
	total := perSecond * int(duration/time.Second)
	interval := time.Second / time.Duration(perSecond)

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := s.makeRequest(path, body)
			if err != nil {
				log.WithError(err).Error("unable to send request")
				return
			}
			s.mu.Lock()
			record(code)
			s.mu.Unlock()
		}()
		time.Sleep(interval)
	}
	wg.Wait()
}

func (s *ConcurrentMockStage) makeRequest(path, body string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s%s", s.mock.URL(), path), strings.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()
	return res.StatusCode, nil
}

func (s *ConcurrentMockStage) all_the_user_responses_should_have_the_right_status_code() *ConcurrentMockStage {
	expectedLen := s.concurrentUserRequestsPerSecond * int(s.concurrentUserRequestsDuration/time.Second)
	s.assert.Len(s.userResponses, expectedLen, "number of user responses is not as expected")
	for _, code := range s.userResponses {
		s.assert.Equal(s.modifiedNameStatusCode, code)
	}
	return s
}

func (s *ConcurrentMockStage) all_the_address_responses_should_have_the_right_status_code() *ConcurrentMockStage {
	expectedLen := s.concurrentAddressRequestsPerSecond * int(s.concurrentAddressRequestsDuration/time.Second)
	s.assert.Len(s.addressResponses, expectedLen, "number of address responses is not as expected")
	for _, code := range s.addressResponses {
		s.assert.Equal(s.modifiedAddressStatusCode, code)
	}
	return s
}

func (s *ConcurrentMockStage) the_mock_verifies() *ConcurrentMockStage {
	s.assert.NoError(s.mock.Verify())
	return s
}
