package mockclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/mockservice"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const adminPrefix = mockservice.AdminPrefix

// MockService drives a running mock service over its admin API.
type MockService struct {
	client http.Client
	url    string
}

type InteractionSetup struct {
	interaction string
	mock        *MockService
}

func New(url string) *MockService {
	return &MockService{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

// URL is where consumer traffic should be sent.
func (m *MockService) URL() string {
	return m.url
}

func (m *MockService) ForInteraction(interaction string) *InteractionSetup {
	return &InteractionSetup{
		interaction: interaction,
		mock:        m,
	}
}

// AddInteraction registers an interaction, e.g. one built with pkg/dsl.
func (m *MockService) AddInteraction(interaction contract.Interaction) error {
	b, err := json.Marshal(interaction)
	if err != nil {
		return errors.Wrap(err, "failed to marshal interaction")
	}
	_, err = m.do(http.MethodPost, "/interactions", b, http.StatusCreated)
	return err
}

// Reset removes every interaction and recorded request.
func (m *MockService) Reset() error {
	_, err := m.do(http.MethodDelete, "/interactions", nil, http.StatusNoContent)
	return err
}

// Verify fails when an interaction was not exercised or an unexpected
// request arrived. The error carries the mock service's diagnostic body.
func (m *MockService) Verify() error {
	_, err := m.do(http.MethodGet, "/interactions/verification", nil, http.StatusOK)
	return err
}

// WritePact writes the verified pact into dir on the mock service host, or
// its configured pact directory when dir is empty, and returns the path.
func (m *MockService) WritePact(dir string) (string, error) {
	path := "/pact"
	if dir != "" {
		path += "?" + url.Values{"dir": {dir}}.Encode()
	}
	body, err := m.do(http.MethodPost, path, nil, http.StatusOK)
	if err != nil {
		return "", err
	}
	var written struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(body, &written); err != nil {
		return "", errors.Wrap(err, "failed to parse pact response")
	}
	return written.Path, nil
}

func (m *MockService) addModifier(interaction, path string, value interface{}, attempt *int) error {
	body := map[string]interface{}{
		"interaction": interaction,
		"path":        path,
		"value":       value,
	}
	if attempt != nil {
		body["attempt"] = attempt
	}
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal modifier")
	}
	_, err = m.do(http.MethodPost, "/interactions/modifiers", b, http.StatusNoContent)
	return err
}

func (m *MockService) WaitForAll() error {
	_, err := m.do(http.MethodGet, "/interactions/wait", nil, http.StatusOK)
	if err != nil {
		return errors.Wrap(err, "timeout waiting for interactions")
	}
	return nil
}

func (m *MockService) WaitForInteraction(interaction string, count int) error {
	q := url.Values{}
	q.Add("interaction", interaction)
	q.Add("count", strconv.Itoa(count))

	_, err := m.do(http.MethodGet, "/interactions/wait?"+q.Encode(), nil, http.StatusOK)
	if err != nil {
		return errors.Wrapf(err, "waiting for interaction %s", interaction)
	}
	return nil
}

func (m *MockService) do(method, path string, body []byte, expected int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, m.url+adminPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != expected {
		log.Warnf("mock service answered %d to %s %s", res.StatusCode, method, path)
		return nil, fmt.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(string(responseBody)))
	}
	return responseBody, nil
}

// AddModifier overrides the served status ($.status) or a JSON body field
// ($.body.<path>) of the interaction, on every request or only on attempt.
func (s InteractionSetup) AddModifier(path string, value interface{}, attempt *int) InteractionSetup {
	if err := s.mock.addModifier(s.interaction, path, value, attempt); err != nil {
		panic(err)
	}
	return s
}
