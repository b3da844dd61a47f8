package mockclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/configuration"
	"github.com/form3tech-oss/pactkit/internal/app/mockservice"
	"github.com/pkg/errors"
)

// Configuration talks to the admin API that creates mock services.
type Configuration struct {
	client http.Client
	url    string
}

type Config mockservice.Config

func NewConfiguration(url string) *Configuration {
	return &Configuration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

func (conf *Configuration) SetupMock(consumer, provider, serverAddress string) (*MockService, error) {
	serverURL, err := url.Parse(serverAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse server address")
	}

	config := &Config{
		Consumer:      consumer,
		Provider:      provider,
		ServerAddress: *serverURL,
	}
	return conf.SetupMockWithConfig(config)
}

func (conf *Configuration) SetupMockWithConfig(config *Config) (*MockService, error) {
	content, err := json.Marshal(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}

	req, err := http.NewRequest("POST", strings.TrimSuffix(conf.url, "/")+"/mocks", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := conf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, errors.New(string(responseBody))
	}

	var created configuration.MockService
	if err := json.Unmarshal(responseBody, &created); err != nil {
		return nil, errors.Wrap(err, "failed to parse mock service")
	}
	return New(created.URL), nil
}

func (conf *Configuration) Reset() error {
	req, err := http.NewRequest("DELETE", strings.TrimSuffix(conf.url, "/")+"/mocks", nil)
	if err != nil {
		return err
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.New("error resetting mock services")
	}
	return nil
}
