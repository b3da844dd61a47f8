package mockservice

import (
	"net/url"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
)

const (
	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second
	defaultPactDir  = "pacts"
	defaultHost     = "localhost:0"
)

type Config struct {
	Consumer             string        `env:"CONSUMER" json:"consumer"`
	Provider             string        `env:"PROVIDER" json:"provider"`
	ServerAddress        url.URL       `env:"SERVER_ADDRESS" json:"server_address"` // Address to listen on, port 0 picks a free port
	PactDir              string        `env:"PACT_DIR" json:"pact_dir"`             // Directory pact files are written to
	SpecificationVersion string        `env:"PACT_SPECIFICATION_VERSION" json:"pact_specification_version"`
	WaitDelay            time.Duration `env:"WAIT_DELAY" json:"wait_delay"`       // Default Delay for the wait endpoint
	WaitDuration         time.Duration `env:"WAIT_DURATION" json:"wait_duration"` // Default Duration for the wait endpoint
	RecordHistory        bool          `env:"RECORD_HISTORY" json:"record_history"`
	TLSCertFile          string        `env:"TLS_CERT_FILE" json:"tls_cert_file"`
	TLSKeyFile           string        `env:"TLS_KEY_FILE" json:"tls_key_file"`
	TLSCAFile            string        `env:"TLS_CA_FILE" json:"tls_ca_file"` // Enables mTLS, requires cert and key
}

func (c Config) withDefaults() Config {
	if c.ServerAddress.Host == "" {
		c.ServerAddress.Host = defaultHost
	}
	if c.ServerAddress.Scheme == "" {
		c.ServerAddress.Scheme = "http"
		if c.TLSCertFile != "" {
			c.ServerAddress.Scheme = "https"
		}
	}
	if c.PactDir == "" {
		c.PactDir = defaultPactDir
	}
	if c.SpecificationVersion == "" {
		c.SpecificationVersion = contract.DefaultSpecificationVersion
	}
	if c.WaitDelay == 0 {
		c.WaitDelay = defaultDelay
	}
	if c.WaitDuration == 0 {
		c.WaitDuration = defaultDuration
	}
	return c
}
