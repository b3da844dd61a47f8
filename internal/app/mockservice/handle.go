package mockservice

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Handle is a running mock provider. It serves the configured interactions
// until Finish or Close is called.
type Handle struct {
	config       Config
	interactions *Interactions
	notify       *notify
	echo         *echo.Echo
	server       *http.Server
	url          *url.URL
	closeOnce    sync.Once
	closeErr     error
}

// New builds a mock provider without binding it. Its routes are available
// through Handler.
func New(config Config) *Handle {
	config = config.withDefaults()
	h := &Handle{
		config:       config,
		interactions: &Interactions{recordHistory: config.RecordHistory},
		notify:       newNotify(),
	}
	h.echo = echo.New()
	h.echo.HideBanner = true
	h.echo.HidePort = true
	h.routes(h.echo)
	return h
}

// Configure starts a mock provider serving interactions on
// config.ServerAddress.
func Configure(config Config, interactions []contract.Interaction) (*Handle, error) {
	h := New(config)
	for _, i := range interactions {
		if err := h.AddInteraction(i); err != nil {
			return nil, err
		}
	}
	if err := h.Start(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handle) Handler() http.Handler {
	return h.echo
}

// Start binds the configured address and serves in the background.
func (h *Handle) Start() error {
	tlsConfig, err := h.tlsConfig()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", h.config.ServerAddress.Host)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", h.config.ServerAddress.Host)
	}

	host, _, err := net.SplitHostPort(h.config.ServerAddress.Host)
	if err != nil {
		listener.Close()
		return errors.Wrapf(err, "invalid server address %s", h.config.ServerAddress.Host)
	}
	if host == "" {
		host = "localhost"
	}
	_, port, _ := net.SplitHostPort(listener.Addr().String())
	h.url = &url.URL{Scheme: h.config.ServerAddress.Scheme, Host: net.JoinHostPort(host, port)}

	h.server = &http.Server{
		Handler:   h.echo,
		TLSConfig: tlsConfig,
	}

	go func() {
		var err error
		if h.config.TLSCertFile != "" && h.config.TLSKeyFile != "" {
			err = h.server.ServeTLS(listener, h.config.TLSCertFile, h.config.TLSKeyFile)
		} else {
			err = h.server.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			log.WithField("address", h.url.String()).Error(err)
		}
	}()

	log.WithFields(log.Fields{
		"address":  h.url.String(),
		"consumer": h.config.Consumer,
		"provider": h.config.Provider,
	}).Info("mock service started")
	return nil
}

func (h *Handle) tlsConfig() (*tls.Config, error) {
	if h.config.TLSCAFile == "" {
		return nil, nil
	}
	if h.config.TLSCertFile == "" || h.config.TLSKeyFile == "" {
		return nil, errors.New("cannot run in mTLS mode without TLS cert and key")
	}
	caCert, err := os.ReadFile(h.config.TLSCAFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading CA certificate")
	}
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caCert) {
		return nil, errors.Errorf("no certificates found in %s", h.config.TLSCAFile)
	}
	return &tls.Config{
		ClientAuth: tls.RequireAndVerifyClientCert,
		ClientCAs:  certPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// URL is the base URL consumers should send requests to. It is empty until
// Start has been called.
func (h *Handle) URL() string {
	if h.url == nil {
		return ""
	}
	return h.url.String()
}

func (h *Handle) Config() Config {
	return h.config
}

func (h *Handle) AddInteraction(i contract.Interaction) error {
	if err := h.interactions.Store(i); err != nil {
		return err
	}
	log.WithField("interaction", i.Description).Info("storing interaction")
	return nil
}

// Reset removes every interaction and recorded request.
func (h *Handle) Reset() {
	log.Info("deleting interactions")
	h.interactions.Clear()
}

// AddModifier overrides the served status ($.status) or a JSON body field
// ($.body.<path>) of an interaction, on every request or only on attempt.
func (h *Handle) AddModifier(description, path string, value interface{}, attempt *int) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "unable to encode modifier value")
	}
	modifier := &interactionModifier{Interaction: description, Path: path, Value: raw, Attempt: attempt}
	if err := modifier.validate(); err != nil {
		return err
	}
	return h.addModifier(modifier)
}

func (h *Handle) addModifier(modifier *interactionModifier) error {
	interaction, ok := h.interactions.Load(modifier.Interaction)
	if !ok {
		return errors.Errorf("unable to find interaction for modifier. %s", modifier.Interaction)
	}
	log.Infof("adding modifier to interaction '%s'", interaction.Description)
	interaction.modifiers.AddModifier(modifier)
	return nil
}

var errWaitTimeout = errors.New("timeout waiting for interactions to be met")

// WaitForInteraction blocks until the interaction has served count requests
// or timeout elapses.
func (h *Handle) WaitForInteraction(description string, count int, timeout time.Duration) error {
	interaction, ok := h.interactions.Load(description)
	if !ok {
		return errors.Errorf("cannot wait for interaction '%s', interaction not found", description)
	}

	log.WithField("wait_for", description).Info("waiting")
	met := retryFor(func(timeLeft time.Duration) bool {
		log.WithFields(log.Fields{
			"wait_for":       description,
			"count":          count,
			"time_remaining": timeLeft,
		}).Debug("retry")
		if interaction.HasRequests(count) {
			return true
		}
		if timeLeft > 0 {
			h.notify.Wait(timeLeft)
		}
		return interaction.HasRequests(count)
	}, h.config.WaitDelay, timeout)
	if !met {
		return errWaitTimeout
	}
	return nil
}

// WaitForAll blocks until every interaction has served at least one request
// or timeout elapses.
func (h *Handle) WaitForAll(timeout time.Duration) error {
	log.Info("waiting for all")
	met := retryFor(func(timeLeft time.Duration) bool {
		if h.interactions.AllHaveRequests() {
			return true
		}
		if timeLeft > 0 {
			h.notify.Wait(timeLeft)
		}
		return h.interactions.AllHaveRequests()
	}, h.config.WaitDelay, timeout)
	if met {
		return nil
	}

	for _, i := range h.interactions.All() {
		if !i.HasRequests(1) {
			log.Infof("'%s' has no requests", i.Description)
		}
	}
	return errWaitTimeout
}

// Verify checks that every configured interaction was exercised and no
// unexpected request arrived, without stopping the service.
func (h *Handle) Verify() error {
	return h.interactions.Verify()
}

// Contract returns the contract made of exactly the configured
// interactions, in configuration order, once Verify passes.
func (h *Handle) Contract() (*contract.Contract, error) {
	if err := h.Verify(); err != nil {
		return nil, err
	}
	c := contract.New(h.config.Consumer, h.config.Provider, h.interactions.Definitions()...)
	c.Metadata.PactSpecification.Version = h.config.SpecificationVersion
	return c, nil
}

// Finish stops the service and returns the contract, or a
// *VerificationMismatchError when the consumer test did not exercise
// exactly the configured interactions.
func (h *Handle) Finish() (*contract.Contract, error) {
	c, err := h.Contract()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closeErr := h.Close(ctx); closeErr != nil {
		log.WithError(closeErr).Warn("unable to stop mock service")
	}
	return c, err
}

// WritePact writes the verified contract into dir, or the configured pact
// directory when dir is empty, merging with an existing file.
func (h *Handle) WritePact(dir string) (string, error) {
	if dir == "" {
		dir = h.config.PactDir
	}
	c, err := h.Contract()
	if err != nil {
		return "", err
	}
	return c.WriteFile(dir)
}

func (h *Handle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		if h.server == nil {
			return
		}
		h.closeErr = h.server.Shutdown(ctx)
		log.WithField("address", h.URL()).Info("mock service stopped")
	})
	return h.closeErr
}
