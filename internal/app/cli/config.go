package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type logConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

type brokerConfig struct {
	URL   string `env:"PACT_BROKER_URL"`
	Token string `env:"PACT_BROKER_TOKEN"`
}

func processEnv(config interface{}) error {
	if err := envconfig.Process(context.Background(), config); err != nil {
		return errors.Wrap(err, "process env config")
	}
	return nil
}

func configureLogging(levelOverride string) error {
	var config logConfig
	if err := processEnv(&config); err != nil {
		return err
	}
	if levelOverride != "" {
		config.Level = levelOverride
	}

	level, err := log.ParseLevel(config.Level)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	switch config.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("unknown log format %q, use text or json", config.Format)
	}
	return nil
}

func loadBrokerConfig(url, token string) (brokerConfig, error) {
	var config brokerConfig
	if err := processEnv(&config); err != nil {
		return config, err
	}
	if url != "" {
		config.URL = url
	}
	if token != "" {
		config.Token = token
	}
	return config, nil
}

func waitForSignal() {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
