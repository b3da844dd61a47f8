package configuration

import (
	"context"

	"github.com/form3tech-oss/pactkit/internal/app/mockservice"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// NewFromEnv reads a mock service configuration from the environment.
func NewFromEnv() (mockservice.Config, error) {
	ctx := context.Background()

	var config mockservice.Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}
