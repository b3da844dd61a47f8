package cli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/configuration"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type adminConfig struct {
	Port int `env:"ADMIN_PORT,default=8080"`
}

func newMockServiceCmd() *cobra.Command {
	var (
		consumer  string
		provider  string
		address   string
		pactDir   string
		adminPort int
	)

	cmd := &cobra.Command{
		Use:   "mock-service",
		Short: "Run mock providers controlled through the admin API",
		Long: `Starts the admin API that creates and removes mock providers. When a
consumer and provider are given a mock provider is started straight away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configuration.NewFromEnv()
			if err != nil {
				return err
			}
			if consumer != "" {
				config.Consumer = consumer
			}
			if provider != "" {
				config.Provider = provider
			}
			if pactDir != "" {
				config.PactDir = pactDir
			}
			if address != "" {
				u, err := url.Parse(address)
				if err != nil {
					return errors.Wrap(err, "invalid address")
				}
				config.ServerAddress = *u
			}

			var admin adminConfig
			if err := processEnv(&admin); err != nil {
				return err
			}
			if cmd.Flags().Changed("admin-port") {
				admin.Port = adminPort
			}

			if config.Consumer != "" {
				if config.Provider == "" {
					return errors.New("a provider is required when a consumer is given")
				}
				handle, err := configuration.StartServer(config)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "mock service for %s and %s listening on %s\n", config.Consumer, config.Provider, handle.URL())
			}

			adminServer := configuration.ServeAdminAPI(admin.Port)
			waitForSignal()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := adminServer.Shutdown(ctx); err != nil {
				log.WithError(err).Warn("unable to stop admin api")
			}
			configuration.ShutdownAllServers(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&consumer, "consumer", "", "Consumer name, starts a mock provider immediately")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name")
	cmd.Flags().StringVar(&address, "address", "", "Mock provider address, e.g. http://localhost:1234")
	cmd.Flags().StringVar(&pactDir, "pact-dir", "", "Directory pact files are written to")
	cmd.Flags().IntVar(&adminPort, "admin-port", 8080, "Admin API port, overrides ADMIN_PORT")
	return cmd
}
