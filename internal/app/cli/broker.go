package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/brokerserver"
	"github.com/form3tech-oss/pactkit/internal/app/brokerstore"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type brokerServerConfig struct {
	Address  string `env:"BROKER_ADDRESS,default=:9292"`
	Database string `env:"BROKER_DATABASE"`
}

func newBrokerCmd() *cobra.Command {
	var (
		address  string
		database string
	)

	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run a pact broker",
		Long: `Runs a broker that stores pacts, verification results and deployments.
Without --database everything is kept in memory and lost on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var config brokerServerConfig
			if err := processEnv(&config); err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				config.Address = address
			}
			if cmd.Flags().Changed("database") {
				config.Database = database
			}

			store, err := openStore(config.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			server := brokerserver.New(store)
			if err := server.Start(config.Address); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "broker listening on %s\n", server.URL())
			waitForSignal()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Close(ctx); err != nil {
				log.WithError(err).Warn("unable to stop broker")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", ":9292", "Address to listen on, overrides BROKER_ADDRESS")
	cmd.Flags().StringVar(&database, "database", "", "SQLite database file, overrides BROKER_DATABASE")
	return cmd
}

func openStore(database string) (brokerstore.Store, error) {
	if database == "" {
		log.Warn("no database given, broker data is kept in memory")
		return brokerstore.NewMemory(), nil
	}
	return brokerstore.OpenSQLite(database)
}
