package cli

import (
	"fmt"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newPublishCmd() *cobra.Command {
	var (
		consumerVersion string
		tags            []string
		brokerURL       string
		brokerToken     string
	)

	cmd := &cobra.Command{
		Use:   "publish <pact file>...",
		Short: "Publish pact files to the broker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if consumerVersion == "" {
				return errors.New("--consumer-app-version is required")
			}
			config, err := loadBrokerConfig(brokerURL, brokerToken)
			if err != nil {
				return err
			}
			if config.URL == "" {
				return errors.New("--broker-url or PACT_BROKER_URL is required")
			}

			contracts := make([]*contract.Contract, 0, len(args))
			for _, path := range args {
				c, err := contract.ReadFile(path)
				if err != nil {
					return err
				}
				contracts = append(contracts, c)
			}

			client := newBrokerClient(config)
			for _, c := range contracts {
				publication, err := client.Publish(cmd.Context(), c, consumerVersion, tags...)
				if err != nil {
					return err
				}
				state := "unchanged"
				if publication.Created {
					state = "published"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s %s: %s (%s)\n",
					publication.Consumer, publication.Provider, publication.ConsumerVersion, state, publication.PactVersion)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&consumerVersion, "consumer-app-version", "", "Consumer version the pacts belong to")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag for the consumer version, may be repeated")
	cmd.Flags().StringVar(&brokerURL, "broker-url", "", "Broker URL, overrides PACT_BROKER_URL")
	cmd.Flags().StringVar(&brokerToken, "broker-token", "", "Broker bearer token, overrides PACT_BROKER_TOKEN")
	return cmd
}
