package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

func newCanIDeployCmd() *cobra.Command {
	var (
		pacticipant string
		version     string
		environment string
		output      string
		brokerURL   string
		brokerToken string
	)

	cmd := &cobra.Command{
		Use:   "can-i-deploy",
		Short: "Check a version is compatible with what is deployed in an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" {
				return errors.Errorf("unknown output %q, use text or json", output)
			}
			config, err := requireBroker(brokerURL, brokerToken, pacticipant, version, environment)
			if err != nil {
				return err
			}

			result, err := newBrokerClient(config).CanIDeploy(cmd.Context(), pacticipant, version, environment)
			if err != nil {
				return err
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return errors.Wrap(err, "unable to write result")
				}
			} else {
				headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
				tbl := table.New("CONSUMER", "C.VERSION", "PROVIDER", "P.VERSION", "OK", "REASON").WithWriter(cmd.OutOrStdout())
				tbl.WithHeaderFormatter(headerFmt)
				for _, i := range result.Integrations {
					tbl.AddRow(i.Consumer, i.ConsumerVersion, i.Provider, i.ProviderVersion, i.Deployable, i.Reason)
				}
				tbl.Print()
				if result.Reason != "" {
					fmt.Fprintln(cmd.OutOrStdout(), result.Reason)
				}

				verdict := color.New(color.FgGreen).Sprint("yes")
				if !result.Deployable {
					verdict = color.New(color.FgRed).Sprint("no")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "can %s %s be deployed to %s: %s\n", result.Pacticipant, result.Version, result.Environment, verdict)
			}

			if !result.Deployable {
				return errFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pacticipant, "pacticipant", "", "Consumer or provider name")
	cmd.Flags().StringVar(&version, "version", "", "Version to deploy")
	cmd.Flags().StringVar(&environment, "to-environment", "", "Target environment")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format, text or json")
	cmd.Flags().StringVar(&brokerURL, "broker-url", "", "Broker URL, overrides PACT_BROKER_URL")
	cmd.Flags().StringVar(&brokerToken, "broker-token", "", "Broker bearer token, overrides PACT_BROKER_TOKEN")
	return cmd
}

func newRecordDeploymentCmd() *cobra.Command {
	var (
		pacticipant string
		version     string
		environment string
		brokerURL   string
		brokerToken string
	)

	cmd := &cobra.Command{
		Use:   "record-deployment",
		Short: "Record that a version was deployed to an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := requireBroker(brokerURL, brokerToken, pacticipant, version, environment)
			if err != nil {
				return err
			}
			if err := newBrokerClient(config).RecordDeployment(cmd.Context(), pacticipant, version, environment); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded deployment of %s %s to %s\n", pacticipant, version, environment)
			return nil
		},
	}

	cmd.Flags().StringVar(&pacticipant, "pacticipant", "", "Consumer or provider name")
	cmd.Flags().StringVar(&version, "version", "", "Deployed version")
	cmd.Flags().StringVar(&environment, "environment", "", "Environment deployed to")
	cmd.Flags().StringVar(&brokerURL, "broker-url", "", "Broker URL, overrides PACT_BROKER_URL")
	cmd.Flags().StringVar(&brokerToken, "broker-token", "", "Broker bearer token, overrides PACT_BROKER_TOKEN")
	return cmd
}

func requireBroker(brokerURL, brokerToken, pacticipant, version, environment string) (brokerConfig, error) {
	if pacticipant == "" || version == "" || environment == "" {
		return brokerConfig{}, errors.New("a pacticipant, version and environment are required")
	}
	config, err := loadBrokerConfig(brokerURL, brokerToken)
	if err != nil {
		return config, err
	}
	if config.URL == "" {
		return config, errors.New("--broker-url or PACT_BROKER_URL is required")
	}
	return config, nil
}
