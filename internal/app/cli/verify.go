package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/broker"
	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/verifier"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type verifyOptions struct {
	pactFiles       []string
	brokerURL       string
	brokerToken     string
	provider        string
	providerBaseURL string
	statesSetupURL  string
	stateTable      string
	providerVersion string
	publish         bool
	timeout         time.Duration
	output          string
	tags            []string
}

func newVerifyCmd() *cobra.Command {
	var o verifyOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay pacts against a running provider",
		Long: `Replays every interaction of the given pacts against the provider and
checks its responses. Pacts come from files or, with --broker-url, from the
latest pacts the broker holds for the provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.output != "text" && o.output != "json" {
				return errors.Errorf("unknown output %q, use text or json", o.output)
			}
			if o.providerBaseURL == "" {
				return errors.New("--provider-base-url is required")
			}
			states, err := o.stateHandlers()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			v := verifier.New(verifier.WithTimeout(o.timeout))

			var results []*verifier.Result
			if len(o.pactFiles) > 0 {
				results, err = o.verifyFiles(ctx, v, states)
			} else {
				results, err = o.verifyFromBroker(ctx, v, states)
			}
			if err != nil {
				return err
			}

			if o.output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return errors.Wrap(err, "unable to write results")
				}
			} else {
				for _, r := range results {
					r.Summary(cmd.OutOrStdout())
				}
			}

			for _, r := range results {
				if !r.Success {
					return errFailed
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&o.pactFiles, "pact-file", nil, "Pact file to verify, may be repeated")
	f.StringVar(&o.brokerURL, "broker-url", "", "Broker to fetch pacts from, overrides PACT_BROKER_URL")
	f.StringVar(&o.brokerToken, "broker-token", "", "Broker bearer token, overrides PACT_BROKER_TOKEN")
	f.StringVar(&o.provider, "provider", "", "Provider name, required with a broker")
	f.StringVar(&o.providerBaseURL, "provider-base-url", "", "Base URL of the running provider")
	f.StringVar(&o.statesSetupURL, "provider-states-setup-url", "", "Endpoint that sets up and tears down provider states")
	f.StringVar(&o.stateTable, "state-table", "", "YAML file mapping provider states to setup requests")
	f.StringVar(&o.providerVersion, "provider-version", "", "Provider version results are published for")
	f.BoolVar(&o.publish, "publish", false, "Publish verification results to the broker")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "Timeout per interaction")
	f.StringVarP(&o.output, "output", "o", "text", "Output format, text or json")
	f.StringArrayVar(&o.tags, "tag", nil, "Also verify the latest pacts of consumer versions with this tag")
	return cmd
}

func (o verifyOptions) stateHandlers() (verifier.StateHandlers, error) {
	switch {
	case o.statesSetupURL != "" && o.stateTable != "":
		return nil, errors.New("use either --provider-states-setup-url or --state-table")
	case o.statesSetupURL != "":
		return verifier.NewHTTPStateHandlers(o.statesSetupURL), nil
	case o.stateTable != "":
		return verifier.LoadStateTable(o.stateTable)
	}
	return verifier.NewRegistry(), nil
}

func (o verifyOptions) verifyFiles(ctx context.Context, v *verifier.Verifier, states verifier.StateHandlers) ([]*verifier.Result, error) {
	if o.publish {
		return nil, errors.New("results can only be published for pacts fetched from a broker")
	}
	contracts := make([]*contract.Contract, 0, len(o.pactFiles))
	for _, path := range o.pactFiles {
		c, err := contract.ReadFile(path)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return v.VerifyAll(ctx, contracts, o.providerBaseURL, states), nil
}

func (o verifyOptions) verifyFromBroker(ctx context.Context, v *verifier.Verifier, states verifier.StateHandlers) ([]*verifier.Result, error) {
	config, err := loadBrokerConfig(o.brokerURL, o.brokerToken)
	if err != nil {
		return nil, err
	}
	if config.URL == "" {
		return nil, errors.New("no pacts to verify, give --pact-file or --broker-url")
	}
	if o.provider == "" {
		return nil, errors.New("--provider is required when verifying from a broker")
	}
	if o.publish && o.providerVersion == "" {
		return nil, errors.New("--provider-version is required to publish results")
	}

	client := newBrokerClient(config)
	pending, err := client.FetchPending(ctx, o.provider, o.tags...)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		log.WithField("provider", o.provider).Warn("broker has no pacts for provider")
	}

	contracts := make([]*contract.Contract, 0, len(pending))
	for _, p := range pending {
		contracts = append(contracts, p.Contract)
	}
	results := v.VerifyAll(ctx, contracts, o.providerBaseURL, states)

	if o.publish {
		for n, p := range pending {
			if results[n].Err != nil {
				continue
			}
			if _, err := client.PublishVerificationResult(ctx, p, o.providerVersion, results[n]); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

func newBrokerClient(config brokerConfig) *broker.Client {
	var opts []broker.Option
	if config.Token != "" {
		opts = append(opts, broker.WithToken(config.Token))
	}
	return broker.NewClient(config.URL, opts...)
}
