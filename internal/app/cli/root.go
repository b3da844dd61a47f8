package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"

	// errFailed makes the process exit non zero once the command has already
	// reported why.
	errFailed = errors.New("failed")
)

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:     "pact",
		Short:   "Consumer driven contract testing",
		Version: Version,
		Long: `pact records consumer expectations as contracts with a mock provider,
verifies them against the real provider, and shares them through a broker
so that deployments can be gated on compatibility.

Settings are read from the environment and can be overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return configureLogging(logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides LOG_LEVEL")

	cmd.AddCommand(
		newMockServiceCmd(),
		newVerifyCmd(),
		newPublishCmd(),
		newCanIDeployCmd(),
		newRecordDeploymentCmd(),
		newBrokerCmd(),
	)
	return cmd
}

// Execute runs the command line and exits non zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if err != errFailed {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
