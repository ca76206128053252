package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/config"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/logger"
)

// app carries what every subcommand needs once the root command has run
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out, logOut io.Writer) *cobra.Command {
	a := &app{out: out}

	rootCmd := &cobra.Command{
		Use:           "geocoder",
		Short:         "Singapore postcode identification, validation and geocoding",
		Long:          `Finds the postcode column of a table, validates it against the master postcode list and attaches coordinates and addresses`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			l, err := logger.Initialize(cfg.LoggerOptions(), logOut)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = l
			return nil
		},
	}

	rootCmd.AddCommand(createGeocodeCmd(a))
	rootCmd.AddCommand(createIdentifyCmd(a))
	rootCmd.AddCommand(createReferenceCmd(a))
	rootCmd.AddCommand(createSynthCmd(a))
	rootCmd.AddCommand(createServeCmd(a))
	rootCmd.AddCommand(createWorkerCmd(a))

	return rootCmd
}
