package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/synthesis"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
)

func createSynthCmd(a *app) *cobra.Command {
	var (
		count          int
		seed           int64
		validShare     float64
		random         bool
		output, format string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate labelled synthetic postcode data for testing identification and validation",
		Long: `Draws postcodes from the configured reference (or uniformly from the postcode range with
--random), mutates them and embeds them in address text. VALID_POSTCODE tells whether the POSTCODE
cell validates to EXPECTED_POSTCODE; VALID_SUBSTRING tells whether the postcode can be extracted
from ADDRESS. The same seed always gives the same table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtOut, err := outputFormat(format, output)
			if err != nil {
				return err
			}

			r := validation.Range{Min: a.cfg.PostcodeRangeMin, Max: a.cfg.PostcodeRangeMax}
			gcfg := synthesis.Config{Count: count, ValidShare: validShare, Seed: seed, Range: r}
			gen, err := synthesis.New(&gcfg, a.logger.With(slog.String("component", "synthesis")))
			if err != nil {
				return err
			}

			var postcodes []string
			if random {
				postcodes = synthesis.RandomPostcodes(count, r, seed)
			} else {
				provider, b, err := a.newProvider(false)
				if err != nil {
					return err
				}
				defer b.close()

				ds, err := provider.Get(cmd.Context())
				if err != nil {
					return err
				}
				postcodes = ds.Postcodes().Codes()
			}

			samples, err := gen.Generate(postcodes)
			if err != nil {
				return err
			}
			if err := a.writeResult(synthesis.Table(samples), output, fmtOut); err != nil {
				return err
			}

			s := synthesis.Summarize(samples)
			fmt.Fprintf(cmd.ErrOrStderr(), "generated %d rows: %d valid postcodes (%.1f%%), %d valid substrings (%.1f%%)\n",
				s.Total, s.ValidPostcodes, share(s.ValidPostcodes, s.Total),
				s.ValidSubstrings, share(s.ValidSubstrings, s.Total))
			return nil
		},
	}

	def := synthesis.DefaultConfig()
	cmd.Flags().IntVar(&count, "count", def.Count, "number of rows")
	cmd.Flags().Int64Var(&seed, "seed", def.Seed, "random seed")
	cmd.Flags().Float64Var(&validShare, "valid-share", def.ValidShare, "share of rows whose postcode stays extractable from ADDRESS")
	cmd.Flags().BoolVar(&random, "random", false, "draw random in-range codes instead of reference postcodes")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "", "csv, xlsx or json (default from --output extension, else csv)")

	return cmd
}

func share(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
