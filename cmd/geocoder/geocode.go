package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/conversion"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/geocoding"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/identification"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/export"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/parsers"
)

// readInputs parses the files into one table, tagging rows with FILENAME
// when there are several
func (a *app) readInputs(cmd *cobra.Command, paths []string, sheet string) (*domain.Table, error) {
	files := make([]parsers.NamedFile, len(paths))
	for i, p := range paths {
		files[i] = parsers.NamedFile{Name: filepath.Base(p), Path: p}
	}
	return a.uploadParsers(sheet).ParseFiles(cmd.Context(), files)
}

func (a *app) newGeocoder(ctx context.Context) (*geocoding.Service, *backends, error) {
	cfg, err := a.geocodingConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	provider, b, err := a.newProvider(true)
	if err != nil {
		return nil, nil, err
	}
	svc, err := geocoding.NewService(&cfg, provider, a.logger.With("service", "geocoding"))
	if err != nil {
		b.close()
		return nil, nil, err
	}
	return svc, b, nil
}

// outputFormat picks the format from the flag or the output extension
func outputFormat(flag, output string) (export.Format, error) {
	if flag != "" {
		return export.ParseFormat(flag)
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".xlsx":
		return export.FormatExcel, nil
	case ".json":
		return export.FormatJSON, nil
	}
	return export.FormatCSV, nil
}

func createGeocodeCmd(a *app) *cobra.Command {
	var (
		column, method, pattern string
		output, format, sheet   string
	)

	cmd := &cobra.Command{
		Use:   "geocode [file...]",
		Short: "Attach coordinates and addresses to the postcodes in one or more files",
		Long: `Reads CSV (optionally gz, bz2 or zip compressed), Excel, JSON, JSONL or Parquet files
with the same columns, finds the postcode column (or uses --column), validates every value and
joins the master reference. The merged table is written to --output or stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtOut, err := outputFormat(format, output)
			if err != nil {
				return err
			}

			table, err := a.readInputs(cmd, args, sheet)
			if err != nil {
				return err
			}

			svc, b, err := a.newGeocoder(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			var res *geocoding.Result
			if column != "" {
				m, err := identification.ParseMethod(method)
				if err != nil {
					return err
				}
				sel := conversion.Selection{Column: column, Method: m}
				if m == identification.MethodIndirect {
					sel.RegexPattern = pattern
					if sel.RegexPattern == "" {
						sel.RegexPattern = a.cfg.RegexPattern
					}
				}
				res, err = svc.ProcessWithSelection(cmd.Context(), table, sel)
				if err != nil {
					return err
				}
			} else {
				res, err = svc.Process(cmd.Context(), table)
				if err != nil {
					return err
				}
			}

			if !res.Success {
				printCandidates(cmd.ErrOrStderr(), res.Candidates)
				return errors.New(res.Message)
			}

			if err := a.writeResult(res.Table, output, fmtOut); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "geocoded %d of %d records (%.1f%%) using %s [%s]\n",
				res.MatchedRecords(), res.TotalRecords(), res.Stats.MatchRate*100,
				res.Selection.Column, res.Selection.Method)
			for _, rc := range res.Stats.UnmatchedReasons {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %-24s %6d  %5.1f%%\n", rc.Reason, rc.Count, rc.Percent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&column, "column", "", "postcode column; skips automatic identification")
	cmd.Flags().StringVar(&method, "method", string(identification.MethodDirect), "DIRECT or INDIRECT (with --column)")
	cmd.Flags().StringVar(&pattern, "regex", "", "extraction pattern for INDIRECT (default REGEX_PATTERN)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "", "csv, xlsx or json (default from --output extension, else csv)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Excel worksheet to read (default first)")

	return cmd
}

func (a *app) writeResult(t *domain.Table, output string, format export.Format) error {
	w := a.out
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == export.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	return export.Write(w, t, format)
}

func createIdentifyCmd(a *app) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "identify [file...]",
		Short: "Rank the columns of a table by how many postcodes they yield",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.readInputs(cmd, args, sheet)
			if err != nil {
				return err
			}

			svc, b, err := a.newGeocoder(cmd.Context())
			if err != nil {
				return err
			}
			defer b.close()

			res, err := svc.Identify(cmd.Context(), table)
			if err != nil {
				return err
			}

			printCandidates(a.out, res.Candidates)
			if !res.Success {
				return errors.New(geocoding.NoCandidateMessage(res.BestRate))
			}
			fmt.Fprintf(a.out, "\nselected: %s [%s] at %.1f%%\n", res.Best.Column, res.Best.Method, res.Best.SuccessRate*100)
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "Excel worksheet to read (default first)")
	return cmd
}

func printCandidates(w io.Writer, candidates []identification.Candidate) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tMETHOD\tSUCCESS RATE\tNAME SCORE")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%.0f\n", c.Column, c.Method, c.SuccessRate*100, c.FieldNameScore)
	}
	tw.Flush()
}
