package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/masterdata"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/database/repositories"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/export"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/parsers"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/queue"
)

func createReferenceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Build, import and refresh the geocoded postcode reference",
	}

	cmd.AddCommand(createReferenceBuildCmd(a))
	cmd.AddCommand(createReferenceImportCmd(a))
	cmd.AddCommand(createReferenceRefreshCmd(a))
	cmd.AddCommand(createReferenceInfoCmd(a))

	return cmd
}

// readTable parses a reference-side file with no size limit
func readTable(ctx context.Context, path string) (*domain.Table, error) {
	pc := parsers.DefaultParserConfig()
	pc.MaxFileSize = 0
	result, err := parsers.NewParserFactory(pc).ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return result.Table(), nil
}

func createReferenceBuildCmd(a *app) *cobra.Command {
	var oneMap, openData, postcodeBase, output string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the geocoded reference from the raw OneMap, opendatasoft and PostcodeBase exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var src masterdata.Sources
			var err error
			if src.OneMap, err = readTable(ctx, oneMap); err != nil {
				return err
			}
			if openData != "" {
				if src.OpenData, err = readTable(ctx, openData); err != nil {
					return err
				}
			}
			if postcodeBase != "" {
				if openData == "" {
					a.logger.Warn("--postcodebase is only used together with --opendata")
				}
				if src.PostcodeBase, err = readTable(ctx, postcodeBase); err != nil {
					return err
				}
			}

			builder, err := masterdata.NewBuilder(nil, a.logger.With(slog.String("component", "masterdata")))
			if err != nil {
				return err
			}
			result, err := builder.Build(src)
			if err != nil {
				return err
			}

			format := export.FormatCSV
			if strings.EqualFold(filepath.Ext(output), ".xlsx") {
				format = export.FormatExcel
			}
			if err := a.writeResult(result.Geocoded, output, format); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "built %d postcodes (%d duplicates removed)\n",
				result.Geocoded.Len(), result.Dedup.RemovedCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&oneMap, "onemap", "", "OneMap export (required)")
	cmd.Flags().StringVar(&openData, "opendata", "", "opendatasoft export")
	cmd.Flags().StringVar(&postcodeBase, "postcodebase", "", "PostcodeBase export, joined onto --opendata")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, .csv or .xlsx (default stdout as CSV)")
	_ = cmd.MarkFlagRequired("onemap")

	return cmd
}

func createReferenceImportCmd(a *app) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Load a geocoded reference file into PostgreSQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			table, err := readTable(ctx, args[0])
			if err != nil {
				return err
			}

			builder, err := masterdata.NewBuilder(nil, a.logger.With(slog.String("component", "masterdata")))
			if err != nil {
				return err
			}
			built, err := builder.BuildReference(table)
			if err != nil {
				return err
			}

			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.AutoMigrate(ctx); err != nil {
				return err
			}

			repo := repositories.NewPostcodeRepository(db.DB, a.logger)
			if replace {
				if err := repo.DeleteAll(ctx); err != nil {
					return err
				}
			}
			saved, err := repo.SaveAll(ctx, built.Geocoded)
			if err != nil {
				return err
			}
			total, err := repo.Count(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "imported %d postcodes, %d in reference\n", saved, total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "delete the existing reference before importing")
	return cmd
}

func createReferenceRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask the running workers to reload the reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := queue.NewAsynqClient(a.queueOptions(), a.logger)
			defer client.Close()

			info, err := client.EnqueueReferenceRefresh(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "enqueued %s on %s\n", info.ID, info.Queue)
			return nil
		},
	}
}

func createReferenceInfoCmd(a *app) *cobra.Command {
	var masterList string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Load the configured reference and print its size",
		Long: `Loads the configured reference and prints its source and size. With --master-list
the one-column postcode list is written as well, ready for MASTER_LIST_FILE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, b, err := a.newProvider(false)
			if err != nil {
				return err
			}
			defer b.close()

			ds, err := provider.Get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "source:    %s\npostcodes: %d\nloaded:    %s\n",
				ds.Source(), ds.Len(), ds.LoadedAt().Format("2006-01-02 15:04:05"))

			if masterList != "" {
				list := ds.MasterList()
				format := export.FormatCSV
				if strings.EqualFold(filepath.Ext(masterList), ".xlsx") {
					format = export.FormatExcel
				}
				if err := a.writeResult(list, masterList, format); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "master list: %d postcodes written to %s\n", list.Len(), masterList)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&masterList, "master-list", "", "write the one-column postcode list to this .csv or .xlsx file")
	return cmd
}
