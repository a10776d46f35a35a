// Package importer wires the `dwarf2db import` command: open the binary,
// run one full resolution, persist the result.
package importer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwarf2db/dwarf2db/internal/config"
	"github.com/dwarf2db/dwarf2db/internal/logging"
	"github.com/dwarf2db/dwarf2db/internal/objfile"
	"github.com/dwarf2db/dwarf2db/internal/resolve"
	"github.com/dwarf2db/dwarf2db/internal/typedb"
)

// NewImportCmd builds the import subcommand.
func NewImportCmd() *cobra.Command {
	var (
		cfgPath     string
		storagePath string
		dbName      string
		logLevel    string
		maxEntries  int
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "import <binary>",
		Short: "Import DWARF type information from a binary into the type store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("storage") {
				cfg.StoragePath = storagePath
			}
			if cmd.Flags().Changed("database") {
				cfg.DatabaseName = dbName
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("max-entries") {
				cfg.MaxTypeEntries = maxEntries
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runImport(cmd, cfg, args[0], dryRun)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&storagePath, "storage", "", "directory holding the type store")
	cmd.Flags().StringVar(&dbName, "database", "", "type store database name")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (trace/debug/info/warn/error)")
	cmd.Flags().IntVar(&maxEntries, "max-entries", 0, "cap on created type entries (0 = unlimited)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve without persisting to the type store")

	return cmd
}

func runImport(cmd *cobra.Command, cfg config.Config, binaryPath string, dryRun bool) error {
	logger := logging.NewWithComponent(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	}, "importer")

	f, err := objfile.Open(binaryPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("Failed to close binary")
		}
	}()

	// The resolution context lives for exactly this run.
	cache := resolve.NewCache()
	db := typedb.New(logger, typedb.WithMaxEntries(cfg.MaxTypeEntries))
	resolver := resolve.NewResolver(f.Reader(), cache, db, logger,
		resolve.WithNameRetryCap(cfg.NameRetryCap))

	result, err := resolver.Run()
	if err != nil {
		return fmt.Errorf("resolution aborted: %w", err)
	}

	if !dryRun {
		store, err := typedb.OpenStore(cfg.StoragePath, cfg.DatabaseName, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Msg("Failed to close type store")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		run := typedb.RunRecord{
			ID:        result.RunID,
			Binary:    binaryPath,
			StartedAt: result.StartedAt,
			Duration:  result.Duration,
			Visited:   result.Visited,
			Types:     result.Types,
			Functions: result.Functions,
			Variables: result.Variables,
			Useless:   result.Useless,
			Skipped:   result.Skipped,
			Patched:   result.Patched,
		}
		if err := store.SaveRun(ctx, run, db.All(), result.Skips); err != nil {
			return fmt.Errorf("failed to persist run: %w", err)
		}
	}

	cmd.Printf("Imported %d type entries from %s (%d nodes visited, %d skipped, %d patched in second pass)\n",
		db.Len(), binaryPath, result.Visited, result.Skipped, result.Patched)
	if result.Incomplete > 0 {
		cmd.Printf("Warning: %d members remain incomplete; see the run diagnostics\n", result.Incomplete)
	}
	return nil
}
