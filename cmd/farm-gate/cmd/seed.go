package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	celcond "github.com/farm-gate/farmgate/internal/adapter/outbound/cel"
	"github.com/farm-gate/farmgate/internal/adapter/outbound/sqlite"
	"github.com/farm-gate/farmgate/internal/config"
	"github.com/farm-gate/farmgate/internal/domain/org"
	"github.com/farm-gate/farmgate/internal/service"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the stock organizations into storage",
	Long: `Seed the stock organizations, their tool permissions, and their
denial rules into the configured storage.

Seeding is idempotent: existing orgs are overwritten with the stock
definitions. Only the sqlite driver needs an explicit seed; the memory
driver is seeded automatically on every start.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		return fmt.Errorf("seed requires the sqlite storage driver, got %q", cfg.Storage.Driver)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	defer closeDB(db, logger)

	conds, err := celcond.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to build condition evaluator: %w", err)
	}
	store := sqlite.NewOrgStore(db)
	orgSvc := service.NewOrgService(store, org.NewChecker(store, conds), logger)

	if err := orgSvc.Seed(context.Background()); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	orgs, err := orgSvc.ListOrgs(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list orgs: %w", err)
	}
	fmt.Printf("seeded %d organizations into %s\n", len(orgs), cfg.Storage.Path)
	return nil
}
