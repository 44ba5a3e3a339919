package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/farm-gate/farmgate/internal/adapter/inbound/admin"
	"github.com/farm-gate/farmgate/internal/adapter/inbound/http"
	"github.com/farm-gate/farmgate/internal/adapter/inbound/stdio"
	celcond "github.com/farm-gate/farmgate/internal/adapter/outbound/cel"
	"github.com/farm-gate/farmgate/internal/adapter/outbound/jsonl"
	"github.com/farm-gate/farmgate/internal/adapter/outbound/localfs"
	"github.com/farm-gate/farmgate/internal/adapter/outbound/memory"
	"github.com/farm-gate/farmgate/internal/adapter/outbound/sqlite"
	tracing "github.com/farm-gate/farmgate/internal/adapter/outbound/trace"
	"github.com/farm-gate/farmgate/internal/config"
	"github.com/farm-gate/farmgate/internal/domain/approval"
	"github.com/farm-gate/farmgate/internal/domain/audit"
	"github.com/farm-gate/farmgate/internal/domain/org"
	"github.com/farm-gate/farmgate/internal/domain/policy"
	"github.com/farm-gate/farmgate/internal/domain/scan"
	"github.com/farm-gate/farmgate/internal/domain/tool"
	"github.com/farm-gate/farmgate/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the Farm Gate gateway.

Tool calls arrive as JSON-RPC 2.0 messages on stdin, one per line, and
responses leave on stdout. The HTTP server carries the admin API,
Prometheus metrics, and the health endpoint. Logs go to stderr.

Examples:
  # Start with config file settings
  farm-gate start

  # Start with a specific config file
  farm-gate --config /path/to/config.yaml start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Logger to stderr; stdout is reserved for the JSON-RPC stream.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("farm-gate stopped")
	return nil
}

// run wires all components together and serves until the context is
// cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stores, closeStores, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	if cfg.Storage.AuditFile != "" {
		mirror, err := jsonl.NewMirror(stores.audit, cfg.Storage.AuditFile)
		if err != nil {
			return fmt.Errorf("failed to open audit mirror: %w", err)
		}
		defer func() {
			if err := mirror.Close(); err != nil {
				logger.Warn("audit mirror close failed", "error", err)
			}
		}()
		stores.audit = mirror
		logger.Info("audit mirror enabled", "file", cfg.Storage.AuditFile)
	}

	tracer, shutdownTracer, err := tracing.NewTracer(cfg.Tracing.Enabled)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	conds, err := celcond.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to build condition evaluator: %w", err)
	}
	checker := org.NewChecker(stores.orgs, conds)

	orgSvc := service.NewOrgService(stores.orgs, checker, logger)
	if err := orgSvc.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed orgs: %w", err)
	}

	approvalSvc := service.NewApprovalService(stores.approvals, cfg.ApprovalTTL(), logger)

	detector := scan.NewDetector()
	if cfg.Gateway.ScanRulesFile != "" {
		rules, err := config.LoadScanRules(cfg.Gateway.ScanRulesFile)
		if err != nil {
			return fmt.Errorf("failed to load scan rules: %w", err)
		}
		detector = scan.NewDetectorWithRules(rules)
		logger.Info("custom scan rules loaded", "file", cfg.Gateway.ScanRulesFile, "rules", len(rules))
	}
	provider := localfs.NewProvider(cfg.Gateway.WorkspaceRoot, detector, logger)
	provider.ShellTimeout = cfg.ShellTimeout()

	registry := tool.NewRegistry()
	localfs.Register(registry, policy.NewEvaluator(stores.policies), provider)
	service.RegisterOrgTools(registry, orgSvc)

	promRegistry := prometheus.NewRegistry()
	gateway := service.NewGatewayService(registry, approvalSvc, stores.audit, logger,
		service.WithMetrics(service.NewMetrics(promRegistry)),
		service.WithTracer(tracer),
		service.WithCacheSize(cfg.Gateway.DecisionCacheSize),
		service.WithOrgGate(checker, stores.orgs),
	)
	onboarding := service.NewOnboardingService(stores.policies, gateway.InvalidatePolicyCache, logger)

	adminHandler := admin.NewHandler(
		approvalSvc,
		orgSvc,
		onboarding,
		stores.audit,
		admin.NewKeyVerifier(cfg.Admin.APIKeys),
		logger,
	)
	httpTransport := http.NewTransport(promRegistry,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAdminHandler(adminHandler.Routes()),
		http.WithLogger(logger),
	)
	stdioTransport := stdio.NewTransport(gateway, approvalSvc, registry, logger)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpTransport.Start(ctx)
	}()

	logger.Info("farm-gate started",
		"http_addr", cfg.Server.HTTPAddr,
		"storage", cfg.Storage.Driver,
		"tools", len(registry.Names()),
	)

	// Stdin closing ends the session; cancel so the HTTP server shuts down
	// instead of waiting for a signal.
	stdioErr := stdioTransport.Start(ctx)
	if errors.Is(stdioErr, context.Canceled) {
		stdioErr = nil
	}
	cancel()
	if err := <-httpErr; err != nil {
		return fmt.Errorf("http transport failed: %w", err)
	}
	if stdioErr != nil {
		return fmt.Errorf("stdio transport failed: %w", stdioErr)
	}
	return nil
}

// storeSet groups the persistence ports so run does not care which driver
// backs them.
type storeSet struct {
	policies  policy.Store
	approvals approval.Store
	audit     audit.Store
	orgs      org.Store
}

// openStores builds the store set for the configured driver. The returned
// close function releases any underlying database handle.
func openStores(cfg *config.Config, logger *slog.Logger) (storeSet, func(), error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return storeSet{}, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("sqlite storage opened", "path", cfg.Storage.Path)
		return storeSet{
			policies:  sqlite.NewPolicyStore(db),
			approvals: sqlite.NewApprovalStore(db),
			audit:     sqlite.NewAuditStore(db),
			orgs:      sqlite.NewOrgStore(db),
		}, func() { closeDB(db, logger) }, nil
	default:
		return storeSet{
			policies:  memory.NewPolicyStore(),
			approvals: memory.NewApprovalStore(),
			audit:     memory.NewAuditStore(),
			orgs:      memory.NewOrgStore(),
		}, func() {}, nil
	}
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
