// Command controlplane is speedsentry's single binary: the admin/customer
// REST surface (-mode api), the latency rollup aggregator (-mode
// aggregator), and schema migrations (-mode migrate) all live behind one
// entrypoint and a mode flag, the way cmd/nightowl (wisbric-nightowl) dispatched
// its own sub-commands before this repo's transformation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inesonic/speedsentry/internal/config"
	"github.com/inesonic/speedsentry/internal/customerapi"
	"github.com/inesonic/speedsentry/internal/adminapi"
	"github.com/inesonic/speedsentry/internal/dbmux"
	"github.com/inesonic/speedsentry/internal/httpserver"
	"github.com/inesonic/speedsentry/internal/identity"
	"github.com/inesonic/speedsentry/internal/leaderlock"
	"github.com/inesonic/speedsentry/internal/platform"
	"github.com/inesonic/speedsentry/internal/telemetry"
	"github.com/inesonic/speedsentry/pkg/capabilities"
	"github.com/inesonic/speedsentry/pkg/customerauth"
	"github.com/inesonic/speedsentry/pkg/event"
	"github.com/inesonic/speedsentry/pkg/fleet"
	"github.com/inesonic/speedsentry/pkg/latency"
	"github.com/inesonic/speedsentry/pkg/mapping"
	"github.com/inesonic/speedsentry/pkg/monitor"
	"github.com/inesonic/speedsentry/pkg/secrets"
	"github.com/inesonic/speedsentry/pkg/serveradmin"
)

func main() {
	mode := flag.String("mode", "api", `one of "api", "aggregator", "migrate"`)
	configPath := flag.String("config", "/etc/speedsentry/config.json", "path to the JSON configuration file")
	migrationsDir := flag.String("migrations", "/etc/speedsentry/migrations", "directory of golang-migrate SQL files (migrate mode only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speedsentry: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := "info"
	if cfg.Verbose {
		logLevel = "debug"
	}
	logger := telemetry.NewLogger("json", logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "migrate":
		if err := platform.RunMigrations(cfg.DatabaseURL(), *migrationsDir); err != nil {
			logger.Error("running migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	case "aggregator":
		runAggregator(ctx, cfg, logger)
	case "api":
		runAPI(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "speedsentry: unknown -mode %q\n", *mode)
		os.Exit(1)
	}
}

// collaborators bundles every store/service the api and aggregator modes
// share, so each mode wires only what it actually runs.
type collaborators struct {
	capabilities *capabilities.Store
	secrets      *secrets.Store
	mappings     *mapping.Store
	monitors     *monitor.Store
	latencyStore *latency.Store
	events       *event.Store
	notifier     *event.Notifier
	inventory    *fleet.Inventory
	admin        *serveradmin.Admin
	restAuth     *customerauth.Authenticator
}

func buildCollaborators(cfg *config.Config, logger *slog.Logger) (*collaborators, error) {
	codec, err := identity.NewCodec(cfg.DecodedIdentifierKey())
	if err != nil {
		return nil, fmt.Errorf("constructing identifier codec: %w", err)
	}

	capsStore := capabilities.NewStore(cfg.CustomerCapabilitiesCacheSize, logger)
	secretsStore := secrets.NewStore(cfg.CustomerSecretsCacheSize, cfg.DecodedSecretsKey(), codec, logger)
	mappingStore := mapping.NewStore(logger)
	monitorStore := monitor.NewStore()
	latencyStore := latency.NewStore()
	eventStore := event.NewStore()
	notifier := event.NewNotifier(cfg.SlackBotToken, cfg.SlackEventChannel, logger)

	inventory := fleet.NewInventory(logger)
	fleetClient := fleet.NewClient(cfg.PollingServerAPIKey)
	admin := serveradmin.New(inventory, fleetClient, mappingStore, capsStore, monitorStore, logger)

	restAuth := customerauth.NewRestOnly(secretsStore, capsStore, logger)

	return &collaborators{
		capabilities: capsStore,
		secrets:      secretsStore,
		mappings:     mappingStore,
		monitors:     monitorStore,
		latencyStore: latencyStore,
		events:       eventStore,
		notifier:     notifier,
		inventory:    inventory,
		admin:        admin,
		restAuth:     restAuth,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		logger.Error("connecting to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	col, err := buildCollaborators(cfg, logger)
	if err != nil {
		logger.Error("wiring collaborators", "error", err)
		os.Exit(1)
	}

	metricsReg := telemetry.NewRegistry()
	var corsOrigins []string
	if cfg.WebsiteAuthority != "" {
		corsOrigins = []string{cfg.WebsiteAuthority}
	}
	server := httpserver.NewServer(logger, pool, metricsReg, corsOrigins)

	admAPI := adminapi.New(col.capabilities, col.secrets, col.mappings, col.monitors, col.latencyStore, col.events, col.admin, col.inventory, pool, logger)
	var adminRouter chi.Router = server.Router
	if cfg.RedisURL != "" {
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connecting to redis for admin rate limiting", "error", err)
			os.Exit(1)
		}
		limiter := httpserver.NewRateLimiter(rdb, 120, time.Minute)
		adminRouter = server.Router.With(limiter.Middleware)
	}
	admAPI.Mount(adminRouter, cfg.DecodedInboundAPIKey())

	custAPI := customerapi.New(col.restAuth, col.capabilities, col.monitors, col.latencyStore, col.admin, pool, logger)
	custAPI.Mount(server.Router)

	if os.Getenv("SPEEDSENTRY_AGGREGATOR_DISABLED") != "true" {
		go runEmbeddedAggregator(ctx, cfg, logger)
	}

	addr := fmt.Sprintf("%s:%d", cfg.InboundHostAddress, cfg.InboundPort)
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     server,
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down http server", "error", err)
		}
	}()

	logger.Info("speedsentry api listening", "address", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server exited", "error", err)
		os.Exit(1)
	}
}

// runEmbeddedAggregator is api mode's background rollup goroutine (spec
// §0: "api mode also starts the aggregator as a background goroutine
// unless SPEEDSENTRY_AGGREGATOR_DISABLED=true").
func runEmbeddedAggregator(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	if err := runAggregatorLoop(ctx, cfg, logger); err != nil {
		logger.Error("embedded aggregator stopped", "error", err)
	}
}

func runAggregator(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	if err := runAggregatorLoop(ctx, cfg, logger); err != nil {
		logger.Error("aggregator stopped", "error", err)
		os.Exit(1)
	}
}

func runAggregatorLoop(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mux := dbmux.New(logger)
	mux.Configure(dbmux.Settings{
		User:     cfg.DatabaseUsername,
		Password: cfg.DatabasePassword,
		DBName:   cfg.DatabaseName,
		Host:     cfg.DatabaseServer,
		Port:     cfg.ResolvedDatabasePort(),
		Driver:   "postgres",
	})

	latencyStore := latency.NewStore()
	aggCfg := latency.Config{
		ResamplePeriod:       time.Duration(cfg.AggregationSamplePeriod) * time.Second,
		InputTableMaximumAge: time.Duration(cfg.AggregationAge) * time.Second,
		ExpungePeriod:        time.Duration(cfg.ExpungeAge) * time.Second,
	}
	aggregator := latency.NewAggregator(mux, latencyStore, aggCfg, logger)

	if cfg.RedisURL != "" {
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis for leader election: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		lock := leaderlock.New(rdb, "aggregator", uuid.NewString(), 2*aggCfg.ResamplePeriod)
		aggregator.SetLeader(lock)
	}

	return aggregator.Run(ctx)
}
