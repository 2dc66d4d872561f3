package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/database"
	"github.com/rickgao/quotefeed/internal/feed"
	"github.com/rickgao/quotefeed/internal/logging"
	"github.com/rickgao/quotefeed/internal/market"
	"github.com/rickgao/quotefeed/internal/metrics"
	"github.com/rickgao/quotefeed/internal/publish"
	"github.com/rickgao/quotefeed/internal/router"
	"github.com/rickgao/quotefeed/internal/session"
	"github.com/rickgao/quotefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	instruments := flag.String("instruments", "", "comma separated instruments, e.g. EUR/USD,GBP/USD")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath, *instruments)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting quotefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instruments", cfg.Instruments,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("quotefeed stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("quotefeed stopped")
}

func loadConfig(path, instruments string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadWithDefaults(path); err != nil {
			return nil, err
		}
	}
	if instruments != "" {
		cfg.SetInstruments(instruments)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional tick persistence
	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		var err error
		pool, err = database.Connect(ctx, cfg.Database.DBConfig)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("database connected")
	}

	// Event outputs
	var (
		publishers []router.Publisher
		closers    []io.Closer
		hub        *publish.Hub
	)
	if cfg.Publish.StdoutEnabled() {
		publishers = append(publishers, publish.NewStdout(os.Stdout))
	}
	if cfg.Publish.WebSocket.Enabled {
		hub = publish.NewHub(logger)
		publishers = append(publishers, hub)
	}
	if cfg.Publish.Redis.Enabled {
		r := publish.NewRedis(cfg.Publish.Redis)
		if err := r.Ping(ctx); err != nil {
			logger.Warn("redis not reachable, publishing anyway", "addr", cfg.Publish.Redis.Addr, "error", err)
		}
		publishers = append(publishers, r)
		closers = append(closers, r)
	}
	if cfg.Publish.Kafka.Enabled {
		k := publish.NewKafka(cfg.Publish.Kafka)
		publishers = append(publishers, k)
		closers = append(closers, k)
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("close publisher", "error", err)
			}
		}
	}()

	client, err := feed.New(cfg, feed.Options{
		Publishers: publishers,
		DB:         pool,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(client, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	stopHub := func() {}
	if hub != nil {
		stopHub = startHubLoop(hub)
		defer stopHub()
		g.Go(func() error {
			return hub.ListenAndServe(gctx, cfg.Publish.WebSocket.Addr, cfg.Publish.WebSocket.Path)
		})
	}

	// The session ending for any reason ends the process.
	g.Go(func() error {
		defer stop()
		// Run returns only after the router is drained.
		defer stopHub()
		return client.Run(gctx)
	})

	<-gctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	healthServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startHubLoop runs the hub loop on its own context. The returned stop
// cancels it and waits for the loop to exit; it is safe to call twice.
// The loop must outlive feed.Client.Run, which flushes final events after
// its context is done.
func startHubLoop(hub *publish.Hub) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// createHealthHandler serves /health and the Prometheus endpoint.
func createHealthHandler(client *feed.Client, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := client.State()
		health := struct {
			Status  string         `json:"status"`
			Session string         `json:"session"`
			RunID   string         `json:"run_id"`
			Version version.Info   `json:"version"`
			Summary market.Summary `json:"instruments"`
		}{
			Status:  "healthy",
			Session: state.String(),
			RunID:   client.RunID().String(),
			Version: version.Get(),
			Summary: client.Summary(),
		}

		if state != session.StateLoggedOn {
			health.Status = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle(metricsPath, metrics.Handler())

	return mux
}
