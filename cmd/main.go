package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pvelikov/session-balancer/config"
	"github.com/pvelikov/session-balancer/internal/balancer"
	"github.com/pvelikov/session-balancer/internal/faults"
	"github.com/pvelikov/session-balancer/internal/health"
	"github.com/pvelikov/session-balancer/internal/httpserver"
	"github.com/pvelikov/session-balancer/internal/metrics"
	"github.com/pvelikov/session-balancer/internal/proxy"
	"github.com/pvelikov/session-balancer/internal/worker"
	"github.com/pvelikov/session-balancer/pkg/logger"
)

// controller is the optional hook point for an externally supplied
// collaborator that observes or extends the running balancer. Builds that
// need one assign it before main runs.
var controller balancer.Controller

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	healthCfg, err := buildHealthConfig(cfg)
	if err != nil {
		log.Error("Failed to parse status polling config", slog.Any("err", err))
		os.Exit(1)
	}

	boundary := faults.NewBoundary(256, logger.Component(log, "faults"))
	collector := metrics.NewCollector(1024, logger.Component(log, "metrics"))
	collector.Start(ctx)

	transport := proxy.NewTransport(logger.Component(log, "proxy"))
	bal := balancer.New(logger.Component(log, "balancer"), boundary, collector, transport, healthCfg, buildPool(cfg))
	bal.Start(ctx)

	if controller != nil {
		if err := controller.Attach(bal); err != nil {
			log.Error("Controller attach failed", slog.Any("err", err))
			os.Exit(1)
		}
	}

	go drainFaults(ctx, boundary, log)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(bal, collector))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Balancer listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("workers", len(cfg.Workers)))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildPool(cfg *config.Config) []worker.Worker {
	pool := make([]worker.Worker, 0, len(cfg.Workers))
	for _, wc := range cfg.Workers {
		pool = append(pool, worker.New(wc.Host, wc.Port))
	}
	return pool
}

func buildHealthConfig(cfg *config.Config) (health.Config, error) {
	interval, err := time.ParseDuration(cfg.Status.CheckInterval)
	if err != nil {
		return health.Config{}, err
	}

	timeout, err := time.ParseDuration(cfg.Status.Timeout)
	if err != nil {
		return health.Config{}, err
	}

	return health.Config{
		StatusURL: cfg.Status.URL,
		Interval:  interval,
		Timeout:   timeout,
		DataKey:   cfg.Status.DataKey,
	}, nil
}

// drainFaults is the hosting-process side of the fault boundary: every
// reported fault ends up in the log exactly once.
func drainFaults(ctx context.Context, boundary *faults.Boundary, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-boundary.Events():
			log.Error("Exchange fault",
				slog.String("exchange", ev.Exchange),
				slog.Time("at", ev.Time),
				slog.Any("err", ev.Err))
		}
	}
}
