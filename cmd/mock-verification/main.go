// Command mock-verification runs in-memory evidence and results services that
// speak the verification backend protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"kycflow/internal/mockbackend"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)

	if err := run(cfg, log); err != nil {
		log.Error("mock verification backend stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	backend, err := mockbackend.New(mockbackend.ConfigFrom(cfg.Server),
		mockbackend.WithLogger(log),
		mockbackend.WithRegistry(reg),
	)
	if err != nil {
		return err
	}

	evidence := newServer(cfg.Server.Addr, backend.EvidenceRouter(), cfg.Server)
	results := newServer(cfg.Server.ResultsAddr, backend.ResultsRouter(), cfg.Server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting mock verification backend",
		"evidence_addr", cfg.Server.Addr,
		"results_addr", cfg.Server.ResultsAddr,
		"default_decision", cfg.Server.DefaultDecision,
		"session_ttl", cfg.Server.SessionTTL,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{evidence, results} {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		backend.RunSweeper(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(evidence.Shutdown(shutdownCtx), results.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("servers stopped")
	return nil
}

func newServer(addr string, handler http.Handler, sc config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      sc.WriteTimeout,
	}
}
