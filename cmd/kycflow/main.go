// Command kycflow drives a complete verification workflow from the terminal:
// it creates (or loads) a backend session, walks every step with the given
// document images and prints the final decision as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"kycflow/internal/platform/config"
	"kycflow/internal/platform/logger"
	"kycflow/internal/platform/redis"
	"kycflow/internal/verification/client"
	"kycflow/internal/verification/metrics"
	"kycflow/internal/verification/tracer"
	"kycflow/internal/workflow/store"
	"kycflow/pkg/domain"
	"kycflow/pkg/kyc"
)

type options struct {
	configPath string
	idType     string
	front      string
	back       string
	selfie     string
	reset      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	flag.StringVar(&opts.idType, "id-type", "national_id", "document type to verify")
	flag.StringVar(&opts.front, "front", "", "front image of the document (placeholder when empty)")
	flag.StringVar(&opts.back, "back", "", "back image of the document (placeholder when empty)")
	flag.StringVar(&opts.selfie, "selfie", "", "selfie image (placeholder when empty)")
	flag.BoolVar(&opts.reset, "reset", false, "discard any persisted workflow before starting")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("verification failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log *slog.Logger) error {
	reg := prometheus.NewRegistry()

	snapshots, closeStore, err := openStore(ctx, cfg.Storage, reg)
	if err != nil {
		return err
	}
	defer closeStore()

	sdkOpts := []kyc.Option{
		kyc.WithLogger(log),
		kyc.WithSnapshotStore(snapshots),
		kyc.WithTracer(tracer.NewOTel()),
		kyc.WithMetrics(metrics.New(reg)),
	}
	if cfg.API.RateLimit > 0 {
		sdkOpts = append(sdkOpts, kyc.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.API.RateLimit), max(cfg.API.RateBurst, 1))))
	}
	sdk := kyc.New(sdkConfig(cfg), sdkOpts...)
	defer logMetrics(ctx, log, reg)

	sdk.Subscribe(kyc.EventStepChanged, func(ctx context.Context, evt kyc.Event) {
		log.InfoContext(ctx, "step changed", "step", evt.Step, "title", evt.Step.Title())
	})
	sdk.Subscribe(kyc.EventError, func(ctx context.Context, evt kyc.Event) {
		log.WarnContext(ctx, "workflow error", "error", evt.Err)
	})

	if err := sdk.Initialize(ctx); err != nil {
		return err
	}
	if opts.reset {
		if err := sdk.Reset(ctx); err != nil {
			return err
		}
	}
	if sdk.DemoMode() {
		log.WarnContext(ctx, "verification backend unreachable, continuing in demo mode")
	}

	if sdk.Session() == nil && cfg.Workflow.SessionID == "" {
		session, err := sdk.CreateVerificationSession(ctx, client.CreateSessionRequest{
			TenantID: cfg.Auth.TenantID,
			UserID:   cfg.Auth.UserID,
			IDType:   opts.idType,
		})
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "verification session created", "session_id", session.ID)
	}
	if sdk.CurrentStep() == domain.StepWelcome {
		if err := sdk.StartVerification(ctx, nil); err != nil {
			return err
		}
	}

	if err := walk(ctx, sdk, opts); err != nil {
		return err
	}

	result, err := sdk.CompleteVerification(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// walk captures the evidence each step needs and advances until the result step.
func walk(ctx context.Context, sdk *kyc.SDK, opts options) error {
	for sdk.CurrentStep() != domain.StepResult {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := sdk.CurrentStep()
		update, err := evidenceFor(step, opts)
		if err != nil {
			return err
		}
		if update != nil {
			if err := sdk.UpdateData(ctx, *update); err != nil {
				return err
			}
		}
		if err := sdk.NextStep(ctx); err != nil {
			return fmt.Errorf("advance from %s: %w", step, err)
		}
		if sdk.CurrentStep() == step {
			return fmt.Errorf("workflow did not advance from %s", step)
		}
	}
	return nil
}

func evidenceFor(step domain.Step, opts options) (*domain.EvidenceUpdate, error) {
	switch step {
	case domain.StepIDTypeSelection:
		idType := opts.idType
		return &domain.EvidenceUpdate{IDType: &idType}, nil
	case domain.StepIDScanFront:
		img, err := loadImage(opts.front, "front.png")
		return &domain.EvidenceUpdate{Front: img}, err
	case domain.StepIDScanBack:
		img, err := loadImage(opts.back, "back.png")
		return &domain.EvidenceUpdate{Back: img}, err
	case domain.StepSelfie:
		img, err := loadImage(opts.selfie, "selfie.png")
		return &domain.EvidenceUpdate{Selfie: img}, err
	}
	return nil, nil
}

// placeholderPNG is a PNG signature padded to a plausible upload size.
var placeholderPNG = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 2048)...)

func loadImage(path, placeholderName string) (*domain.Image, error) {
	if path == "" {
		return domain.NewImage(placeholderName, placeholderPNG), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return domain.NewImage(filepath.Base(path), data), nil
}

func openStore(ctx context.Context, sc config.StorageConfig, reg prometheus.Registerer) (store.SnapshotStore, func(), error) {
	switch sc.Backend {
	case "file":
		return store.NewFileStore(sc.StateFile), func() {}, nil
	case "redis":
		rc, err := redis.New(ctx, sc.Redis, reg)
		if err != nil {
			return nil, nil, err
		}
		if rc == nil {
			return nil, nil, errors.New("storage backend redis needs storage.redis.url")
		}
		rc.RecordPoolStats()
		return store.NewRedisStore(rc.Client, sc.Redis.Scope, sc.Redis.TTL), func() { _ = rc.Close() }, nil
	default:
		return store.NewInMemoryStore(), func() {}, nil
	}
}

func sdkConfig(cfg *config.Config) kyc.Config {
	return kyc.Config{
		BaseURL:                cfg.API.BaseURL,
		ResultsURL:             cfg.API.ResultsURL,
		Timeout:                cfg.API.Timeout,
		RetryAttempts:          cfg.API.RetryAttempts,
		CallbackURL:            cfg.API.CallbackURL,
		UserAgent:              cfg.API.UserAgent,
		SessionID:              cfg.Workflow.SessionID,
		EnableAutoOCR:          cfg.Workflow.AutoOCR,
		EnableFaceVerification: cfg.Workflow.FaceVerification,
		EnablePersistence:      cfg.Workflow.Persistence,
		Debug:                  cfg.Workflow.Debug,
		Auth: domain.Credentials{
			APIKey:       cfg.Auth.APIKey,
			TenantID:     cfg.Auth.TenantID,
			UserID:       cfg.Auth.UserID,
			SessionToken: cfg.Auth.SessionToken,
		},
	}
}

func logMetrics(ctx context.Context, log *slog.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.DebugContext(ctx, "failed to gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		log.DebugContext(ctx, "metric", "name", mf.GetName(), "series", len(mf.GetMetric()))
	}
}
