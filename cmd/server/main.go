package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/slide-narrator/internal/config"
	"github.com/lexiqai/slide-narrator/internal/events"
	"github.com/lexiqai/slide-narrator/internal/narrator"
	"github.com/lexiqai/slide-narrator/internal/observability"
	"github.com/lexiqai/slide-narrator/internal/tracker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("tts_provider", cfg.TTSProvider).
		Str("stt_provider", cfg.STTProvider).
		Str("qa_mode", cfg.QAMode).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Slide Narrator starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Notes are loaded once; any failure here is fatal.
	tr := tracker.New()
	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	notes, err := loadNotes(loadCtx, cfg, tr, logger)
	cancelLoad()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load speaker notes")
	}

	caps, err := buildCapabilities(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise voice capabilities")
	}

	policy, err := narrator.ParseQAPolicy(cfg.QAMode, cfg.QAFromIndex)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid Q&A policy")
	}
	scope, err := narrator.ParseContextScope(cfg.QAContextScope)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid Q&A context scope")
	}

	queue := events.NewQueue()
	orch := narrator.New(narrator.Dependencies{
		Events:   queue,
		Resolver: tr,
		Notes:    notes,
		Speaker:  caps.speaker,
		Listener: caps.listener,
		Answerer: caps.answerer,
		Cue:      caps.cue,
	}, narrator.Config{
		QAPolicy:              policy,
		MaxTurns:              cfg.QAMaxTurns,
		FirstListenTimeout:    cfg.FirstListenTimeout(),
		FollowUpListenTimeout: cfg.FollowUpListenTimeout(),
		ContextScope:          scope,
	}, logger)

	// Create HTTP server
	mux := http.NewServeMux()
	events.NewHandler(queue, logger).Register(mux)

	// Health check endpoint
	mux.HandleFunc("/healthz", observability.HealthCheckHandler())

	mux.HandleFunc("/ready", observability.ReadinessHandler(
		observability.HealthCheck{
			Name: "notes",
			Check: func(ctx context.Context) (bool, error) {
				return notes != nil, nil
			},
		},
		observability.HealthCheck{
			Name: "narrator",
			Check: func(ctx context.Context) (bool, error) {
				if !orch.Running() {
					return false, errors.New("narrator loop is not running")
				}
				return true, nil
			},
		},
	))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Long-lived connections (the /slide-events websocket) are not bounded by
	// the write timeout once hijacked.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var grpcHealth *observability.GRPCHealthServer
	if cfg.GRPCHealthPort != "" {
		grpcHealth = observability.NewGRPCHealthServer(logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/slide-change", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcHealth != nil {
		grpcHealth.SetServing(true)
		g.Go(func() error {
			return grpcHealth.Serve(cfg.GRPCHealthPort)
		})
	}

	g.Go(func() error {
		return orch.Run(gctx)
	})

	// Shutdown: stop accepting events first, then let the narrator finish
	// its current visit.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		if grpcHealth != nil {
			grpcHealth.SetServing(false)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}

		if grpcHealth != nil {
			grpcHealth.Stop()
		}
		queue.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Slide Narrator stopped with error")
	}

	logger.Info().Msg("Server exited gracefully")
}
