package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/escriba-labs/escriba/internal/bus"
	"github.com/escriba-labs/escriba/internal/config"
	"github.com/escriba-labs/escriba/internal/httpapi"
	"github.com/escriba-labs/escriba/internal/natsserver"
	"github.com/escriba-labs/escriba/internal/session"
	"github.com/escriba-labs/escriba/internal/sessionstore"
	"github.com/escriba-labs/escriba/internal/transcribe"
)

// Runtime assembles the service: telemetry, optional bus, session
// store, transcriber backend, session manager and the HTTP surface.
type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		if busCfg.Embedded {
			busCfg.Servers = []string{fmt.Sprintf("nats://localhost:%d", busCfg.Port)}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
	}

	store, err := sessionstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	transcriber, err := transcribe.New(r.cfg.Transcriber)
	if err != nil {
		return fmt.Errorf("failed to build transcriber: %w", err)
	}

	manager := session.NewManager(r.cfg.Session, r.cfg.Transcriber, transcriber, busClient, store, r.logger)
	defer manager.Close()

	api := httpapi.New(manager, r.cfg.Outputs, r.logger, r.ready.Load)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("escriba started",
		slog.String("addr", addr),
		slog.String("transcriber", r.cfg.Transcriber.Mode),
		slog.String("model", r.cfg.Transcriber.Model))

	<-ctx.Done()
	r.logger.Info("escriba stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}
