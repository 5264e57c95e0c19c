package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"match-overlay/internal/backend"
	"match-overlay/internal/canvas"
	"match-overlay/internal/media"
	"match-overlay/internal/overlay"
	"match-overlay/internal/platform/config"
	"match-overlay/internal/platform/logger"
	"match-overlay/internal/platform/metrics"
	"match-overlay/internal/speech"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	cv, err := canvas.New(1, 1)
	if err != nil {
		log.Error("canvas init failed", "error", err)
		os.Exit(1)
	}

	var speaker overlay.Speaker = speech.NewNop(log)
	if cfg.TTSCommand != "" {
		cmd, err := speech.NewCommand(cfg.TTSCommand, log)
		if err != nil {
			log.Warn("speech disabled", "error", err)
		} else {
			speaker = cmd
		}
	}

	client := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout)
	met := metrics.New()
	viewer := overlay.NewViewer(overlay.Deps{
		Uploader: client,
		Toggler:  client,
		Dialer:   client,
		Media:    media.NewVideo(log),
		Canvas:   cv,
		Speaker:  speaker,
	}, overlay.Options{FPS: cfg.FPS, Lang: cfg.LangTag}, log, met)
	h := overlay.NewHandler(viewer, log, cfg.JPEGQuality)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log, "/frame.jpg", "/state"))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetCachedFrames(viewer.CachedFrames())
			met.SetMatchPhase(int(viewer.Phase()))
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("viewer starting",
		"port", cfg.Port,
		"backend_url", cfg.BackendURL,
		"fps", cfg.FPS,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, closing stream and draining connections")

	if err := viewer.Close(); err != nil {
		log.Warn("viewer close", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("viewer stopped")
}
