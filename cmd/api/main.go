package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiotox-go/internal/audio"
	"audiotox-go/internal/classifyclient"
	"audiotox-go/internal/config"
	"audiotox-go/internal/diagnostics"
	"audiotox-go/internal/logger"
	"audiotox-go/internal/media"
	"audiotox-go/internal/pipeline"
	"audiotox-go/internal/server"
	"audiotox-go/internal/transcription"
	"audiotox-go/internal/workspace"
)

func main() {
	config.LoadDotEnv() // loads .env

	log := logger.New()
	log.WithField("service", "audiotox-api").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.Configure(cfg.Environment, cfg.LogLevel)

	report := diagnostics.NewChecker().Run(cfg)
	report.Log(log.Component("diagnostics"))
	if report.HasFailures {
		log.Warn("startup diagnostics reported failures; affected runs will fail")
	}

	area := workspace.NewArea(cfg.WorkDir)
	if n, err := area.Sweep(); err != nil {
		log.WithError(err).Warn("failed to sweep stale runs")
	} else if n > 0 {
		log.WithField("removed", n).Info("swept stale runs")
	}

	transcriber, err := transcription.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to set up transcriber")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier := classifyclient.New(cfg.ClassifierURL, cfg.ClassifierTimeout)
	log.WithField("classifier_url", cfg.ClassifierURL).Info("waiting for classifier")
	if err := classifier.WaitReady(ctx, cfg.ClassifierWait); err != nil {
		log.WithError(err).Warn("classifier not ready; runs will fail until it is")
	}

	p := pipeline.New(pipeline.Options{
		Area:              area,
		Ingestor:          media.NewIngestor(cfg.MaxUploadBytes),
		Extractor:         audio.NewExtractor(cfg.FFmpegPath, cfg.FFprobePath, nil),
		Transcriber:       transcriber,
		Classifier:        classifier,
		ClassifierTimeout: cfg.ClassifierTimeout,
		Log:               log,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: server.New(server.Options{
			Runner:            p,
			MaxUploadBytes:    cfg.MaxUploadBytes,
			MaxConcurrentRuns: int64(cfg.MaxConcurrentRuns),
			RunTimeout:        cfg.RunTimeout,
			Log:               log,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.RunTimeout + time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	if err := server.Serve(ctx, srv, log); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
}
