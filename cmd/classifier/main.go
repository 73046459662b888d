package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiotox-go/internal/classifier"
	"audiotox-go/internal/config"
	"audiotox-go/internal/logger"
	"audiotox-go/internal/server"
)

func main() {
	config.LoadDotEnv()

	log := logger.New()
	log.WithField("service", "audiotox-classifier").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.Configure(cfg.Environment, cfg.LogLevel)

	log.WithField("vectorizer_path", cfg.VectorizerPath).WithField("model_path", cfg.ModelPath).Info("loading artifacts")
	svc, err := classifier.Load(cfg.VectorizerPath, cfg.ModelPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load model artifacts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%s", cfg.ClassifierPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.WithRequestLog(log, classifier.NewHandler(svc, log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if err := server.Serve(ctx, srv, log); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
}
