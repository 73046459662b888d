// Command evaluate scores a labeled comment dataset with the toxicity
// classifier and writes an xlsx report. With -normalized it also exports
// the normalized text the offline trainer consumes.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"audiotox-go/internal/actionable"
	"audiotox-go/internal/aggregator"
	"audiotox-go/internal/classifier"
	"audiotox-go/internal/classifyclient"
	"audiotox-go/internal/config"
	"audiotox-go/internal/dataset"
	"audiotox-go/internal/logger"
	"audiotox-go/internal/types"
)

type classifierAPI interface {
	Classify(ctx context.Context, text string) (types.Verdict, error)
}

func main() {
	config.LoadDotEnv()

	dataPath := flag.String("data", "train.xlsx", "labeled dataset (xlsx or csv) with comment_text and toxic columns")
	reportPath := flag.String("report", "evaluation.xlsx", "xlsx report output path")
	normalizedPath := flag.String("normalized", "", "optional normalized dataset output path (xlsx or csv)")
	remote := flag.Bool("remote", false, "score through the classification service at CLASSIFIER_URL instead of local artifacts")
	workers := flag.Int("workers", 4, "concurrent classification requests")
	retryFor := flag.Duration("retry", 30*time.Second, "how long to retry a comment when the service is unreachable")
	flag.Parse()

	log := logger.New()
	log.WithField("service", "audiotox-evaluate").Info("starting evaluation")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.Configure(cfg.Environment, cfg.LogLevel)

	comments, err := dataset.Load(*dataPath)
	if err != nil {
		log.WithError(err).Fatal("dataset load error")
	}
	log.WithField("dataset_path", *dataPath).WithField("rows", len(comments)).Info("dataset loaded")

	if *normalizedPath != "" {
		if err := dataset.WriteNormalized(*normalizedPath, comments); err != nil {
			log.WithError(err).Fatal("failed to write normalized dataset")
		}
		log.WithField("path", *normalizedPath).Info("normalized dataset written")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var api classifierAPI
	if *remote {
		client := classifyclient.New(cfg.ClassifierURL, cfg.ClassifierTimeout)
		if err := client.WaitReady(ctx, cfg.ClassifierWait); err != nil {
			log.WithError(err).Fatal("classifier not reachable")
		}
		api = client
	} else {
		svc, err := classifier.Load(cfg.VectorizerPath, cfg.ModelPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load model artifacts")
		}
		api = svc
	}

	scored := score(ctx, log, api, comments, *workers, *retryFor)
	metrics := aggregator.Aggregate(scored)
	log.WithFields(logrus.Fields{
		"total":     metrics.Total,
		"failed":    metrics.Failed,
		"accuracy":  metrics.Accuracy,
		"precision": metrics.Precision,
		"recall":    metrics.Recall,
		"f1":        metrics.F1,
	}).Info("evaluation complete")

	card := actionable.Generate(metrics)
	log.WithField("action", card.Action).WithField("impact", card.Impact).Info(card.Insight)

	if err := dataset.WriteReport(*reportPath, scored, metrics); err != nil {
		log.WithError(err).Fatal("failed to write report")
	}
	log.WithField("path", *reportPath).Info("report written")
}

// score classifies every comment. Retryable failures are retried with
// exponential backoff for up to retryFor; anything else is recorded on the
// row and scoring moves on.
func score(ctx context.Context, log *logger.Logger, api classifierAPI, comments []types.LabeledComment, workers int, retryFor time.Duration) []types.ScoredComment {
	out := make([]types.ScoredComment, len(comments))
	g, gctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, c := range comments {
		i, c := i, c // per-iteration copies (go 1.21 loop semantics)
		g.Go(func() error {
			out[i] = types.ScoredComment{LabeledComment: c}

			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = retryFor
			var verdict types.Verdict
			op := func() error {
				var err error
				verdict, err = api.Classify(gctx, c.Comment)
				if err != nil && !types.Retryable(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			if err := backoff.Retry(op, backoff.WithContext(bo, gctx)); err != nil {
				log.WithField("row", c.Row).WithError(err).Warn("comment not scored")
				out[i].Error = err.Error()
				return nil
			}
			out[i].Verdict = verdict
			return nil
		})
	}
	_ = g.Wait()
	return out
}
