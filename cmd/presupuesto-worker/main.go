package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"presupuesto/internal/amqp"
	"presupuesto/internal/cli"
	gsheet "presupuesto/internal/sheets/google"
	"presupuesto/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting presupuesto-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.SheetsExportEnabled() {
		logger.Error("Worker requires a sheet target - set GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	repo := cli.NewRepository(logger, cfg)
	defer repo.Close()

	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	exportWorker := worker.NewExportWorker(repo, sheetsClient)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Full sweep at startup to pick up anything saved while the worker
	// was down.
	if err := exportWorker.ExportAll(ctx); err != nil {
		logger.Error("Startup export sweep failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			return amqpClient.ConsumeSnapshotSaved(gctx, func(msg *amqp.SnapshotSavedMessage) error {
				return exportWorker.HandleSnapshotSaved(gctx, msg)
			})
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic export only")
	}

	g.Go(func() error {
		return exportWorker.RunReconciliation(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
