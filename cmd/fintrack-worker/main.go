package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

var cfgFile string

func main() {
	cmd := &cobra.Command{
		Use:           "fintrack-worker",
		Short:         "Mirror stored transactions into a Google Sheets spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "optional YAML config file (keys match the environment variables)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		cli.Fatal(log.New(log.DefaultConfig()), "fintrack-worker failed", err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig(cfgFile)
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentWorker)
	logger.Info("Starting fintrack-worker")

	if !cfg.MirrorEnabled() {
		return errors.New("spreadsheet mirror disabled: set GOOGLE_SPREADSHEET_ID")
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer repo.Close()

	creds, err := cfg.ServiceAccountJSON()
	if err != nil {
		return err
	}
	sheetsClient, err := gsheet.New(cmd.Context(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: creds,
	}, logger)
	if err != nil {
		return fmt.Errorf("google sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	mirror := services.NewMirror(repo, sheetsClient, logger)
	mirrorWorker := worker.NewMirrorWorker(mirror, cfg.SyncBatchSize, logger)
	processor := services.NewMirrorProcessor(mirror, services.MirrorProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	}, logger)

	g, gctx := errgroup.WithContext(cmd.Context())
	ctx, done := cli.GracefulShutdown(gctx, logger, cfg.ShutdownGracetime, nil)

	if err := mirrorWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", log.FieldError, err)
	}
	g.Go(func() error { return processor.Run(ctx) })

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable; relying on the poll loop", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			g.Go(func() error {
				err := amqpClient.ConsumeTransactions(ctx, mirrorWorker.HandleEvent)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	} else {
		logger.Info("AMQP_URL not set; relying on the poll loop")
	}

	err = g.Wait()
	<-done
	logger.Info("Worker stopped")
	return err
}
