package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/xela07ax/crm-activity-dashboard/internal/connectors"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"github.com/xela07ax/crm-activity-dashboard/internal/seed"
)

// appVersion задается при сборке через -ldflags="-X main.appVersion=..."
var appVersion = "undefined"

var (
	// batch: номер пачки персон; неизвестный номер засевает пачку 1
	batch = cli.IntFlag{
		Name:  "batch",
		Usage: "persona `batch` to seed (1 or 2)",
		Value: 1,
	}
	// logLevel перекрывает logger.level из конфига
	logLevel = cli.StringFlag{
		Name:  "log-level",
		Usage: "logger `level`: debug, info, warn, error",
	}

	errSeedFailures = errors.New("some personas failed to seed")
)

func main() {
	app := cli.NewApp()
	app.Name = "persona seeder"
	app.Version = appVersion
	app.Usage = "Creates a batch of synthetic CRM personas with calls, texts, emails, tasks and appointments"
	app.Flags = []cli.Flag{
		batch,
		logLevel,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	if lvl := c.GlobalString(logLevel.Name); lvl != "" {
		cfg.Logger.Level = lvl
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connectors.NewFUBClient(connectors.FUBConfig{
		BaseURL:    cfg.Seed.BaseURL,
		APIKey:     cfg.Seed.APIKey,
		XSystem:    cfg.Seed.XSystem,
		XSystemKey: cfg.Seed.XSystemKey,
		Timeout:    cfg.Seed.Timeout,
	})
	if err != nil {
		return err
	}

	// Оборачиваем в Reliability (rate limit, Circuit Breaker, Retries)
	api := connectors.NewReliabilityWrapper(client, connectors.ReliabilitySettings{
		Name: "fub-api",
		RPS:  cfg.Seed.RPS,
	}, nil, logger)

	n := c.GlobalInt(batch.Name)
	logger.Info("seeding personas", zap.Int("batch", n), zap.String("version", appVersion))

	summary, err := seed.NewSeeder(api, cfg.Seed.XSystem, logger).Run(ctx, n)
	if summary != nil {
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return errSeedFailures
	}
	return nil
}
