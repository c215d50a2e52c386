package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/xela07ax/crm-activity-dashboard/internal/cache"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
)

// appVersion задается при сборке через -ldflags="-X main.appVersion=..."
var appVersion = "undefined"

var (
	// schema и prefix перекрывают dashboard.schema / dashboard.table_prefix
	schema = cli.StringFlag{
		Name:  "schema",
		Usage: "source `schema` whose discovery entry is dropped",
	}
	prefix = cli.StringFlag{
		Name:  "prefix",
		Usage: "source table `prefix`",
	}
	timeout = cli.DurationFlag{
		Name:  "timeout",
		Usage: "redis call `timeout`",
		Value: 5 * time.Second,
	}

	errNoRedis = errors.New("redis.addr is not configured, nothing to invalidate")
)

func main() {
	app := cli.NewApp()
	app.Name = "cachectl"
	app.Version = appVersion
	app.Usage = "Maintenance commands for the dashboard discovery cache"
	app.Flags = []cli.Flag{
		schema,
		prefix,
		timeout,
	}
	app.Commands = []cli.Command{
		{
			Name:   "invalidate",
			Usage:  "Drop the shared discovery entry and tell every dashboard instance to forget its copy",
			Action: invalidate,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// invalidate вызывается после миграций схемы источника.
func invalidate(c *cli.Context) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errNoRedis
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	s, p := cfg.Dashboard.Schema, cfg.Dashboard.TablePrefix
	if v := c.GlobalString(schema.Name); v != "" {
		s = v
	}
	if v := c.GlobalString(prefix.Name); v != "" {
		p = v
	}
	key := infra.GetDiscoveryKey(s, p)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration(timeout.Name))
	defer cancel()

	if err := cache.PublishInvalidation(ctx, rdb, key); err != nil {
		return err
	}
	logger.Info("discovery cache invalidated", zap.String("key", key))
	return nil
}
