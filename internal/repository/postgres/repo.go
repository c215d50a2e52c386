package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"go.uber.org/zap"
)

// NewPool открывает пул соединений и проверяет доступность базы.
// Сессии работают в UTC, чтобы DATE_TRUNC('day', ...) давал календарный день UTC.
func NewPool(ctx context.Context, cfg infra.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "crm-activity-dashboard"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctxPing, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return pool, nil
}

// Options: соглашение об именах синхронизированных таблиц.
type Options struct {
	Schema           string // public
	TablePrefix      string // rollout_
	CredentialColumn string // credentialId
}

func (o Options) validate() error {
	if !domain.ValidIdentifier(o.Schema) {
		return fmt.Errorf("postgres: invalid schema %q", o.Schema)
	}
	if !domain.ValidIdentifier(o.CredentialColumn) {
		return fmt.Errorf("postgres: invalid credential column %q", o.CredentialColumn)
	}
	if o.TablePrefix == "" || !domain.ValidIdentifier(o.TablePrefix) {
		return fmt.Errorf("postgres: invalid table prefix %q", o.TablePrefix)
	}
	return nil
}

// ActivityRepo read-only доступ к зеркалу CRM-записей.
// Соединение берется из пула на время одного запроса и возвращается на любом пути выхода.
type ActivityRepo struct {
	pool         *pgxpool.Pool
	opts         Options
	tablePattern *regexp.Regexp
	metrics      *infra.Metrics
	logger       *zap.Logger
}

func NewActivityRepo(pool *pgxpool.Pool, opts Options, metrics *infra.Metrics, logger *zap.Logger) (*ActivityRepo, error) {
	if pool == nil {
		return nil, errors.New("postgres: nil pool")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &ActivityRepo{
		pool:         pool,
		opts:         opts,
		tablePattern: tableNamePattern(opts.TablePrefix),
		metrics:      metrics,
		logger:       logger.Named("activity_repo"),
	}, nil
}

// observe пишет латентность запроса в гистограмму.
func (r *ActivityRepo) observe(query string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.metrics.QueryDuration.WithLabelValues(query, outcome).Observe(time.Since(start).Seconds())
}
