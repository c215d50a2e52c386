package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
)

// CountRows считает total одной single-table метрики за окно. Нет строк, значит 0, а не ошибка.
func (r *ActivityRepo) CountRows(ctx context.Context, src domain.TableSource, credentialID string, since time.Time) (_ int64, err error) {
	start := time.Now()
	defer func() { r.observe("count", start, err) }()

	query, err := buildCountQuery(r.opts.Schema, r.opts.CredentialColumn, src)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := r.pool.QueryRow(ctx, query, credentialID, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", src.Table, err)
	}
	return n, nil
}

// DailyCounts: разреженный тренд по одному или нескольким источникам, по возрастанию дня.
func (r *ActivityRepo) DailyCounts(ctx context.Context, sources []domain.TableSource, credentialID string, since time.Time) (_ []domain.DailyCount, err error) {
	start := time.Now()
	defer func() { r.observe("trend", start, err) }()

	query, err := buildTrendQuery(r.opts.Schema, r.opts.CredentialColumn, sources)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, credentialID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: daily counts: %w", err)
	}
	defer rows.Close()

	points := make([]domain.DailyCount, 0)
	for rows.Next() {
		var p domain.DailyCount
		if err := rows.Scan(&p.Day, &p.Count); err != nil {
			return nil, fmt.Errorf("postgres: scan daily count: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: daily counts: %w", err)
	}

	return points, nil
}

// CountByTable считает footprint credential одним запросом. Пустой список таблиц в базу не ходит.
func (r *ActivityRepo) CountByTable(ctx context.Context, tables []domain.SourceTable, credentialID string) (_ []domain.SourceCount, err error) {
	if len(tables) == 0 {
		return make([]domain.SourceCount, 0), nil
	}

	start := time.Now()
	defer func() { r.observe("footprint", start, err) }()

	query, args, err := buildFootprintQuery(r.opts.Schema, r.opts.CredentialColumn, tables, credentialID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: source footprint: %w", err)
	}
	defer rows.Close()

	counts := make([]domain.SourceCount, 0)
	for rows.Next() {
		var c domain.SourceCount
		if err := rows.Scan(&c.Table, &c.Value); err != nil {
			return nil, fmt.Errorf("postgres: scan source count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: source footprint: %w", err)
	}

	return counts, nil
}

// CredentialRows credential по каждой таблице отдельно; слияние делает сервис.
func (r *ActivityRepo) CredentialRows(ctx context.Context, tables []domain.SourceTable) (_ []domain.CredentialRow, err error) {
	if len(tables) == 0 {
		return make([]domain.CredentialRow, 0), nil
	}

	start := time.Now()
	defer func() { r.observe("credentials", start, err) }()

	query, err := buildCredentialQuery(r.opts.Schema, r.opts.CredentialColumn, tables)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list credentials: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CredentialRow, 0)
	for rows.Next() {
		var c domain.CredentialRow
		if err := rows.Scan(&c.Rank, &c.CredentialID, &c.AppKey, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list credentials: %w", err)
	}

	return out, nil
}
