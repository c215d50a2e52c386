package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"go.uber.org/zap"
)

const discoverQuery = `
	SELECT table_name::text,
	       BOOL_OR(column_name = 'appKey')  AS has_app_key,
	       BOOL_OR(column_name = 'updated') AS has_updated
	FROM information_schema.columns
	WHERE table_schema = $1
	  AND table_name LIKE $2 ESCAPE '\'
	GROUP BY table_name
	HAVING BOOL_OR(column_name = $3)
	ORDER BY table_name::text COLLATE "C"`

// DiscoverTables находит таблицы с префиксом соглашения и колонкой credential.
// Пустой результат не ошибка. Имена вне allow-list пропускаются и в SQL не попадают.
func (r *ActivityRepo) DiscoverTables(ctx context.Context) (_ []domain.SourceTable, err error) {
	start := time.Now()
	defer func() { r.observe("discover", start, err) }()

	rows, err := r.pool.Query(ctx, discoverQuery, r.opts.Schema, likePrefix(r.opts.TablePrefix), r.opts.CredentialColumn)
	if err != nil {
		return nil, fmt.Errorf("postgres: discover tables: %w", err)
	}
	defer rows.Close()

	tables := make([]domain.SourceTable, 0)
	for rows.Next() {
		var t domain.SourceTable
		if err := rows.Scan(&t.Name, &t.HasAppKey, &t.HasUpdated); err != nil {
			return nil, fmt.Errorf("postgres: scan discovered table: %w", err)
		}
		if !r.tablePattern.MatchString(t.Name) {
			r.logger.Warn("skipping table with unsafe name", zap.String("table", t.Name))
			continue
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: discover tables: %w", err)
	}

	return tables, nil
}

// tableNamePattern: ^<prefix>[A-Za-z0-9_]+$
func tableNamePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + "[A-Za-z0-9_]+$")
}
