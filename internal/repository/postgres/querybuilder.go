package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
)

// Все имена таблиц и колонок проходят allow-list (domain.ValidIdentifier)
// и квотируются через pgx.Identifier. Значения (credential, дата): только параметрами.

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func qualified(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func checkSource(src domain.TableSource) error {
	for _, ident := range []string{src.Table, src.TimeColumn} {
		if !domain.ValidIdentifier(ident) {
			return fmt.Errorf("postgres: invalid identifier %q", ident)
		}
	}
	if src.FallbackTimeColumn != "" && !domain.ValidIdentifier(src.FallbackTimeColumn) {
		return fmt.Errorf("postgres: invalid identifier %q", src.FallbackTimeColumn)
	}
	return nil
}

// timeExpr: "sent" либо COALESCE("sent", "created").
func timeExpr(src domain.TableSource) string {
	if src.FallbackTimeColumn == "" {
		return quoteIdent(src.TimeColumn)
	}
	return fmt.Sprintf("COALESCE(%s, %s)", quoteIdent(src.TimeColumn), quoteIdent(src.FallbackTimeColumn))
}

// filterExpr: отсутствующий признак направления считается исходящим.
func filterExpr(f domain.RowFilter) string {
	switch f {
	case domain.FilterOutbound:
		return `COALESCE("isIncoming", FALSE) = FALSE`
	default:
		return "TRUE"
	}
}

// sourceWhere задает общее условие для total и trend ($1 credential, $2 начало окна).
func sourceWhere(src domain.TableSource, credCol string) string {
	return fmt.Sprintf("%s = $1 AND %s >= $2 AND %s", quoteIdent(credCol), timeExpr(src), filterExpr(src.Filter))
}

func buildCountQuery(schema, credCol string, src domain.TableSource) (string, error) {
	if err := checkSource(src); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT COUNT(*)::bigint FROM %s WHERE %s",
		qualified(schema, src.Table), sourceWhere(src, credCol)), nil
}

// buildTrendQuery: посуточные счетчики всех источников объединяются и суммируются по дню.
// Для одной таблицы это тот же запрос с одной веткой UNION.
func buildTrendQuery(schema, credCol string, sources []domain.TableSource) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("postgres: trend query without sources")
	}

	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		if err := checkSource(src); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf(
			"SELECT DATE_TRUNC('day', %s)::timestamptz AS day, COUNT(*)::bigint AS value FROM %s WHERE %s GROUP BY 1",
			timeExpr(src), qualified(schema, src.Table), sourceWhere(src, credCol)))
	}

	return "WITH daily AS (" + strings.Join(parts, " UNION ALL ") + ") " +
		"SELECT day, SUM(value)::bigint AS value FROM daily GROUP BY day ORDER BY day", nil
}

// buildFootprintQuery: один round trip на все таблицы.
// $1: credential, имена таблиц в выдаче передаются параметрами $2..$N+1.
func buildFootprintQuery(schema, credCol string, tables []domain.SourceTable, credentialID string) (string, []any, error) {
	parts := make([]string, 0, len(tables))
	args := make([]any, 0, len(tables)+1)
	args = append(args, credentialID)

	for i, t := range tables {
		if !domain.ValidIdentifier(t.Name) {
			return "", nil, fmt.Errorf("postgres: invalid table %q", t.Name)
		}
		args = append(args, t.Name)
		parts = append(parts, fmt.Sprintf("SELECT $%d::text AS table_name, COUNT(*)::bigint AS value FROM %s WHERE %s = $1",
			i+2, qualified(schema, t.Name), quoteIdent(credCol)))
	}

	query := "SELECT table_name, value FROM (" + strings.Join(parts, " UNION ALL ") + ") footprint " +
		"WHERE value > 0 ORDER BY value DESC, table_name ASC"
	return query, args, nil
}

// buildCredentialQuery: по строке на (таблица, credential). Отсутствующие колонки заменяются NULL.
func buildCredentialQuery(schema, credCol string, tables []domain.SourceTable) (string, error) {
	parts := make([]string, 0, len(tables))
	cred := quoteIdent(credCol)

	for i, t := range tables {
		if !domain.ValidIdentifier(t.Name) {
			return "", fmt.Errorf("postgres: invalid table %q", t.Name)
		}
		appKey := "NULL::text"
		if t.HasAppKey {
			appKey = `MAX("appKey"::text)`
		}
		updated := "NULL::timestamptz"
		if t.HasUpdated {
			updated = `MAX("updated")::timestamptz`
		}
		parts = append(parts, fmt.Sprintf(
			"SELECT %d::int AS rank, %s::text AS credential_id, %s AS app_key, %s AS updated_at FROM %s WHERE %s IS NOT NULL GROUP BY %s",
			i, cred, appKey, updated, qualified(schema, t.Name), cred, cred))
	}

	return strings.Join(parts, " UNION ALL ") + " ORDER BY rank, credential_id", nil
}

// likePrefix экранирует спецсимволы LIKE: rollout_ -> rollout\_%
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `_`, `\_`, `%`, `\%`)
	return r.Replace(prefix) + "%"
}
