package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"go.uber.org/zap"
)

// Интеграционные тесты идут только при заданном DASHBOARD_TEST_DATABASE_URL.
// Каждый тест создает изолированную схему и удаляет ее в cleanup.
func newTestRepo(t *testing.T) (*ActivityRepo, *pgxpool.Pool, string) {
	t.Helper()

	dsn := os.Getenv("DASHBOARD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DASHBOARD_TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, infra.DatabaseConfig{URL: dsn, MaxConns: 4})
	require.NoError(t, err)

	schema := "dash_test_" + uuid.NewString()[:8]
	_, err = pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", quoteIdent(schema)))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", quoteIdent(schema)))
		pool.Close()
	})

	repo, err := NewActivityRepo(pool, Options{
		Schema:           schema,
		TablePrefix:      "rollout_",
		CredentialColumn: "credentialId",
	}, nil, zap.NewNop())
	require.NoError(t, err)

	return repo, pool, schema
}

func exec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	_, err := pool.Exec(context.Background(), sql, args...)
	require.NoError(t, err)
}

func TestIntegration_AggregationQueries(t *testing.T) {
	repo, pool, schema := newTestRepo(t)
	ctx := context.Background()
	s := quoteIdent(schema)

	exec(t, pool, fmt.Sprintf(`CREATE TABLE %s.rollout_calls ("credentialId" text, "created" timestamptz, "isIncoming" boolean, "appKey" text, "updated" timestamptz)`, s))
	exec(t, pool, fmt.Sprintf(`CREATE TABLE %s.rollout_text_messages ("credentialId" text, "created" timestamptz, "sent" timestamptz, "isIncoming" boolean)`, s))
	exec(t, pool, fmt.Sprintf(`CREATE TABLE %s.rollout_notes ("credentialId" text, "created" timestamptz)`, s))
	exec(t, pool, fmt.Sprintf(`CREATE TABLE %s.unrelated ("credentialId" text)`, s))

	now := time.Now().UTC()
	day := 24 * time.Hour
	for i := 0; i < 3; i++ {
		exec(t, pool, fmt.Sprintf(`INSERT INTO %s.rollout_calls VALUES ('cred-1', $1, NULL, 'app-a', $2)`, s), now.Add(-time.Duration(i)*day), now)
	}
	exec(t, pool, fmt.Sprintf(`INSERT INTO %s.rollout_calls VALUES ('cred-1', $1, TRUE, NULL, NULL)`, s), now)
	exec(t, pool, fmt.Sprintf(`INSERT INTO %s.rollout_text_messages VALUES ('cred-1', $1, NULL, FALSE)`, s), now.Add(-day))
	exec(t, pool, fmt.Sprintf(`INSERT INTO %s.rollout_text_messages VALUES ('cred-1', $1, $2, FALSE)`, s), now.Add(-30*day), now)
	exec(t, pool, fmt.Sprintf(`INSERT INTO %s.rollout_text_messages VALUES ('cred-2', $1, NULL, FALSE)`, s), now)

	tables, err := repo.DiscoverTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, domain.SourceTable{Name: "rollout_calls", HasAppKey: true, HasUpdated: true}, tables[0])
	assert.Equal(t, "rollout_notes", tables[1].Name)
	assert.Equal(t, "rollout_text_messages", tables[2].Name)

	since := now.Add(-7 * day)
	calls := domain.TableSource{Table: "rollout_calls", TimeColumn: "created", Filter: domain.FilterOutbound}
	texts := domain.TableSource{Table: "rollout_text_messages", TimeColumn: "sent", FallbackTimeColumn: "created", Filter: domain.FilterOutbound}

	n, err := repo.CountRows(ctx, calls, "cred-1", since)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n, "inbound call excluded")

	n, err = repo.CountRows(ctx, texts, "cred-1", since)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "sent overrides created")

	n, err = repo.CountRows(ctx, calls, "nobody", since)
	require.NoError(t, err)
	assert.Zero(t, n)

	points, err := repo.DailyCounts(ctx, []domain.TableSource{calls, texts}, "cred-1", since)
	require.NoError(t, err)
	var total int64
	for i, p := range points {
		total += p.Count
		assert.Equal(t, p.Day.UTC().Truncate(day), p.Day.UTC(), "day is truncated in UTC")
		if i > 0 {
			assert.True(t, p.Day.After(points[i-1].Day))
		}
	}
	assert.EqualValues(t, 5, total)

	footprint, err := repo.CountByTable(ctx, tables, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SourceCount{
		{Table: "rollout_calls", Value: 4},
		{Table: "rollout_text_messages", Value: 2},
	}, footprint)

	creds, err := repo.CredentialRows(ctx, tables)
	require.NoError(t, err)
	require.Len(t, creds, 3)
	require.NotNil(t, creds[0].AppKey)
	assert.Equal(t, "app-a", *creds[0].AppKey)
	assert.Equal(t, "cred-1", creds[0].CredentialID)
	assert.Nil(t, creds[1].AppKey)
	assert.Nil(t, creds[1].UpdatedAt)
}

func TestIntegration_DiscoverEmptySchema(t *testing.T) {
	repo, _, _ := newTestRepo(t)

	tables, err := repo.DiscoverTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)

	footprint, err := repo.CountByTable(context.Background(), tables, "cred-1")
	require.NoError(t, err)
	assert.Empty(t, footprint)
}
