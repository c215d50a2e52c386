package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
)

func TestBuildCountQuery(t *testing.T) {
	calls := domain.TableSource{Table: "rollout_calls", TimeColumn: "created", Filter: domain.FilterOutbound}

	q, err := buildCountQuery("public", "credentialId", calls)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*)::bigint FROM "public"."rollout_calls" WHERE "credentialId" = $1 AND "created" >= $2 AND COALESCE("isIncoming", FALSE) = FALSE`,
		q)

	people := domain.TableSource{Table: "rollout_people", TimeColumn: "created"}
	q, err = buildCountQuery("public", "credentialId", people)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q, `"created" >= $2 AND TRUE`), q)
}

func TestBuildCountQuery_RejectsUnsafeIdentifier(t *testing.T) {
	_, err := buildCountQuery("public", "credentialId", domain.TableSource{Table: `x"; DROP TABLE y; --`, TimeColumn: "created"})
	require.Error(t, err)
}

func TestBuildTrendQuery_CompositeUsesFallbackTime(t *testing.T) {
	r := domain.DefaultMetrics()
	contacts, _ := r.Lookup("contactsMade")

	q, err := buildTrendQuery("public", "credentialId", r.Sources(contacts))
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(q, " UNION ALL "))
	assert.Contains(t, q, `DATE_TRUNC('day', COALESCE("sent", "created"))::timestamptz`)
	assert.Contains(t, q, `FROM "public"."rollout_email_messages"`)
	assert.True(t, strings.HasSuffix(q, "GROUP BY day ORDER BY day"))
	assert.NotContains(t, q, "$3", "only credential and window start are bound")
}

func TestBuildTrendQuery_NoSources(t *testing.T) {
	_, err := buildTrendQuery("public", "credentialId", nil)
	require.Error(t, err)
}

func TestBuildFootprintQuery(t *testing.T) {
	tables := []domain.SourceTable{{Name: "rollout_calls"}, {Name: "rollout_people"}}

	q, args, err := buildFootprintQuery("public", "credentialId", tables, "cred-1")
	require.NoError(t, err)

	assert.Equal(t, []any{"cred-1", "rollout_calls", "rollout_people"}, args)
	assert.Contains(t, q, `SELECT $2::text AS table_name, COUNT(*)::bigint AS value FROM "public"."rollout_calls" WHERE "credentialId" = $1`)
	assert.Contains(t, q, `SELECT $3::text AS table_name`)
	assert.True(t, strings.HasSuffix(q, "WHERE value > 0 ORDER BY value DESC, table_name ASC"))
}

func TestBuildCredentialQuery_OptionalColumns(t *testing.T) {
	tables := []domain.SourceTable{
		{Name: "rollout_people", HasAppKey: true, HasUpdated: true},
		{Name: "rollout_calls"},
	}

	q, err := buildCredentialQuery("public", "credentialId", tables)
	require.NoError(t, err)

	branches := strings.Split(q, " UNION ALL ")
	require.Len(t, branches, 2)
	assert.Contains(t, branches[0], `0::int AS rank`)
	assert.Contains(t, branches[0], `MAX("appKey"::text) AS app_key`)
	assert.Contains(t, branches[0], `MAX("updated")::timestamptz AS updated_at`)
	assert.Contains(t, branches[1], `1::int AS rank`)
	assert.Contains(t, branches[1], `NULL::text AS app_key`)
	assert.Contains(t, branches[1], `NULL::timestamptz AS updated_at`)
	assert.Contains(t, branches[1], `WHERE "credentialId" IS NOT NULL`)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `rollout\_%`, likePrefix("rollout_"))
	assert.Equal(t, `a\%b\\c%`, likePrefix(`a%b\c`))
}

func TestTableNamePattern(t *testing.T) {
	p := tableNamePattern("rollout_")
	assert.True(t, p.MatchString("rollout_calls"))
	assert.False(t, p.MatchString("rollout_"))
	assert.False(t, p.MatchString("rollout_calls-old"))
	assert.False(t, p.MatchString("other_calls"))
}
