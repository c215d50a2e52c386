package service

import (
	"context"
	"sort"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"go.uber.org/zap"
)

// ListCredentials: дедуплицированный список credential по всем найденным таблицам,
// свежие сверху, не больше credentialLimit записей.
func (s *DashboardService) ListCredentials(ctx context.Context) ([]domain.CredentialSummary, error) {
	tables, err := s.discovery.DiscoverTables(ctx)
	if err != nil {
		s.logger.Error("table discovery failed", zap.Error(err))
		return nil, err
	}
	if len(tables) == 0 {
		return make([]domain.CredentialSummary, 0), nil
	}

	rows, err := s.repo.CredentialRows(ctx, tables)
	if err != nil {
		s.logger.Error("credential query failed", zap.Int("tables", len(tables)), zap.Error(err))
		return nil, err
	}

	return mergeCredentials(rows, s.credentialLimit), nil
}

// mergeCredentials: appKey берется первый непустой в порядке таблиц, lastSeenAt равен максимуму updated
// (null, если ни в одной таблице его нет). Сортировка: lastSeenAt desc nulls last, затем id asc.
func mergeCredentials(rows []domain.CredentialRow, limit int) []domain.CredentialSummary {
	ordered := make([]domain.CredentialRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	index := make(map[string]int, len(ordered))
	out := make([]domain.CredentialSummary, 0)

	for _, row := range ordered {
		i, seen := index[row.CredentialID]
		if !seen {
			i = len(out)
			index[row.CredentialID] = i
			out = append(out, domain.CredentialSummary{CredentialID: row.CredentialID})
		}
		c := &out[i]

		if c.AppKey == nil && row.AppKey != nil {
			key := *row.AppKey
			c.AppKey = &key
		}
		if row.UpdatedAt != nil {
			ts := row.UpdatedAt.UTC()
			if c.LastSeenAt == nil || ts.After(*c.LastSeenAt) {
				c.LastSeenAt = &ts
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastSeenAt, out[j].LastSeenAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CredentialID < out[j].CredentialID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
