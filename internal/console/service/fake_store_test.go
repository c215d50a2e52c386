package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
)

// activityRow: синтетическая строка синхронизированной таблицы.
type activityRow struct {
	credentialID string
	created      time.Time
	sent         *time.Time
	incoming     *bool
	appKey       *string
	updated      *time.Time
}

// fakeStore вычисляет те же условия, что и SQL: credential, время >= since, фильтр направления.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string][]activityRow
	flags  map[string]domain.SourceTable

	failCount   error
	failTrend   error
	failTables  error
	failCreds   error
	queries     atomic.Int32
	footprintQs atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables: make(map[string][]activityRow),
		flags:  make(map[string]domain.SourceTable),
	}
}

func (f *fakeStore) addTable(name string, hasAppKey, hasUpdated bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[name]; !ok {
		f.tables[name] = nil
	}
	f.flags[name] = domain.SourceTable{Name: name, HasAppKey: hasAppKey, HasUpdated: hasUpdated}
}

func (f *fakeStore) add(table string, rows ...activityRow) {
	f.addTable(table, f.flags[table].HasAppKey, f.flags[table].HasUpdated)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], rows...)
}

func eventTime(src domain.TableSource, r activityRow) time.Time {
	if src.TimeColumn == "sent" && r.sent != nil {
		return *r.sent
	}
	return r.created
}

func matches(src domain.TableSource, r activityRow, credentialID string, since time.Time) bool {
	if r.credentialID != credentialID {
		return false
	}
	if eventTime(src, r).Before(since) {
		return false
	}
	if src.Filter == domain.FilterOutbound && r.incoming != nil && *r.incoming {
		return false
	}
	return true
}

func (f *fakeStore) CountRows(_ context.Context, src domain.TableSource, credentialID string, since time.Time) (int64, error) {
	f.queries.Add(1)
	if f.failCount != nil {
		return 0, f.failCount
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, r := range f.tables[src.Table] {
		if matches(src, r, credentialID, since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DailyCounts(_ context.Context, sources []domain.TableSource, credentialID string, since time.Time) ([]domain.DailyCount, error) {
	f.queries.Add(1)
	if f.failTrend != nil {
		return nil, f.failTrend
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	byDay := make(map[time.Time]int64)
	for _, src := range sources {
		for _, r := range f.tables[src.Table] {
			if matches(src, r, credentialID, since) {
				byDay[eventTime(src, r).UTC().Truncate(24*time.Hour)]++
			}
		}
	}

	out := make([]domain.DailyCount, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, domain.DailyCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (f *fakeStore) CountByTable(_ context.Context, tables []domain.SourceTable, credentialID string) ([]domain.SourceCount, error) {
	f.queries.Add(1)
	f.footprintQs.Add(1)
	if f.failCount != nil {
		return nil, f.failCount
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// намеренно без фильтра и сортировки: сервис обязан сделать это сам
	out := make([]domain.SourceCount, 0, len(tables))
	for _, t := range tables {
		var n int64
		for _, r := range f.tables[t.Name] {
			if r.credentialID == credentialID {
				n++
			}
		}
		out = append(out, domain.SourceCount{Table: t.Name, Value: n})
	}
	return out, nil
}

func (f *fakeStore) CredentialRows(_ context.Context, tables []domain.SourceTable) ([]domain.CredentialRow, error) {
	f.queries.Add(1)
	if f.failCreds != nil {
		return nil, f.failCreds
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.CredentialRow, 0)
	for rank, t := range tables {
		perCred := make(map[string]*domain.CredentialRow)
		order := make([]string, 0)
		for _, r := range f.tables[t.Name] {
			if r.credentialID == "" {
				continue
			}
			row, ok := perCred[r.credentialID]
			if !ok {
				row = &domain.CredentialRow{Rank: rank, CredentialID: r.credentialID}
				perCred[r.credentialID] = row
				order = append(order, r.credentialID)
			}
			if t.HasAppKey && r.appKey != nil && (row.AppKey == nil || *r.appKey > *row.AppKey) {
				row.AppKey = r.appKey
			}
			if t.HasUpdated && r.updated != nil && (row.UpdatedAt == nil || r.updated.After(*row.UpdatedAt)) {
				row.UpdatedAt = r.updated
			}
		}
		sort.Strings(order)
		for _, id := range order {
			out = append(out, *perCred[id])
		}
	}
	return out, nil
}

func (f *fakeStore) DiscoverTables(context.Context) ([]domain.SourceTable, error) {
	f.queries.Add(1)
	if f.failTables != nil {
		return nil, f.failTables
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.SourceTable, 0, len(f.flags))
	for _, t := range f.flags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func ptr[T any](v T) *T { return &v }
