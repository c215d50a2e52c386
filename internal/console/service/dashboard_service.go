package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TableDiscoverer находит синхронизированные таблицы (репозиторий или кэш поверх него).
type TableDiscoverer interface {
	DiscoverTables(ctx context.Context) ([]domain.SourceTable, error)
}

// ActivityRepository описывает требования к хранилищу CRM-активности
type ActivityRepository interface {
	CountRows(ctx context.Context, src domain.TableSource, credentialID string, since time.Time) (int64, error)
	DailyCounts(ctx context.Context, sources []domain.TableSource, credentialID string, since time.Time) ([]domain.DailyCount, error)
	CountByTable(ctx context.Context, tables []domain.SourceTable, credentialID string) ([]domain.SourceCount, error)
	CredentialRows(ctx context.Context, tables []domain.SourceTable) ([]domain.CredentialRow, error)
}

// DashboardService агрегирует KPI, тренд, footprint и список credential.
// Состояния между запросами не держит; все данные читаются заново.
type DashboardService struct {
	repo            ActivityRepository
	discovery       TableDiscoverer
	registry        *domain.MetricRegistry
	ranges          RangePolicy
	credentialLimit int
	now             func() time.Time
	logger          *zap.Logger
}

type DashboardOptions struct {
	Ranges          RangePolicy
	CredentialLimit int
	Now             func() time.Time // для тестов
}

func NewDashboardService(repo ActivityRepository, discovery TableDiscoverer, registry *domain.MetricRegistry, opts DashboardOptions, logger *zap.Logger) *DashboardService {
	if opts.Ranges == (RangePolicy{}) {
		opts.Ranges = DefaultRangePolicy
	}
	if opts.CredentialLimit <= 0 {
		opts.CredentialLimit = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if registry == nil {
		registry = domain.DefaultMetrics()
	}
	return &DashboardService{
		repo:            repo,
		discovery:       discovery,
		registry:        registry,
		ranges:          opts.Ranges,
		credentialLimit: opts.CredentialLimit,
		now:             opts.Now,
		logger:          logger.Named("dashboard-service"),
	}
}

// GetDashboardSummary собирает сводку по credential.
// Все подзапросы идут параллельно; ошибка любого из них отменяет остальные и валит весь вызов.
func (s *DashboardService) GetDashboardSummary(ctx context.Context, req domain.SummaryRequest) (*domain.DashboardSummary, error) {
	credentialID := strings.TrimSpace(req.CredentialID)
	if credentialID == "" {
		return nil, fmt.Errorf("%w: credentialId is required", domain.ErrInvalidInput)
	}

	days := s.ranges.Clamp(req.RangeDays)
	// границы окна отдаются клиенту с точностью до миллисекунд
	now := s.now().UTC().Truncate(time.Millisecond)
	since := WindowStart(now, days)
	selected := s.registry.Resolve(req.MetricKey)

	// Уникальные single-table источники: составная метрика не порождает повторных запросов
	defs := s.registry.All()
	sources := make([]domain.TableSource, 0, len(defs))
	slot := make(map[domain.TableSource]int, len(defs))
	for _, d := range defs {
		for _, src := range s.registry.Sources(d) {
			if _, ok := slot[src]; !ok {
				slot[src] = len(sources)
				sources = append(sources, src)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	counts := make([]int64, len(sources))
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			n, err := s.repo.CountRows(gctx, src, credentialID, since)
			if err != nil {
				return s.storeFailure("count", credentialID, err)
			}
			counts[i] = n
			return nil
		})
	}

	var sparse []domain.DailyCount
	g.Go(func() error {
		points, err := s.repo.DailyCounts(gctx, s.registry.Sources(selected), credentialID, since)
		if err != nil {
			return s.storeFailure("trend", credentialID, err)
		}
		sparse = points
		return nil
	})

	var footprint []domain.SourceCount
	g.Go(func() error {
		fp, err := s.computeSourceFootprint(gctx, credentialID)
		if err != nil {
			return s.storeFailure("footprint", credentialID, err)
		}
		footprint = fp
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Total составной метрики: сумма totals ее частей с их собственными условиями
	kpis := make([]domain.MetricValue, 0, len(defs))
	for _, d := range defs {
		var total int64
		for _, src := range s.registry.Sources(d) {
			total += counts[slot[src]]
		}
		kpis = append(kpis, domain.MetricValue{Key: d.Key, Label: d.Label, Value: total})
	}

	return &domain.DashboardSummary{
		CredentialID:     credentialID,
		RangeDays:        days,
		FromDate:         since,
		ToDate:           now,
		Metrics:          kpis,
		AvailableMetrics: s.registry.Descriptors(),
		Trend: domain.Trend{
			Key:   selected.Key,
			Label: selected.Label,
			Data:  FillDailyGaps(sparse, days, now),
		},
		Sources: footprint,
	}, nil
}

// computeSourceFootprint: без таблиц запрос не выполняется вовсе.
func (s *DashboardService) computeSourceFootprint(ctx context.Context, credentialID string) ([]domain.SourceCount, error) {
	tables, err := s.discovery.DiscoverTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return make([]domain.SourceCount, 0), nil
	}

	counts, err := s.repo.CountByTable(ctx, tables, credentialID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SourceCount, 0, len(counts))
	for _, c := range counts {
		if c.Value > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Table < out[j].Table
	})
	return out, nil
}

// storeFailure логирует ошибку хранилища один раз и возвращает ее без изменений.
// Отмена из-за ошибки соседней горутины не логируется повторно.
func (s *DashboardService) storeFailure(op, credentialID string, err error) error {
	if !errors.Is(err, context.Canceled) {
		s.logger.Error("store query failed",
			zap.String("op", op),
			zap.String("credential_id", credentialID),
			zap.Error(err))
	}
	return err
}
