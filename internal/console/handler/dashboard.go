package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"go.uber.org/zap"
)

// DashboardService Описываем, что нам нужно от сервиса
type DashboardService interface {
	GetDashboardSummary(ctx context.Context, req domain.SummaryRequest) (*domain.DashboardSummary, error)
	ListCredentials(ctx context.Context) ([]domain.CredentialSummary, error)
}

type DashboardHandler struct {
	service       DashboardService
	defaultMetric string
	logger        *zap.Logger
}

func NewDashboardHandler(s DashboardService, defaultMetric string, logger *zap.Logger) *DashboardHandler {
	if defaultMetric == "" {
		defaultMetric = domain.DefaultMetricKey
	}
	return &DashboardHandler{
		service:       s,
		defaultMetric: defaultMetric,
		logger:        logger.Named("dashboard-handler"),
	}
}

// Summary GET /api/dashboard/summary?credentialId=&rangeDays=&metric=
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	credentialID := strings.TrimSpace(q.Get("credentialId"))
	if credentialID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "credentialId is required"})
		return
	}

	metric := q.Get("metric")
	if metric == "" {
		metric = h.defaultMetric
	}

	// rangeDays и metric не валидируются: сервис нормализует их сам
	summary, err := h.service.GetDashboardSummary(r.Context(), domain.SummaryRequest{
		CredentialID: credentialID,
		MetricKey:    metric,
		RangeDays:    q.Get("rangeDays"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Credentials GET /api/credentials
func (h *DashboardHandler) Credentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.service.ListCredentials(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}
