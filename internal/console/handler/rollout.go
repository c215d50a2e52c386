package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"go.uber.org/zap"
)

type RolloutService interface {
	IssueToken(userID string) (*domain.TokenResponse, error)
	ClientConfig(ctx context.Context) (*domain.ClientConfig, error)
}

type RolloutHandler struct {
	service RolloutService
	logger  *zap.Logger
}

func NewRolloutHandler(s RolloutService, logger *zap.Logger) *RolloutHandler {
	return &RolloutHandler{service: s, logger: logger.Named("rollout-handler")}
}

// Token GET /api/rollout/token?userId=
func (h *RolloutHandler) Token(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.IssueToken(r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Config GET /api/config
func (h *RolloutHandler) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.ClientConfig(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Health GET /api/health: процесс жив; база не проверяется.
func Health(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "at": now().UTC()})
	}
}
