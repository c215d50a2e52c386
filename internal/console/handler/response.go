package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError пишет тело ответа всегда как {"error": message}.
// Ошибки клиента -> 400, ошибки конфигурации и хранилища -> 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": trimKind(err, domain.ErrInvalidInput)})
	case errors.Is(err, domain.ErrConfig):
		logger.Error("configuration error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": trimKind(err, domain.ErrConfig)})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// trimKind убирает префикс sentinel-ошибки: "invalid input: credentialId is required" -> "credentialId is required"
func trimKind(err, kind error) string {
	msg := err.Error()
	if trimmed := strings.TrimPrefix(msg, kind.Error()+": "); trimmed != "" {
		return trimmed
	}
	return msg
}
