package service

import (
	"context"
	"strings"

	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"go.uber.org/zap"
)

// TokenIssuer подписывает токен интеграционной платформы.
type TokenIssuer interface {
	IssueToken(userID string) (string, error)
}

// CredentialLister: источник fallback appKey для клиентского конфига.
type CredentialLister interface {
	ListCredentials(ctx context.Context) ([]domain.CredentialSummary, error)
}

type RolloutSettings struct {
	APIBaseURL    string
	AppKey        string
	DefaultUserID string
}

// RolloutService клей вокруг внешней платформы (токен и стартовый конфиг SPA).
type RolloutService struct {
	issuer      TokenIssuer
	credentials CredentialLister
	settings    RolloutSettings
	logger      *zap.Logger
}

func NewRolloutService(issuer TokenIssuer, credentials CredentialLister, settings RolloutSettings, logger *zap.Logger) *RolloutService {
	if settings.DefaultUserID == "" {
		settings.DefaultUserID = "user123"
	}
	return &RolloutService{
		issuer:      issuer,
		credentials: credentials,
		settings:    settings,
		logger:      logger.Named("rollout-service"),
	}
}

// IssueToken: пустой userID заменяется пользователем по умолчанию.
func (s *RolloutService) IssueToken(userID string) (*domain.TokenResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = s.settings.DefaultUserID
	}

	token, err := s.issuer.IssueToken(userID)
	if err != nil {
		s.logger.Error("token issuance failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &domain.TokenResponse{Token: token}, nil
}

// ClientConfig если appKey не задан в окружении, берется первый credential с непустым appKey.
func (s *RolloutService) ClientConfig(ctx context.Context) (*domain.ClientConfig, error) {
	cfg := &domain.ClientConfig{
		RolloutAPIBaseURL: s.settings.APIBaseURL,
		RolloutAppKey:     s.settings.AppKey,
		DefaultUserID:     s.settings.DefaultUserID,
	}
	if cfg.RolloutAppKey != "" {
		return cfg, nil
	}

	creds, err := s.credentials.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range creds {
		if c.AppKey != nil && *c.AppKey != "" {
			cfg.RolloutAppKey = *c.AppKey
			break
		}
	}
	return cfg, nil
}
