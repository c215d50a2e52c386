package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
)

// Issuer подписывает токены интеграционной платформы общим секретом (HS512).
// Секрет и project key берутся из окружения; их отсутствие: ошибка конфигурации,
// которая всплывает только при выдаче токена, а не на старте.
type Issuer struct {
	secret     []byte
	projectKey string
	ttl        time.Duration
	now        func() time.Time
}

func NewIssuer(secret, projectKey string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		secret:     []byte(secret),
		projectKey: projectKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// IssueToken строит claims {iss: projectKey, sub: userID, iat, exp}.
func (i *Issuer) IssueToken(userID string) (string, error) {
	if len(i.secret) == 0 {
		return "", fmt.Errorf("%w: ROLLOUT_CLIENT_SECRET is required", domain.ErrConfig)
	}
	if i.projectKey == "" {
		return "", fmt.Errorf("%w: ROLLOUT_PROJECT_KEY (or ROLLOUT_CLIENT_ID) is required", domain.ErrConfig)
	}

	now := i.now().UTC()
	claims := domain.RolloutClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.projectKey,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
