package domain

import "github.com/golang-jwt/jwt/v5"

// RolloutClaims: claims токена интеграционной платформы.
// Платформа требует только iss (project key) и sub (user id).
type RolloutClaims struct {
	jwt.RegisteredClaims
}

type TokenResponse struct {
	Token string `json:"token"`
}

// ClientConfig то, что SPA получает при старте.
type ClientConfig struct {
	RolloutAPIBaseURL string `json:"rolloutApiBaseUrl"`
	RolloutAppKey     string `json:"rolloutAppKey"`
	DefaultUserID     string `json:"defaultUserId"`
}
