package connectors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// FUBClient минимальный клиент Follow Up Boss REST API (только POST).
type FUBClient struct {
	baseURL    string
	auth       string
	xSystem    string
	xSystemKey string
	http       *http.Client
}

type FUBConfig struct {
	BaseURL    string
	APIKey     string
	XSystem    string
	XSystemKey string
	Timeout    time.Duration
}

func NewFUBClient(cfg FUBConfig) (*FUBClient, error) {
	if cfg.APIKey == "" || cfg.XSystem == "" || cfg.XSystemKey == "" {
		return nil, fmt.Errorf("missing required credentials: FUB_API_KEY, FOLLOW_UP_BOSS_X_SYSTEM, FOLLOW_UP_BOSS_X_SYSTEM_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.followupboss.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &FUBClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		// Basic-авторизация: API key как логин, пустой пароль
		auth:       "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		xSystem:    cfg.XSystem,
		xSystemKey: cfg.XSystemKey,
		http:       &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Post отправляет JSON и возвращает сырое тело ответа.
func (c *FUBClient) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &PayloadError{Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-System", c.xSystem)
	req.Header.Set("X-System-Key", c.xSystemKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	details := strings.TrimSpace(string(data))
	if len(details) > maxErrorBody {
		details = details[:maxErrorBody]
	}
	hErr := &HTTPError{Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: details}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ThrottleError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), Cause: hErr}
	}
	return nil, hErr
}

// parseRetryAfter понимает и секунды, и HTTP-дату. Без заголовка: 1s.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return time.Second
}
