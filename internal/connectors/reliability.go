package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Poster: то, что умеет отправить JSON в CRM API.
type Poster interface {
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
}

type ReliabilitySettings struct {
	Name        string
	RPS         float64
	Burst       int
	Attempts    uint
	CallTimeout time.Duration
	MaxRetryGap time.Duration // потолок для Retry-After

	// RetryServerErrors включает повтор 5xx, сетевых ошибок и таймаутов.
	// Без него повторяется только 429: POST создает записи, и повтор после 5xx может создать дубль.
	RetryServerErrors bool
}

// ReliabilityWrapper rate limit -> circuit breaker -> retry с учетом Retry-After.
type ReliabilityWrapper struct {
	next     Poster
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	settings ReliabilitySettings
	metrics  *infra.Metrics
}

func NewReliabilityWrapper(next Poster, s ReliabilitySettings, metrics *infra.Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if s.Name == "" {
		s.Name = "fub-api"
	}
	if s.RPS <= 0 {
		s.RPS = 5
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	if s.Attempts == 0 {
		s.Attempts = 3
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = 10 * time.Second
	}
	if s.MaxRetryGap <= 0 {
		s.MaxRetryGap = 30 * time.Second
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	log := logger.Named("reliability")

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд: открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		// Ошибки запроса (4xx, сериализация, отмена): не поломка апстрима
		IsSuccessful: func(err error) bool {
			return err == nil || isRequestFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("connector", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			state := 0.0
			if to == gobreaker.StateOpen {
				state = 1
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(state)
		},
	})

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(s.RPS), s.Burst),
		settings: s,
		metrics:  metrics,
	}
}

func (w *ReliabilityWrapper) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var finalData json.RawMessage

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.settings.Attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(w.shouldRetry),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Апстрим сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return min(tErr.RetryAfter, w.settings.MaxRetryGap)
				}

				// В остальных случаях (сетевой лаг, 500-ка): стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.settings.CallTimeout)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Post(tCtx, path, body)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		w.metrics.UpstreamCalls.WithLabelValues(path, outcome(err)).Inc()
		return nil, err
	}

	w.metrics.UpstreamCalls.WithLabelValues(path, "ok").Inc()
	return cbResult.(json.RawMessage), nil
}

func (w *ReliabilityWrapper) shouldRetry(err error) bool {
	if isThrottled(err) {
		return true
	}
	return w.settings.RetryServerErrors && IsRetryable(err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case !isRequestFault(err):
		return "upstream_error"
	default:
		return "rejected"
	}
}
