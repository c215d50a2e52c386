package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ThrottleError: апстрим попросил подождать (429 + Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// HTTPError неуспешный ответ CRM API.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed (%d): %s", e.Method, e.Path, e.Status, e.Body)
}

// PayloadError: тело запроса не сериализуется. Повтор даст тот же результат.
type PayloadError struct {
	Path string
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("encode %s payload: %v", e.Path, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// IsRetryable: сетевые ошибки, 429 и 5xx повторяем.
// Остальные 4xx, ошибки сериализации и истекший/отмененный контекст не повторяем.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pErr *PayloadError
	if errors.As(err, &pErr) {
		return false
	}
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	var hErr *HTTPError
	if errors.As(err, &hErr) {
		return hErr.Status >= http.StatusInternalServerError
	}
	return true
}

// isRequestFault: ошибка на нашей стороне, апстрим тут ни при чем.
// Такие ошибки не считаются отказами для circuit breaker. Таймаут вызова считается.
func isRequestFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var pErr *PayloadError
	if errors.As(err, &pErr) {
		return true
	}
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return false
	}
	var hErr *HTTPError
	if errors.As(err, &hErr) {
		return hErr.Status < http.StatusInternalServerError
	}
	return false
}

func isThrottled(err error) bool {
	var tErr *ThrottleError
	return errors.As(err, &tErr)
}
