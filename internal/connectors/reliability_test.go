package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedPoster отдает ошибки из сценария по очереди, затем успех.
type scriptedPoster struct {
	calls  atomic.Int32
	script []error
}

func (p *scriptedPoster) Post(context.Context, string, any) (json.RawMessage, error) {
	n := int(p.calls.Add(1)) - 1
	if n < len(p.script) && p.script[n] != nil {
		return nil, p.script[n]
	}
	return json.RawMessage(`{"id":7}`), nil
}

func fastSettings() ReliabilitySettings {
	return ReliabilitySettings{RPS: 1000, Burst: 100, Attempts: 3, CallTimeout: time.Second, MaxRetryGap: 50 * time.Millisecond}
}

func TestReliability_RetriesServerErrors(t *testing.T) {
	p := &scriptedPoster{script: []error{
		&HTTPError{Status: http.StatusBadGateway},
		&ThrottleError{RetryAfter: time.Hour, Cause: errors.New("429")}, // зажимается MaxRetryGap
	}}
	s := fastSettings()
	s.RetryServerErrors = true
	w := NewReliabilityWrapper(p, s, nil, zap.NewNop())

	data, err := w.Post(context.Background(), "/people", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, string(data))
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestReliability_CreatesRetryOnlyThrottle(t *testing.T) {
	p := &scriptedPoster{script: []error{&HTTPError{Path: "/people", Status: http.StatusBadGateway}}}
	w := NewReliabilityWrapper(p, fastSettings(), nil, zap.NewNop())

	_, err := w.Post(context.Background(), "/people", nil)
	require.ErrorAs(t, err, new(*HTTPError))
	assert.EqualValues(t, 1, p.calls.Load(), "5xx after a create must not be replayed")

	p = &scriptedPoster{script: []error{errors.New("read tcp: connection reset by peer")}}
	w = NewReliabilityWrapper(p, fastSettings(), nil, zap.NewNop())
	_, err = w.Post(context.Background(), "/people", nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, p.calls.Load())

	p = &scriptedPoster{script: []error{&ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("429")}}}
	w = NewReliabilityWrapper(p, fastSettings(), nil, zap.NewNop())
	_, err = w.Post(context.Background(), "/people", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestReliability_DeterministicErrorsNotRetried(t *testing.T) {
	errs := []error{
		&PayloadError{Path: "/people", Err: errors.New("json: unsupported type: chan int")},
		context.Canceled,
		context.DeadlineExceeded,
	}
	for _, e := range errs {
		t.Run(e.Error(), func(t *testing.T) {
			script := make([]error, 10)
			for i := range script {
				script[i] = e
			}
			p := &scriptedPoster{script: script}
			s := fastSettings()
			s.RetryServerErrors = true
			w := NewReliabilityWrapper(p, s, nil, zap.NewNop())

			_, err := w.Post(context.Background(), "/people", nil)
			require.ErrorIs(t, err, e)
			assert.EqualValues(t, 1, p.calls.Load())
		})
	}
}

func TestReliability_PayloadErrorsDoNotTripBreaker(t *testing.T) {
	bad := &PayloadError{Path: "/calls", Err: errors.New("json: unsupported value: NaN")}
	script := make([]error, 10)
	for i := range script {
		script[i] = bad
	}
	p := &scriptedPoster{script: script}
	w := NewReliabilityWrapper(p, fastSettings(), nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := w.Post(context.Background(), "/calls", nil)
		require.ErrorAs(t, err, new(*PayloadError))
	}
	assert.EqualValues(t, 10, p.calls.Load())
}

func TestReliability_DoesNotRetryClientErrors(t *testing.T) {
	p := &scriptedPoster{script: []error{&HTTPError{Path: "/people", Status: http.StatusUnprocessableEntity, Body: "invalid"}}}
	w := NewReliabilityWrapper(p, fastSettings(), nil, zap.NewNop())

	_, err := w.Post(context.Background(), "/people", nil)
	var hErr *HTTPError
	require.True(t, errors.As(err, &hErr))
	assert.Equal(t, http.StatusUnprocessableEntity, hErr.Status)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestReliability_CircuitOpens(t *testing.T) {
	boom := &HTTPError{Status: http.StatusServiceUnavailable}
	script := make([]error, 20)
	for i := range script {
		script[i] = boom
	}
	p := &scriptedPoster{script: script}

	s := fastSettings()
	s.Attempts = 1
	w := NewReliabilityWrapper(p, s, nil, zap.NewNop())

	for i := 0; i < 6; i++ {
		_, err := w.Post(context.Background(), "/calls", nil)
		require.Error(t, err)
	}

	_, err := w.Post(context.Background(), "/calls", nil)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 6, p.calls.Load(), "open breaker does not reach upstream")
}

func TestReliability_ClientErrorsDoNotTripBreaker(t *testing.T) {
	bad := &HTTPError{Status: http.StatusBadRequest}
	script := make([]error, 10)
	for i := range script {
		script[i] = bad
	}
	p := &scriptedPoster{script: script}
	w := NewReliabilityWrapper(p, fastSettings(), nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := w.Post(context.Background(), "/tasks", nil)
		require.ErrorAs(t, err, new(*HTTPError))
	}
	assert.EqualValues(t, 10, p.calls.Load())
}

func TestReliability_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewReliabilityWrapper(&scriptedPoster{}, ReliabilitySettings{RPS: 1, Burst: 1}, nil, zap.NewNop())
	_, err := w.Post(ctx, "/notes", nil)
	require.Error(t, err)
}
