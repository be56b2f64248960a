package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/testutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	c, err := New(cfg, WithRequestID(testutil.NewFixedRequestIDs("req").Generate))
	require.NoError(t, err)
	return c, srv
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://nope"} {
		_, err := New(Config{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestCheckValid(t *testing.T) {
	var gotPath, gotID, gotType string
	var gotDoc map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.Header.Get("X-Request-ID")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotDoc)
		_, _ = w.Write([]byte(`{"is_valid": true, "validation_errors": []}`))
	}, Config{})

	res, err := c.Check(context.Background(), testutil.AcmeDocument())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)

	assert.Equal(t, "/validate", gotPath)
	assert.Equal(t, "req-1", gotID)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, model.SchemaVersion, gotDoc["schema_version"])
	assert.Len(t, gotDoc["rounds"], 2)
}

func TestCheckInvalidReturnsServiceErrorsVerbatim(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"is_valid": false, "validation_errors": ["Seed: shares exceed authorized", "Series A: price below seed"]}`))
	}, Config{})

	res, err := c.Check(context.Background(), testutil.AcmeDocument())
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"Seed: shares exceed authorized", "Series A: price below seed"}, res.Errors)
}

func TestCheckFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		op      string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			op: "status",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"is_valid": tru`))
			},
			op: "decode",
		},
		{
			name: "missing verdict",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"validation_errors": []}`))
			},
			op: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler, Config{})

			res, err := c.Check(context.Background(), testutil.AcmeDocument())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrServiceUnavailable))

			var se *ServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.op, se.Op)

			assert.False(t, res.Valid)
			assert.Equal(t, []string{GenericFailureMessage}, res.Errors)
		})
	}
}

func TestCheckStatusCodeRecorded(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Config{})

	_, err := c.Check(context.Background(), testutil.AcmeDocument())
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestCheckTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	require.NoError(t, err)

	res, err := c.Check(context.Background(), testutil.AcmeDocument())
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "request", se.Op)
	assert.Equal(t, []string{GenericFailureMessage}, res.Errors)
}

func TestCheckDoesNotMutateDocument(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}, Config{})

	doc := testutil.AcmeDocument()
	before := model.MustFingerprint(doc)
	_, _ = c.Check(context.Background(), doc)
	assert.Equal(t, before, model.MustFingerprint(doc))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}, Config{BreakerFailures: 2})

	ctx := context.Background()
	doc := testutil.AcmeDocument()
	for i := 0; i < 2; i++ {
		_, err := c.Check(ctx, doc)
		require.Error(t, err)
	}

	res, err := c.Check(ctx, doc)
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "circuit", se.Op)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, []string{GenericFailureMessage}, res.Errors)
	assert.Equal(t, int32(2), hits.Load(), "open circuit must not reach the service")
}

func TestCheckHonorsContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"is_valid": true}`))
	}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Check(ctx, testutil.AcmeDocument())
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "request", se.Op)
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingService answers every request with a valid verdict once release
// is called. started is closed when the first request arrives.
type blockingService struct {
	srv     *httptest.Server
	hits    atomic.Int32
	started chan struct{}
	release func()
}

func newBlockingService(t *testing.T) *blockingService {
	t.Helper()
	b := &blockingService{started: make(chan struct{})}
	gate := make(chan struct{})
	var once sync.Once
	b.release = func() { once.Do(func() { close(gate) }) }

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.hits.Add(1) == 1 {
			close(b.started)
		}
		<-gate
		_, _ = w.Write([]byte(`{"is_valid": true, "validation_errors": []}`))
	}))
	t.Cleanup(b.srv.Close)
	t.Cleanup(b.release)
	return b
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// joinWindow is how long concurrent callers get to join an in-flight check.
const joinWindow = 100 * time.Millisecond

func TestCheckSharesInFlightRequests(t *testing.T) {
	svc := newBlockingService(t)
	logs := &syncBuffer{}
	c, err := New(Config{BaseURL: svc.srv.URL}, WithLogger(zerolog.New(logs).Level(zerolog.DebugLevel)))
	require.NoError(t, err)

	const callers = 5
	doc := testutil.AcmeDocument()
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	check := func(i int) {
		defer wg.Done()
		results[i], errs[i] = c.Check(context.Background(), doc)
	}

	wg.Add(1)
	go check(0)
	<-svc.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go check(i)
	}
	time.Sleep(joinWindow)
	svc.release()
	wg.Wait()

	assert.Equal(t, int32(1), svc.hits.Load(), "identical documents must share one request")
	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Valid)
	}
	assert.Equal(t, callers, strings.Count(logs.String(), `"shared":true`))
}

func TestCheckCancelledCallerDoesNotFailSharedRequest(t *testing.T) {
	svc := newBlockingService(t)
	c, err := New(Config{BaseURL: svc.srv.URL, BreakerFailures: 1})
	require.NoError(t, err)
	doc := testutil.AcmeDocument()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Check(ctx, doc)
		firstErr <- err
	}()
	<-svc.started

	type outcome struct {
		res Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := c.Check(context.Background(), doc)
		second <- outcome{res, err}
	}()
	time.Sleep(joinWindow)

	cancel()
	err = <-firstErr
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	svc.release()
	got := <-second
	require.NoError(t, got.err)
	assert.True(t, got.res.Valid)
	assert.Equal(t, int32(1), svc.hits.Load())
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State(), "a caller giving up is not a service failure")
}
