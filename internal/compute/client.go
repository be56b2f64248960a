// Package compute is the client for the external computation/validation
// service.
//
// The service owns the ownership and dilution arithmetic. The client posts
// the full document and interprets the reply. Every failure (transport,
// non-2xx status, undecodable payload, open circuit) becomes one generic
// message for the user plus a *ServiceError for logs; the caller's document
// is never touched.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/captable/internal/model"
)

// GenericFailureMessage is surfaced to the user for every service failure.
const GenericFailureMessage = "The validation service could not be reached. Please try again later."

// ErrServiceUnavailable matches every *ServiceError via errors.Is.
var ErrServiceUnavailable = errors.New("compute: validation service unavailable")

// ServiceError describes a failed service call.
type ServiceError struct {
	Op         string // encode, request, status, decode or circuit
	StatusCode int    // set when Op is status
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("compute %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("compute %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrServiceUnavailable.
func (e *ServiceError) Is(target error) bool { return target == ErrServiceUnavailable }

// Result is the service verdict on a document.
type Result struct {
	Valid  bool     `json:"is_valid"`
	Errors []string `json:"validation_errors"`
}

// Config configures a Client.
type Config struct {
	BaseURL         string
	Timeout         time.Duration // per request; 0 means 10s
	BreakerFailures uint32        // consecutive failures that open the circuit; 0 means 3
	BreakerCooldown time.Duration // time the circuit stays open; 0 means 30s
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout is left as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRequestID sets the generator for X-Request-ID headers.
func WithRequestID(gen func() string) Option {
	return func(c *Client) { c.requestID = gen }
}

// Client calls the computation service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	group      singleflight.Group
	log        zerolog.Logger
	requestID  func() string
}

// New returns a client for the service at cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("compute: invalid service url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	c := &Client{
		baseURL:    base,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        zerolog.Nop(),
		requestID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "compute",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})
	return c, nil
}

// Check submits doc for validation. A reachable service answering
// is_valid=false yields its errors verbatim and a nil error. Any failure
// yields Result{Valid: false, Errors: [GenericFailureMessage]} together with
// a *ServiceError.
//
// Concurrent checks of identical documents share one request. The shared
// request runs detached from every caller's context, bounded by the
// configured timeout; a caller whose ctx ends stops waiting without
// affecting the others or the circuit breaker.
func (c *Client) Check(ctx context.Context, doc model.Document) (Result, error) {
	if err := ctx.Err(); err != nil {
		return c.fail(&ServiceError{Op: "request", Err: err})
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return c.fail(&ServiceError{Op: "encode", Err: err})
	}
	key, err := model.Fingerprint(doc)
	if err != nil {
		return c.fail(&ServiceError{Op: "encode", Err: err})
	}

	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.breaker.Execute(func() (any, error) {
			return c.post(callCtx, body)
		})
	})

	var call singleflight.Result
	select {
	case <-ctx.Done():
		return c.fail(&ServiceError{Op: "request", Err: ctx.Err()})
	case call = <-ch:
	}
	if call.Err != nil {
		var se *ServiceError
		if !errors.As(call.Err, &se) {
			se = &ServiceError{Op: "circuit", Err: call.Err}
		}
		return c.fail(se)
	}
	res := call.Val.(Result)
	c.log.Debug().Str("fingerprint", key).Bool("shared", call.Shared).Bool("valid", res.Valid).Msg("document checked")
	res.Errors = append([]string{}, res.Errors...)
	return res, nil
}

func (c *Client) fail(err *ServiceError) (Result, error) {
	c.log.Error().Err(err).Str("op", err.Op).Msg("validation service call failed")
	return Result{Valid: false, Errors: []string{GenericFailureMessage}}, err
}

func (c *Client) post(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return Result{}, &ServiceError{Op: "request", Err: err}
	}
	id := c.requestID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &ServiceError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, &ServiceError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("request %s: %s", id, strings.TrimSpace(string(snippet))),
		}
	}

	var payload struct {
		IsValid          *bool    `json:"is_valid"`
		ValidationErrors []string `json:"validation_errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, &ServiceError{Op: "decode", Err: err}
	}
	if payload.IsValid == nil {
		return Result{}, &ServiceError{Op: "decode", Err: errors.New("missing is_valid")}
	}
	return Result{Valid: *payload.IsValid, Errors: payload.ValidationErrors}, nil
}
