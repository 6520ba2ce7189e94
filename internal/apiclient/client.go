// Package apiclient is the typed client for the VM management REST backend.
//
// Every response is classified into the vmdash error taxonomy before it
// reaches a caller: 401/422 or a token-error "msg" anywhere is AuthExpired,
// an envelope with success=false is StructuredFailure, and anything that
// cannot be sent or decoded is TransportFailure.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
)

const maxResponseBytes = 10 << 20

// TokenErrorMarkers are the substrings the backend puts in "msg" when the
// session token is unusable.
var TokenErrorMarkers = []string{
	"Subject must be a string",
	"Invalid token",
	"Token has expired",
	"Token decode error",
	"Invalid header padding",
}

// IsTokenError reports whether msg carries one of TokenErrorMarkers.
func IsTokenError(msg string) bool {
	if msg == "" {
		return false
	}
	for _, marker := range TokenErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout  time.Duration
	insecure bool
	wrap     []func(http.RoundTripper) http.RoundTripper
}

// WithTimeout bounds every request. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithInsecureSkipVerify disables TLS certificate checks.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) { o.insecure = skip }
}

// WithRoundTripper wraps the HTTP transport, e.g. for instrumentation.
// Wrappers apply in order, the last one outermost.
func WithRoundTripper(wrap func(http.RoundTripper) http.RoundTripper) Option {
	return func(o *options) { o.wrap = append(o.wrap, wrap) }
}

// New creates a Client for baseURL. jar holds the session cookies and may be nil.
func New(baseURL string, jar http.CookieJar, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if o.insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for lab backends
	}
	var rt http.RoundTripper = base
	for _, wrap := range o.wrap {
		rt = wrap(rt)
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Jar:       jar,
			Timeout:   o.timeout,
			Transport: rt,
		},
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// envelope is the common part of every backend answer.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Msg     string `json:"msg"`
}

// failureText picks the backend's own words for a failure.
func (e envelope) failureText() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	default:
		return e.Msg
	}
}

// request describes one backend call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// credentialCheck disables the 401/422 AuthExpired mapping, for login where
	// a 401 means wrong password rather than an expired session.
	credentialCheck bool
}

// do sends req, classifies the answer and decodes the body into out.
func (c *Client) do(ctx context.Context, req request, out any) (*envelope, error) {
	u, err := url.Parse(c.baseURL.String() + req.path)
	if err != nil {
		return nil, apperrors.Transport(err, "build request")
	}
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, apperrors.Transport(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, apperrors.Transport(err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Debug("Backend request failed",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Error(err),
		)
		return nil, apperrors.Transport(err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, statusTransport(err, "read response", resp.StatusCode)
	}

	logger.Debug("Backend request",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return classify(resp.StatusCode, raw, req.credentialCheck, out)
}

// classify maps a status and body onto the error taxonomy.
func classify(status int, raw []byte, credentialCheck bool, out any) (*envelope, error) {
	var env envelope
	parseErr := json.Unmarshal(raw, &env)

	if parseErr == nil && IsTokenError(env.Msg) {
		return nil, apperrors.AuthExpired(status, env.Msg)
	}
	if !credentialCheck && (status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity) {
		msg := env.Msg
		if msg == "" {
			msg = http.StatusText(status)
		}
		return nil, apperrors.AuthExpired(status, msg)
	}
	if parseErr != nil {
		return nil, statusTransport(parseErr, "decode response", status)
	}
	if env.Success != nil && !*env.Success {
		return nil, apperrors.Structured(status, env.failureText())
	}
	if status < 200 || status > 299 {
		msg := env.failureText()
		if msg == "" {
			msg = http.StatusText(status)
		}
		return nil, apperrors.Structured(status, msg)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, statusTransport(err, "decode response", status)
		}
	}
	return &env, nil
}

func statusTransport(err error, msg string, status int) *apperrors.AppError {
	appErr := apperrors.Transport(err, msg)
	appErr.HTTPStatus = status
	return appErr
}

func providerQuery(provider string) url.Values {
	if provider == "" {
		return nil
	}
	return url.Values{"provider": []string{provider}}
}
