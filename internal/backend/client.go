// Package backend is a typed client of the lottery backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func init() {
	// The backend expects amounts and prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = time.Minute

// maxBodySize caps response bodies read into memory.
const maxBodySize = 4 << 20

type tokenKey struct{}

// WithToken returns a context whose requests carry the bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Options configures a Client.
type Options struct {
	// Timeout of a single request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Transport is the base round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
	// Limiter throttles outbound requests when set.
	Limiter *rate.Limiter
	// OnUnauthorized is invoked with the request context whenever the
	// backend answers 401.
	OnUnauthorized func(ctx context.Context)

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Client calls the backend API.
type Client struct {
	base           *url.URL
	http           *http.Client
	limiter        *rate.Limiter
	onUnauthorized func(ctx context.Context)
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	var otelOpts []otelhttp.Option
	if opts.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
	}
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}

	return &Client{
		base: u,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport, otelOpts...),
		},
		limiter:        opts.Limiter,
		onUnauthorized: opts.OnUnauthorized,
	}, nil
}

// call is a single backend request description.
type call struct {
	method string
	path   string
	query  url.Values
	body   any
	// out receives the decoded JSON body when non-nil.
	out any
}

// do performs c and returns the raw response headers on success.
func (c *Client) do(ctx context.Context, rc call) (http.Header, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limit")
		}
	}

	// rc.path is already escaped; RawPath keeps escaped slashes intact.
	unescaped, err := url.PathUnescape(rc.path)
	if err != nil {
		return nil, errors.Wrap(err, "unescape path")
	}
	u := *c.base
	u.RawPath = c.base.EscapedPath() + rc.path
	u.Path = c.base.Path + unescaped
	if len(rc.query) > 0 {
		u.RawQuery = rc.query.Encode()
	}

	var body io.Reader
	if rc.body != nil {
		raw, err := json.Marshal(rc.body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", rc.method, rc.path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s %s", rc.method, rc.path)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		serr := newStatusError(rc.method, rc.path, resp.StatusCode, raw)
		if serr.Code == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		zctx.From(ctx).Debug("Backend request failed",
			zap.String("method", rc.method),
			zap.String("path", rc.path),
			zap.Int("status", serr.Code),
			zap.String("message", serr.Message),
		)
		return nil, serr
	}

	if rc.out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, rc.out); err != nil {
			return nil, errors.Wrapf(err, "decode %s %s", rc.method, rc.path)
		}
	}
	return resp.Header, nil
}

// Ping checks that the backend answers HTTP at all. Any response, including
// an error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/management/health", http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "ping backend")
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Errorf("backend unhealthy: %s", resp.Status)
	}
	return nil
}

func pathEscape(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
