// Package shopapi talks to the shop's REST API: the signed-in cart, checkout,
// the product catalog and the current user.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/tracing"
)

const serviceName = "shop"

// HTTPDoer executes HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is the low level shop API client shared by the cart, order, catalog
// and auth adapters.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a shop API client rooted at baseURL.
func New(baseURL string, doer HTTPDoer, l *slog.Logger) *Client {
	if l == nil {
		l = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
		logger:  l,
		tracer:  tracing.Tracer("github.com/utafrali/storefront/internal/shopapi"),
	}
}

// call is one request to the shop API.
type call struct {
	op     string // span name suffix
	method string
	path   string
	token  string
	body   any
	out    any
}

// do sends c and decodes a 2xx answer into c.out. Any other answer is turned
// into an AppError by httpclient.ParseResponseError.
func (cl *Client) do(ctx context.Context, c call) error {
	ctx, span := cl.tracer.Start(ctx, "shopapi."+c.op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", c.method),
		attribute.String("shopapi.operation", c.op),
	)

	err := cl.send(ctx, span, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (cl *Client) send(ctx context.Context, span trace.Span, c call) error {
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", c.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, cl.baseURL+c.path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", c.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	tracing.InjectHTTP(ctx, req.Header)

	resp, err := cl.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call shop api %s: %w", c.op, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpclient.ParseResponseError(resp, serviceName)
		cl.logger.DebugContext(ctx, "shop api refused request",
			slog.String("operation", c.op),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if c.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(c.out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.op, err)
	}
	return nil
}
