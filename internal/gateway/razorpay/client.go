// Package razorpay implements the order payment gateway on top of the
// Razorpay Orders API.
package razorpay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ekagifts/storefront/internal/domain/order"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.razorpay.com"

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 1 << 20

// Compile-time check ensuring Client satisfies the order gateway interface.
var _ order.Gateway = (*Client)(nil)

// Config holds the client credentials and transport settings.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration

	// Optional providers for transport instrumentation.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("razorpay: status %d", e.StatusCode)
	}
	return fmt.Sprintf("razorpay: status %d: %s", e.StatusCode, e.Description)
}

// Client calls the Razorpay REST API.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}, nil
}

// KeyID returns the public key id handed to the checkout widget.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateOrder opens a payment order for the requested amount in paise.
func (c *Client) CreateOrder(ctx context.Context, req order.PaymentRequest) (*order.PaymentSession, error) {
	body := encodeOrderRequest(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}

	session, err := decodeOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if session.ID == "" {
		return nil, errors.New("decode order: missing id")
	}
	return session, nil
}

// ParseWebhook extracts the event type and order/payment ids from a webhook
// body. The signature must be checked by the caller.
func (c *Client) ParseWebhook(body []byte) (*order.WebhookEvent, error) {
	return decodeWebhook(body)
}
