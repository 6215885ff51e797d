package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tester-box/internal/metrics"
	"tester-box/internal/model"
	"tester-box/internal/transport"
)

// =============================================================================
// STOREFRONT API GATEWAY
// =============================================================================
//
// Every catalog and cart operation is one GraphQL POST to
//   https://{store}/api/{version}/graphql.json
// authenticated with a public Storefront access token.
//
// Failure shape:
//   - transport, read, or decode failures  → model.KindTransport
//   - a top-level "errors" array           → model.KindServiceReported
//     (checked before the HTTP status: Shopify returns 200 with errors)
//
// Single attempt per call. Read-only queries may opt into a revalidation
// window; identical queries inside the window are served from memory.
// =============================================================================

const (
	accessTokenHeader = "X-Shopify-Storefront-Access-Token"
	userAgent         = "tester-box/1.0"

	// maxResponseBytes caps a single GraphQL response body.
	maxResponseBytes = 8 << 20
)

// ClientConfig holds gateway settings.
type ClientConfig struct {
	StoreDomain string // e.g. "acme.myshopify.com"
	AccessToken string // Storefront API public access token
	APIVersion  string // e.g. "2024-04"

	// Endpoint overrides the derived GraphQL URL (tests, proxies).
	Endpoint string

	HTTPClient *http.Client
	ChromeTLS  bool
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// CacheEntries bounds the revalidation cache (0 = DefaultCacheEntries).
	CacheEntries int
}

// Client is the Storefront GraphQL gateway.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics

	cache *responseCache
	group singleflight.Group
}

// NewClient creates a Storefront API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		domain := normalizeDomain(cfg.StoreDomain)
		if domain == "" {
			return nil, fmt.Errorf("store domain is required")
		}
		if cfg.APIVersion == "" {
			return nil, fmt.Errorf("API version is required")
		}
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", domain, cfg.APIVersion)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("storefront access token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewClient(transport.Config{
			ChromeTLS: cfg.ChromeTLS,
			UserAgent: userAgent,
		})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		endpoint:    endpoint,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		logger:      logger,
		metrics:     cfg.Metrics,
		cache:       newResponseCache(cfg.CacheEntries),
	}, nil
}

// normalizeDomain strips scheme and trailing slashes from a shop domain.
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimSuffix(domain, "/")
}

// graphQLRequest is the POST body.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphQLResponse is the response envelope.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// Execute runs a GraphQL document and returns its data payload.
// revalidate > 0 allows a cached response up to that age.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, revalidate time.Duration) (json.RawMessage, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	op := operationName(query)

	if revalidate <= 0 {
		return c.fetch(ctx, op, query, variables)
	}

	key, err := cacheKey(query, variables)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	if data, ok := c.cache.get(key); ok {
		c.metrics.CacheHit()
		return data, nil
	}
	c.metrics.CacheMiss()

	// The shared fetch is detached from any one caller; each caller stops
	// waiting on its own context only. The HTTP client timeout bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		data, err := c.fetch(shared, op, query, variables)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, data, revalidate)
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, model.NewTransportError(ctx.Err())
	}
}

// decode runs Execute and unmarshals the data payload into out.
func (c *Client) decode(ctx context.Context, query string, variables map[string]any, revalidate time.Duration, out any) error {
	data, err := c.Execute(ctx, query, variables, revalidate)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return c.fail(ctx, operationName(query), model.NewTransportError(fmt.Errorf("decoding data: %w", err)))
	}
	return nil
}

// fetch performs one uncached round trip.
func (c *Client) fetch(ctx context.Context, op, query string, variables map[string]any) (json.RawMessage, error) {
	start := time.Now()

	data, err := c.roundTrip(ctx, query, variables)
	if err != nil {
		c.metrics.ObserveUpstream(op, model.KindOf(err).String(), time.Since(start))
		return nil, c.fail(ctx, op, err)
	}

	c.metrics.ObserveUpstream(op, "ok", time.Since(start))
	c.logger.DebugContext(ctx, "storefront request",
		slog.String("operation", op),
		slog.Duration("duration", time.Since(start)),
	)
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, model.NewTransportError(fmt.Errorf("reading response: %w", err))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, model.NewTransportError(fmt.Errorf("status %d: parsing response: %w", resp.StatusCode, err))
	}

	if len(envelope.Errors) > 0 {
		return nil, model.NewServiceReportedError(envelope.Errors[0].Message)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.NewTransportError(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, model.NewTransportError(errors.New("response carried no data"))
	}

	return envelope.Data, nil
}

// fail logs a gateway failure once and returns err unchanged.
func (c *Client) fail(ctx context.Context, op string, err error) error {
	c.logger.ErrorContext(ctx, "storefront request failed",
		slog.String("operation", op),
		slog.String("kind", model.KindOf(err).String()),
		slog.String("error", err.Error()),
	)
	return err
}

var operationPattern = regexp.MustCompile(`^\s*(?:query|mutation)\s+(\w+)`)

// operationName extracts the named operation from a document for logs and
// metric labels. Anonymous documents report "anonymous".
func operationName(query string) string {
	m := operationPattern.FindStringSubmatch(query)
	if m == nil {
		return "anonymous"
	}
	return m[1]
}
