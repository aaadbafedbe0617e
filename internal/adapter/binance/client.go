package binance

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"investly/internal/domain"
)

const (
	defaultBaseURL = "https://api.binance.com"
	apiKeyHeader   = "X-MBX-APIKEY"
)

// Config holds the exchange connection settings
type Config struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client issues public and signed requests against the Binance REST API
type Client struct {
	http    *resty.Client
	signer  *Signer
	apiKey  string
	limiter *rate.Limiter
	now     func() time.Time
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// NewClient creates a new Binance client
func NewClient(cfg Config) (*Client, error) {
	signer, err := NewSigner(cfg.APISecret)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindConfiguration, "binance API key is required", nil)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseURL)
	httpClient.SetTimeout(timeout)

	return &Client{
		http:    httpClient,
		signer:  signer,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		now:     time.Now,
	}, nil
}

// SetClock overrides the local clock used for request timestamps
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// ServerTimeOffset returns serverTime - localTime in milliseconds.
// Any failure yields 0 so callers proceed unsynced.
func (c *Client) ServerTimeOffset(ctx context.Context) int64 {
	var payload struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.Public(ctx, "/api/v3/time", nil, &payload); err != nil {
		log.Printf("[WARN] Binance server time unavailable, using local clock: %v", err)
		return 0
	}
	if payload.ServerTime <= 0 {
		log.Println("[WARN] Binance server time missing from response, using local clock")
		return 0
	}
	return payload.ServerTime - c.now().UnixMilli()
}

// Public performs an unsigned GET
func (c *Client) Public(ctx context.Context, path string, params url.Values, out any) error {
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, target, false, out)
}

// Signed performs a request carrying a skew-corrected timestamp and an
// HMAC signature over the full query string
func (c *Client) Signed(ctx context.Context, method, path string, params url.Values, out any) error {
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}

	offset := c.ServerTimeOffset(ctx)
	query.Set("timestamp", strconv.FormatInt(c.now().UnixMilli()+offset, 10))

	raw := query.Encode()
	raw += "&signature=" + c.signer.Sign(raw)

	return c.do(ctx, method, path, path+"?"+raw, true, out)
}

func (c *Client) do(ctx context.Context, method, path, target string, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.NewError(domain.KindNetworkFailure, fmt.Sprintf("binance %s %s: rate limiter", method, path), err)
	}

	req := c.http.R().SetContext(ctx)
	if signed {
		req.SetHeader(apiKeyHeader, c.apiKey)
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return domain.NewError(domain.KindNetworkFailure, fmt.Sprintf("binance %s %s", method, path), err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		msg := strings.TrimSpace(resp.String())
		var apiErr binanceError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Msg != "" {
			msg = fmt.Sprintf("code=%d msg=%s", apiErr.Code, apiErr.Msg)
		}
		return &domain.Error{
			Kind:       domain.KindProviderRejected,
			HTTPStatus: resp.StatusCode(),
			Message:    fmt.Sprintf("binance %s %s: %s", method, path, msg),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return domain.NewError(domain.KindProviderRejected, fmt.Sprintf("decode binance %s response", path), err)
	}
	return nil
}
