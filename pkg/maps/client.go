// Package maps wraps the external geocoding and places provider.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/metrics"
)

// API names reported to observers and metrics
const (
	APIGeocoding    = "Geocoding API"
	APINearbySearch = "Places API - Nearby Search"
	APIPlaceDetails = "Places API - Place Details"
)

// Call describes one finished provider request
type Call struct {
	APIName    string
	Endpoint   string
	Params     map[string]string // API key removed
	StatusCode int               // 0 when the request never got a response
	Latency    time.Duration
	Timestamp  time.Time
	Err        error
}

// CallObserver is notified after every provider request
type CallObserver interface {
	ObserveCall(ctx context.Context, call Call)
}

// ClientConfig configures a provider client
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   CallObserver
	Metrics    *metrics.Metrics
	Logger     logger.Logger
}

// Client performs authenticated GET requests against the provider
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	observer CallObserver
	metrics  *metrics.Metrics
	logger   logger.Logger
}

// NewClient creates a provider client. A zero Timeout defaults to 30s.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		logger:   logger.OrDefault(cfg.Logger).With("component", "maps"),
	}
}

// getJSON issues GET {base}{path}?params&key and decodes the JSON body into out.
// Non-2xx responses are errors.
func (c *Client) getJSON(ctx context.Context, apiName, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("key", c.apiKey)

	start := time.Now()
	call := Call{
		APIName:   apiName,
		Endpoint:  endpoint,
		Params:    flatten(params),
		Timestamp: start,
	}
	defer func() {
		call.Latency = time.Since(start)
		c.metrics.RecordMapsCall(apiName, call.StatusCode, call.Latency)
		if c.observer != nil {
			c.observer.ObserveCall(ctx, call)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		call.Err = err
		return fmt.Errorf("failed to build %s request: %w", apiName, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		call.Err = err
		return fmt.Errorf("%s request failed: %w", apiName, err)
	}
	defer resp.Body.Close()

	call.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		call.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return fmt.Errorf("%s returned status %d", apiName, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		call.Err = err
		return fmt.Errorf("failed to decode %s response: %w", apiName, err)
	}
	return nil
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if k == "key" || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}
