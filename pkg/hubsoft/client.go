// Package hubsoft provides a client for the HubSoft ticketing integration API.
package hubsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/resilience"
)

// Client defines the HubSoft operations used for payout runs.
type Client interface {
	// FetchOrders pages through closed work orders matching q.
	FetchOrders(ctx context.Context, q OrdersQuery) ([]model.OperationalRecord, error)
}

// Credentials authenticate one provider account with the password grant.
type Credentials struct {
	Account      string
	APIBase      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	User         string
	Password     string
}

// Option configures the HubSoft client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithRetry sets the retry policy for token and page requests.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithPaging sets the page size and the maximum number of pages per query.
func WithPaging(itemsPerPage, maxPages int) Option {
	return func(c *httpClient) {
		if itemsPerPage > 0 {
			c.itemsPerPage = itemsPerPage
		}
		if maxPages > 0 {
			c.maxPages = maxPages
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type httpClient struct {
	creds        Credentials
	http         *http.Client
	limiter      *rate.Limiter
	retry        resilience.RetryConfig
	breaker      *resilience.Breaker
	itemsPerPage int
	maxPages     int

	mu    sync.Mutex
	token string
}

// NewClient creates a HubSoft client for one account.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds: creds,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:      rate.NewLimiter(2, 1),
		retry:        resilience.DefaultRetryConfig(),
		breaker:      resilience.NewBreaker(5, 30*time.Second),
		itemsPerPage: 100,
		maxPages:     200,
	}
	if c.creds.TokenURL == "" && c.creds.APIBase != "" {
		c.creds.TokenURL = strings.TrimRight(c.creds.APIBase, "/") + "/oauth/token"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// authenticate fetches a bearer token unless one is cached.
func (c *httpClient) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	payload, err := json.Marshal(tokenRequest{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		Username:     c.creds.User,
		Password:     c.creds.Password,
		GrantType:    "password",
	})
	if err != nil {
		return "", eris.Wrap(err, "hubsoft: marshal token request")
	}

	body, err := c.send(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.TokenURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "hubsoft: authenticate")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "hubsoft: unmarshal token response")
	}
	if tr.AccessToken == "" {
		return "", eris.Errorf("hubsoft: no access token returned for %s", c.creds.Account)
	}
	c.token = tr.AccessToken
	zap.L().Info("hubsoft: authenticated", zap.String("account", c.creds.Account))
	return c.token, nil
}

func (c *httpClient) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// errUnauthorized triggers one re-authentication in get.
var errUnauthorized = eris.New("hubsoft: unauthorized")

// send runs one request through the limiter, breaker and retry policy.
// Retryable statuses become TransientErrors.
func (c *httpClient) send(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.LogRetries("hubsoft", c.creds.Account)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "hubsoft: rate limiter")
			}
		}
		var body []byte
		err := c.breaker.Call(ctx, func(ctx context.Context) error {
			req, err := build(ctx)
			if err != nil {
				return eris.Wrap(err, "hubsoft: create request")
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return eris.Wrap(err, "hubsoft: request failed")
			}
			defer resp.Body.Close() //nolint:errcheck

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return resilience.Transient(eris.Wrap(err, "hubsoft: read response body"), resp.StatusCode)
			}
			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				return errUnauthorized
			case resilience.IsTransientHTTPStatus(resp.StatusCode):
				return resilience.Transient(eris.Errorf("hubsoft: status %d: %s", resp.StatusCode, truncate(body)), resp.StatusCode)
			case resp.StatusCode >= 300:
				return eris.Errorf("hubsoft: unexpected status %d: %s", resp.StatusCode, truncate(body))
			}
			return nil
		})
		return body, err
	})
}

// get performs an authenticated GET on path, re-authenticating once on 401.
func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := strings.TrimRight(c.creds.APIBase, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		body, err := c.send(ctx, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Accept", "application/json")
			return req, nil
		})
		if eris.Is(err, errUnauthorized) && attempt == 0 {
			c.resetToken()
			continue
		}
		return body, err
	}
	return nil, errUnauthorized
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
