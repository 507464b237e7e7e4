package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/aeroimpact/internal/metrics"
)

const (
	// DefaultTokenURL is the OpenSky OAuth2 token endpoint.
	DefaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

	// Refresh before actual expiry to avoid edge-case failures.
	tokenSafetyMargin = 30 * time.Second

	// Used when the provider omits expires_in.
	defaultTokenTTL = 1800 * time.Second

	defaultTokenTimeout = 10 * time.Second
)

// tokenResponse mirrors the JSON from the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"` // seconds
	TokenType   string `json:"token_type"`
}

// bearerCredential is replaced as a whole, never updated in place.
type bearerCredential struct {
	token     string
	expiresAt time.Time
}

// TokenOption configures a TokenCache.
type TokenOption func(*TokenCache)

// WithTokenURL overrides the token endpoint (useful for testing).
func WithTokenURL(u string) TokenOption {
	return func(tc *TokenCache) { tc.tokenURL = u }
}

// WithTokenHTTPClient sets the HTTP client used for exchanges.
func WithTokenHTTPClient(hc *http.Client) TokenOption {
	return func(tc *TokenCache) { tc.httpClient = hc }
}

// WithTokenTimeout bounds a single exchange.
func WithTokenTimeout(d time.Duration) TokenOption {
	return func(tc *TokenCache) {
		if d > 0 {
			tc.timeout = d
		}
	}
}

// WithTokenMetrics records exchanges into m.
func WithTokenMetrics(m *metrics.Metrics) TokenOption {
	return func(tc *TokenCache) {
		if m != nil {
			tc.metrics = m
		}
	}
}

// TokenCache holds one bearer credential for the client-credentials flow.
// The mutex is held across the exchange, so concurrent callers that find the
// cache empty wait for a single exchange instead of racing their own.
type TokenCache struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	timeout      time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time // injectable for deterministic tests

	mu   sync.Mutex
	cred *bearerCredential
}

// NewTokenCache creates a token cache for the given client credentials.
// With an empty id or secret the cache is unconfigured and Token returns "".
func NewTokenCache(clientID, clientSecret string, opts ...TokenOption) *TokenCache {
	tc := &TokenCache{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     DefaultTokenURL,
		httpClient:   &http.Client{},
		timeout:      defaultTokenTimeout,
		metrics:      metrics.New(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Configured reports whether client credentials are present.
func (tc *TokenCache) Configured() bool {
	return tc != nil && tc.clientID != "" && tc.clientSecret != ""
}

// Token returns a valid access token, exchanging credentials only when the
// cached one is absent or expired. An empty token with a nil error means no
// credentials are configured and the caller should proceed unauthenticated.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	if !tc.Configured() {
		return "", nil
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := tc.now()
	if tc.cred != nil && now.Before(tc.cred.expiresAt) {
		return tc.cred.token, nil
	}

	resp, err := tc.exchange(ctx)
	if err != nil {
		tc.metrics.TokenFailures.Add(1)
		return "", fmt.Errorf("%w: %w", ErrCredentialExchange, err)
	}
	tc.metrics.TokenExchanges.Add(1)

	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	tc.cred = &bearerCredential{
		token:     resp.AccessToken,
		expiresAt: now.Add(ttl - tokenSafetyMargin),
	}
	slog.Debug("telemetry: obtained access token", "expires_at", tc.cred.expiresAt)

	return tc.cred.token, nil
}

// Invalidate drops the cached credential if it is still the rejected token,
// so the next Token call exchanges again. A token another caller already
// replaced is left alone.
func (tc *TokenCache) Invalidate(rejected string) {
	if tc == nil {
		return
	}
	tc.mu.Lock()
	if tc.cred != nil && tc.cred.token == rejected {
		tc.cred = nil
	}
	tc.mu.Unlock()
}

// exchange performs the client-credentials grant.
func (tc *TokenCache) exchange(ctx context.Context) (*tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()

	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {tc.clientID},
		"client_secret": {tc.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.tokenURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("token request failed (status %d): %s", resp.StatusCode, string(body))
	}

	var tokResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokResp); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tokResp.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	return &tokResp, nil
}
