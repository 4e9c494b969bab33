package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Kite Connect REST API endpoint.
	DefaultBaseURL = "https://api.kite.trade"

	// DefaultLoginURL is the hosted login page users are redirected to.
	DefaultLoginURL = "https://kite.zerodha.com/connect/login"

	// kiteVersion is the API protocol version sent on every request.
	kiteVersion = "3"

	httpClientTimeout = 30 * time.Second

	statusSuccess = "success"
)

// Client provides access to the Kite Connect REST API.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	loginURL   string
	httpClient *http.Client
}

// NewClient creates a new Kite Connect client.
func NewClient(apiKey, apiSecret string) *Client {
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   DefaultBaseURL,
		loginURL:  DefaultLoginURL,
		httpClient: &http.Client{
			Timeout: httpClientTimeout,
		},
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// WithLoginURL overrides the hosted login URL. Used by tests.
func (c *Client) WithLoginURL(u string) *Client {
	c.loginURL = u
	return c
}

// LoginURL returns the hosted login URL for this application.
func (c *Client) LoginURL() string {
	return fmt.Sprintf("%s?v=%s&api_key=%s", c.loginURL, kiteVersion, url.QueryEscape(c.apiKey))
}

// ExchangeToken exchanges a one-time request token for an access token.
// The request is authenticated by the SHA-256 checksum over api key,
// request token and api secret.
func (c *Client) ExchangeToken(ctx context.Context, requestToken string) (*TokenSession, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", Checksum(c.apiKey, requestToken, c.apiSecret))

	data, err := c.do(ctx, http.MethodPost, "/session/token", "", form)
	if err != nil {
		return nil, err
	}

	var session TokenSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding token session: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("no access token in exchange response")
	}
	return &session, nil
}

// InvalidateToken revokes an access token on the broker's side.
func (c *Client) InvalidateToken(ctx context.Context, accessToken string) error {
	path := fmt.Sprintf("/session/token?api_key=%s&access_token=%s",
		url.QueryEscape(c.apiKey), url.QueryEscape(accessToken))
	_, err := c.do(ctx, http.MethodDelete, path, "", nil)
	return err
}

// Profile retrieves the user profile.
func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	data, err := c.do(ctx, http.MethodGet, "/user/profile", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &profile, nil
}

// Holdings retrieves all portfolio holdings.
func (c *Client) Holdings(ctx context.Context, accessToken string) ([]Holding, error) {
	data, err := c.do(ctx, http.MethodGet, "/portfolio/holdings", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var holdings []Holding
	if err := json.Unmarshal(data, &holdings); err != nil {
		return nil, fmt.Errorf("decoding holdings: %w", err)
	}
	return holdings, nil
}

// Margins retrieves margins for both segments.
func (c *Client) Margins(ctx context.Context, accessToken string) (*Margins, error) {
	data, err := c.do(ctx, http.MethodGet, "/user/margins", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var margins Margins
	if err := json.Unmarshal(data, &margins); err != nil {
		return nil, fmt.Errorf("decoding margins: %w", err)
	}
	return &margins, nil
}

// MarginsSegment retrieves margins for a single segment ("equity" or
// "commodity"). Unknown segments are rejected by the broker.
func (c *Client) MarginsSegment(ctx context.Context, accessToken, segment string) (*MarginSegment, error) {
	data, err := c.do(ctx, http.MethodGet, "/user/margins/"+url.PathEscape(segment), accessToken, nil)
	if err != nil {
		return nil, err
	}

	var seg MarginSegment
	if err := json.Unmarshal(data, &seg); err != nil {
		return nil, fmt.Errorf("decoding %s margins: %w", segment, err)
	}
	return &seg, nil
}

// do performs one API request and unwraps the response envelope.
// Any non-2xx status or non-success envelope becomes an *APIError.
func (c *Client) do(ctx context.Context, method, path, accessToken string, form url.Values) (json.RawMessage, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("X-Kite-Version", kiteVersion)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, accessToken))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Status != statusSuccess {
		message := env.Message
		if message == "" {
			message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			ErrorType:  env.ErrorType,
		}
	}

	return env.Data, nil
}
