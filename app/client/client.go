// Package client implements the feed engine's data contracts against the
// reference backend's HTTP API.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/lysyi3m/event-feed/app/engine"
	"github.com/lysyi3m/event-feed/app/feed"
)

var (
	_ engine.OrganicSource      = (*Client)(nil)
	_ engine.BoostSource        = (*Client)(nil)
	_ engine.Mutations          = (*Client)(nil)
	_ engine.ImpressionRecorder = (*Client)(nil)
)

// HTTPClient allows injection for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sends the key as X-API-Key on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithUserID scopes viewer flags and mutations to a user.
func WithUserID(userID string) ClientOption {
	return func(c *Client) {
		c.userID = userID
	}
}

func WithPageSize(size int) ClientOption {
	return func(c *Client) {
		c.pageSize = size
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned HTTP %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	httpClient HTTPClient
	baseURL    string
	apiKey     string
	userID     string
	userAgent  string
	pageSize   int
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FetchOrganicPage(ctx context.Context, cursor feed.Cursor) (feed.Page, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", string(cursor))
	}
	if c.pageSize > 0 {
		query.Set("limit", strconv.Itoa(c.pageSize))
	}
	if c.userID != "" {
		query.Set("user_id", c.userID)
	}

	var page feed.Page
	if err := c.do(ctx, http.MethodGet, "/api/feed/organic", query, &page); err != nil {
		return feed.Page{}, fmt.Errorf("failed to fetch organic page: %w", err)
	}
	return page, nil
}

func (c *Client) FetchBoostRows(ctx context.Context, placement string, limit int, userID string) ([]feed.CampaignBoostRow, error) {
	query := url.Values{}
	query.Set("placement", placement)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if userID != "" {
		query.Set("user_id", userID)
	}

	var response struct {
		Rows []feed.CampaignBoostRow `json:"rows"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/feed/boosts", query, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch boost rows: %w", err)
	}
	return response.Rows, nil
}

func (c *Client) ToggleLike(ctx context.Context, itemID string) (engine.LikeResult, error) {
	var result engine.LikeResult
	if err := c.do(ctx, http.MethodPost, "/api/items/"+url.PathEscape(itemID)+"/like", c.userQuery(), &result); err != nil {
		return engine.LikeResult{}, fmt.Errorf("failed to toggle like: %w", err)
	}
	return result, nil
}

func (c *Client) ToggleSaved(ctx context.Context, itemID string) (bool, error) {
	var response struct {
		IsSaved bool `json:"is_saved"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/items/"+url.PathEscape(itemID)+"/save", c.userQuery(), &response); err != nil {
		return false, fmt.Errorf("failed to toggle save: %w", err)
	}
	return response.IsSaved, nil
}

func (c *Client) RecordImpression(ctx context.Context, campaignID, userID string) error {
	query := url.Values{}
	if userID != "" {
		query.Set("user_id", userID)
	}
	if err := c.do(ctx, http.MethodPost, "/api/boosts/"+url.PathEscape(campaignID)+"/impressions", query, nil); err != nil {
		return fmt.Errorf("failed to record impression: %w", err)
	}
	return nil
}

func (c *Client) userQuery() url.Values {
	query := url.Values{}
	if c.userID != "" {
		query.Set("user_id", c.userID)
	}
	return query
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
