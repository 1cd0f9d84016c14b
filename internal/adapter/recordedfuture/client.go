// Package recordedfuture reads alerts from the Recorded Future Connect API.
package recordedfuture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/httpx"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

const DefaultBaseURL = "https://api.recordedfuture.com"

// DefaultSearchLimit is the number of alerts fetched per run.
const DefaultSearchLimit = 100

type Client struct {
	client  httpx.Doer
	baseURL string
	token   string
}

var _ ports.AlertSource = (*Client)(nil)

func NewClient(client httpx.Doer, baseURL, token string) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
	}
}

func (c *Client) Name() string {
	return "recorded-future"
}

type searchResponse struct {
	Data struct {
		Results []domain.AlertRef `json:"results"`
	} `json:"data"`
}

type lookupResponse struct {
	Data *domain.Alert `json:"data"`
}

// SearchAlerts returns the most recent alerts, newest first.
func (c *Client) SearchAlerts(ctx context.Context, limit int) ([]domain.AlertRef, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var data searchResponse
	if err := c.get(ctx, "/v2/alert/search?"+q.Encode(), &data); err != nil {
		return nil, fmt.Errorf("failed to search alerts: %w", err)
	}
	return data.Data.Results, nil
}

// LookupAlert returns the full detail of one alert. A detail without a rule
// is rejected: every alert the bridge handles is triggered by one.
func (c *Client) LookupAlert(ctx context.Context, id string) (*domain.Alert, error) {
	var data lookupResponse
	if err := c.get(ctx, "/v2/alert/"+url.PathEscape(id), &data); err != nil {
		return nil, fmt.Errorf("failed to lookup alert %s: %w", id, err)
	}
	if data.Data == nil {
		return nil, fmt.Errorf("alert %s: response has no data", id)
	}
	if data.Data.Rule == nil {
		return nil, fmt.Errorf("alert %s: %w", id, ErrMissingRule)
	}
	if data.Data.ID == "" {
		data.Data.ID = id
	}
	return data.Data, nil
}

// ErrMissingRule marks an alert detail without its triggering rule.
var ErrMissingRule = errors.New("alert detail has no rule")

func (c *Client) get(ctx context.Context, path string, v any) error {
	if c.token == "" {
		return fmt.Errorf("Recorded Future API token is missing")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-RFToken", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Recorded Future API error: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode Recorded Future json: %w", err)
	}
	return nil
}
