// Package oura calls the Oura v2 usercollection API.
package oura

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	"github.com/JuhanV/Sleep-Game/internal/metrics"
)

// Collection endpoints.
const (
	EndpointDailySleep     = "daily_sleep"
	EndpointDailyReadiness = "daily_readiness"
	EndpointDailyActivity  = "daily_activity"
)

const (
	dayLayout    = "2006-01-02"
	maxBodyBytes = 4 << 20
	maxPages     = 10
)

// APIError reports a non-2xx response from the Oura API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oura %s: status=%d", e.Endpoint, e.StatusCode)
}

// IsUnauthorized reports whether err means the stored grant is no longer
// accepted, either by the API or by the token endpoint during a refresh.
// Token endpoint outages and throttling are not a revoked grant.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	if retrieveErr.Response == nil {
		return false
	}
	switch retrieveErr.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return true
	}
	return false
}

// Client reads daily collections. The *http.Client passed to each call
// carries the user's credentials.
type Client struct {
	baseURL string
	metrics *metrics.Metrics
}

// NewClient constructs a Client for the API root, e.g. https://api.ouraring.com.
func NewClient(baseURL string, m *metrics.Metrics) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), metrics: m}
}

// DailySleep lists daily sleep scores between start and end inclusive.
func (c *Client) DailySleep(ctx context.Context, hc *http.Client, start, end time.Time) ([]domain.DailySleep, error) {
	var out []domain.DailySleep
	err := c.collect(ctx, hc, EndpointDailySleep, start, end, func(raw json.RawMessage) error {
		var page []domain.DailySleep
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortSleep(out)
	return out, nil
}

// DailyReadiness lists daily readiness scores between start and end inclusive.
func (c *Client) DailyReadiness(ctx context.Context, hc *http.Client, start, end time.Time) ([]domain.DailyReadiness, error) {
	var out []domain.DailyReadiness
	err := c.collect(ctx, hc, EndpointDailyReadiness, start, end, func(raw json.RawMessage) error {
		var page []domain.DailyReadiness
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortReadiness(out)
	return out, nil
}

// DailyActivity lists daily activity summaries between start and end inclusive.
func (c *Client) DailyActivity(ctx context.Context, hc *http.Client, start, end time.Time) ([]domain.DailyActivity, error) {
	var out []domain.DailyActivity
	err := c.collect(ctx, hc, EndpointDailyActivity, start, end, func(raw json.RawMessage) error {
		var page []domain.DailyActivity
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortActivity(out)
	return out, nil
}

type pageEnvelope struct {
	Data      json.RawMessage `json:"data"`
	NextToken *string         `json:"next_token"`
}

func (c *Client) collect(ctx context.Context, hc *http.Client, endpoint string, start, end time.Time, add func(json.RawMessage) error) (err error) {
	defer func() { c.metrics.ObserveUpstream(endpoint, err) }()

	nextToken := ""
	for page := 0; page < maxPages; page++ {
		env, err := c.fetchPage(ctx, hc, endpoint, start, end, nextToken)
		if err != nil {
			return err
		}
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := add(env.Data); err != nil {
				return fmt.Errorf("decode %s: %w", endpoint, err)
			}
		}
		if env.NextToken == nil || *env.NextToken == "" {
			return nil
		}
		nextToken = *env.NextToken
	}
	return nil
}

func (c *Client) fetchPage(ctx context.Context, hc *http.Client, endpoint string, start, end time.Time, nextToken string) (*pageEnvelope, error) {
	q := url.Values{}
	q.Set("start_date", start.Format(dayLayout))
	q.Set("end_date", end.Format(dayLayout))
	if nextToken != "" {
		q.Set("next_token", nextToken)
	}
	target := c.baseURL + "/v2/usercollection/" + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return &env, nil
}
