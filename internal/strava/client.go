// Package strava is the outbound adapter for the third-party
// social-fitness API. It implements engine.API.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"kudobot/internal/engine"
	logx "kudobot/pkg/logx"
)

type Client struct {
	base string
	log  logx.Logger
	http *http.Client
	ts   oauth2.TokenSource
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	ts, err := tokenSource(cfg)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base: base,
		log:  log,
		ts:   ts,
		http: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: ts},
		},
	}, nil
}

// RelatedActivities returns the ids of other athletes' activities
// recorded alongside the given one (group workouts).
func (c *Client) RelatedActivities(ctx context.Context, activityID int64) ([]int64, error) {
	path := fmt.Sprintf("/activities/%d/related", activityID)
	var raw []struct {
		ID int64 `json:"id"`
	}
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(raw))
	for _, a := range raw {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// FollowingFeed returns the most recent activities of followed athletes.
func (c *Client) FollowingFeed(ctx context.Context) ([]engine.FeedEntry, error) {
	path := fmt.Sprintf("/activities/following?per_page=%d", feedPageSize)
	var raw []struct {
		ID      int64 `json:"id"`
		Athlete struct {
			ID int64 `json:"id"`
		} `json:"athlete"`
	}
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}
	out := make([]engine.FeedEntry, 0, len(raw))
	for _, a := range raw {
		out = append(out, engine.FeedEntry{ActivityID: a.ID, AthleteID: a.Athlete.ID})
	}
	return out, nil
}

// GiveKudos sends one kudos. Already-kudoed activities come back as an
// API error and are treated like any other failed send.
func (c *Client) GiveKudos(ctx context.Context, activityID int64) error {
	path := fmt.Sprintf("/activities/%d/kudos", activityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("strava: POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return c.checkStatus(resp, http.MethodPost, path)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("strava: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := c.checkStatus(resp, http.MethodGet, path); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("strava: GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	apiErr := &APIError{
		Status: resp.StatusCode,
		Method: method,
		Path:   path,
		Body:   string(body),
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", ErrAuth, apiErr)
	}
	return apiErr
}
