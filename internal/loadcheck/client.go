package loadcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrStatus is returned for unexpected HTTP status codes.
var ErrStatus = errors.New("unexpected status")

// ErrNotRanked is returned when the service has no rank for a player.
var ErrNotRanked = errors.New("player not ranked")

type client struct {
	http *http.Client
	base string
}

func newClient(base string, timeout time.Duration) *client {
	return &client{http: &http.Client{Timeout: timeout}, base: base}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

func (c *client) health(ctx context.Context) error {
	code, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: healthz %d", ErrStatus, code)
	}
	return nil
}

func (c *client) submit(ctx context.Context, s Submission) error {
	code, err := c.do(ctx, http.MethodPost, "/api/players/"+url.PathEscape(s.PlayerID)+"/score", s, nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: score %s %d", ErrStatus, s.PlayerID, code)
	}
	return nil
}

func (c *client) top(ctx context.Context, n int) ([]Entry, error) {
	var out topResponse
	code, err := c.do(ctx, http.MethodGet, "/api/leaderboard/top?limit="+strconv.Itoa(n), nil, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("%w: top %d", ErrStatus, code)
	}
	return out.Players, nil
}

func (c *client) rank(ctx context.Context, playerID string) (Entry, error) {
	var out Entry
	code, err := c.do(ctx, http.MethodGet, "/api/players/"+url.PathEscape(playerID)+"/rank", nil, &out)
	if err != nil {
		return Entry{}, err
	}
	switch code {
	case http.StatusOK:
		return out, nil
	case http.StatusNotFound:
		return Entry{}, fmt.Errorf("%w: %s", ErrNotRanked, playerID)
	default:
		return Entry{}, fmt.Errorf("%w: rank %s %d", ErrStatus, playerID, code)
	}
}
