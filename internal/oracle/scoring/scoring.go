// Package scoring provides Scorer implementations: an HTTP client for an
// external scoring service and a fixed scorer for deployments without one.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dErrors "verifyd/pkg/domain-errors"
)

// Client calls an external scoring endpoint:
//
//	POST <url> {"path": "<file>"} → {"score": 0..100}
//
// The service is expected to share storage with verifyd; only the path
// travels over the wire.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Score(ctx context.Context, path string) (int, error) {
	body, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return 0, fmt.Errorf("marshal scoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scoring request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scoring service returned %d", resp.StatusCode)
	}

	var parsed struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode scoring response: %w", err)
	}

	if parsed.Score < 0 || parsed.Score > 100 {
		return 0, dErrors.Newf(dErrors.CodeInternal, "scoring service returned out-of-range score %d", parsed.Score)
	}
	return parsed.Score, nil
}

// Fixed always returns the same score. Used when no scoring backend is
// configured; the original deployment auto-certified everything.
type Fixed int

func (f Fixed) Score(context.Context, string) (int, error) {
	if f < 0 || f > 100 {
		return 0, fmt.Errorf("fixed score %d out of range", int(f))
	}
	return int(f), nil
}
