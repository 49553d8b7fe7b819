// Package analysis detects chronic conditions in a clinical note. It calls the
// external note analysis service and falls back to a keyword heuristic when
// the service fails or detects nothing.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/salulink/authi-claims/logging"
)

// maxResponseSize bounds what is read from the analysis service
const maxResponseSize = 1 << 20

// ErrEmptyNote is returned when there is nothing to analyze
var ErrEmptyNote = errors.New("clinical note is empty")

// Client talks to the note analysis service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Conditions []string `json:"conditions"`
	Error      string   `json:"error,omitempty"`
}

// Analyze posts note to the service and returns the detected labels in
// relevance order. An empty list is not an error at this level.
func (c *Client) Analyze(ctx context.Context, note string) ([]string, error) {
	if strings.TrimSpace(note) == "" {
		return nil, ErrEmptyNote
	}

	body, err := json.Marshal(analyzeRequest{Text: note})
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis service unreachable: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}

	var out analyzeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid analysis response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return nil, fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("analysis service returned %d", resp.StatusCode)
	}

	conditions := make([]string, 0, len(out.Conditions))
	for _, c := range out.Conditions {
		if c = strings.TrimSpace(c); c != "" {
			conditions = append(conditions, c)
		}
	}
	return conditions, nil
}

// Ping checks the service health endpoint
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analysis service unreachable: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service health returned %d", resp.StatusCode)
	}
	return nil
}
