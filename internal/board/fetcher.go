package board

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/medq/medq/internal/domain/queue"
)

// Fetcher loads the current queue state.
type Fetcher interface {
	Fetch(ctx context.Context) (queue.QueueState, error)
}

// HTTPFetcher reads GET /api/v1/queue from a running medq server.
type HTTPFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPFetcher(baseURL, token string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (queue.QueueState, error) {
	var state queue.QueueState

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/v1/queue", nil)
	if err != nil {
		return state, fmt.Errorf("build queue request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return state, fmt.Errorf("fetch queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return state, fmt.Errorf("fetch queue: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return state, fmt.Errorf("decode queue: %w", err)
	}
	return state, nil
}
