package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient is a Reader that queries a contract gateway (chain indexer)
// over HTTP. The gateway exposes the contract's per-thread read state as
// GET {base}/threads/{threadID}/confirmed?participant={identity}.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a ledger client for the given gateway base URL.
// A nil http.Client gets a default with a 30s timeout.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type confirmedResponse struct {
	ConfirmedCount uint64 `json:"confirmed_count"`
}

func (c *HTTPClient) ConfirmedCount(ctx context.Context, threadID, participant string) (uint64, error) {
	u := fmt.Sprintf("%s/threads/%s/confirmed?participant=%s",
		c.baseURL, url.PathEscape(threadID), url.QueryEscape(participant))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	// A thread the ledger has never seen reads as zero, not an error.
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}

	var body confirmedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return body.ConfirmedCount, nil
}

var _ Reader = (*HTTPClient)(nil)
