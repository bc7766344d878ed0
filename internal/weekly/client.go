// Package weekly talks to the external weekly-runs competition API. The
// window boundaries it reports are treated as authoritative.
package weekly

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/wallet-cards/internal/types"
)

// Client fetches the current competition window for a wallet.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a weekly-runs API client.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// windowResponse is the upstream wire format.
type windowResponse struct {
	Week        int64  `json:"week"`
	StartsAt    string `json:"startsAt"`
	EndsAt      string `json:"endsAt"`
	UserScore   string `json:"userScore"`
	GlobalScore string `json:"globalScore"`
}

// CurrentWindow fetches the current weekly window and the wallet's score in
// it. Unparsable window boundaries are an upstream failure, not a default.
func (c *Client) CurrentWindow(ctx context.Context, wallet string) (*types.WeeklyWindow, error) {
	if c.endpoint == "" {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, "weekly runs API is not configured")
	}

	requestURL := fmt.Sprintf("%s?wallet=%s", c.endpoint, url.QueryEscape(wallet))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weekly runs request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("weekly runs API unreachable: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("weekly runs API read failed: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable,
			fmt.Sprintf("weekly runs API HTTP %d", resp.StatusCode))
	}

	var payload windowResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("weekly runs API returned invalid JSON: %v", err))
	}

	startsAt, err := time.Parse(time.RFC3339, payload.StartsAt)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable,
			fmt.Sprintf("weekly runs window start %q is not a valid timestamp", payload.StartsAt))
	}
	endsAt, err := time.Parse(time.RFC3339, payload.EndsAt)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable,
			fmt.Sprintf("weekly runs window end %q is not a valid timestamp", payload.EndsAt))
	}

	return &types.WeeklyWindow{
		Week:        payload.Week,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		StartUnix:   startsAt.Unix(),
		EndUnix:     endsAt.Unix(),
		UserScore:   parseScore(payload.UserScore),
		GlobalScore: parseScore(payload.GlobalScore),
	}, nil
}

// parseScore converts a decimal score string to a big integer; anything
// unparsable counts as zero.
func parseScore(value string) *big.Int {
	score, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return big.NewInt(0)
	}
	return score
}
