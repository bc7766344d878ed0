// Package indexer queries the GraphQL store that holds pre-indexed purchase
// and claim history. Two schema generations are in the wild: the current one
// carries profile fields on PlayerStats rows, the legacy one does not. The
// client probes once, caches the answer for the process lifetime and retries
// transparently with the reduced selection when the fields are missing.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wallet-cards/internal/logging"
	"github.com/wallet-cards/internal/types"
)

// maxLeaderboardScan caps how many rows are pulled for Go-side ordering.
// The net-profit comparator cannot be expressed as a GraphQL order_by, so
// rows are sorted locally.
const maxLeaderboardScan = 1000

const profileFields = `
    profileName
    profileAvatar
    profileVerified`

const playerStatsFields = `
    wallet
    keyPurchaseAmount
    keyPurchaseEvents
    keysPurchased
    weeklyClaimAmount
    weeklyClaimEvents
    jackpotClaimAmount
    jackpotClaimEvents
    firstSeenBlock
    updatedAtBlock
    updatedAtTimestamp`

const walletQueryTemplate = `
query WalletOverview($wallet: String!) {
  PlayerStats(where: { wallet: { _eq: $wallet } }) {%s
  }
}`

const leaderboardQueryTemplate = `
query GlobalOverview($limit: Int!) {
  PlayerStats(limit: $limit) {%s
  }
  PlayerStats_aggregate {
    aggregate {
      count
    }
  }
}`

// profileSupport records the outcome of the schema capability probe.
type profileSupport int

const (
	profileUnknown profileSupport = iota
	profileSupported
	profileUnsupported
)

// Client is a GraphQL stats client. Safe for concurrent use.
type Client struct {
	endpoint    string
	adminSecret string
	httpClient  *http.Client

	mu      sync.RWMutex
	support profileSupport
}

// NewClient creates a stats client for the given GraphQL endpoint. The admin
// secret is optional and sent as an x-hasura-admin-secret header when set.
func NewClient(endpoint, adminSecret string) *Client {
	return &Client{
		endpoint:    endpoint,
		adminSecret: adminSecret,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// statsRow is the GraphQL wire shape of one PlayerStats row. Profile fields
// stay nil under the legacy schema.
type statsRow struct {
	Wallet             string  `json:"wallet"`
	KeyPurchaseAmount  string  `json:"keyPurchaseAmount"`
	KeyPurchaseEvents  string  `json:"keyPurchaseEvents"`
	KeysPurchased      string  `json:"keysPurchased"`
	WeeklyClaimAmount  string  `json:"weeklyClaimAmount"`
	WeeklyClaimEvents  string  `json:"weeklyClaimEvents"`
	JackpotClaimAmount string  `json:"jackpotClaimAmount"`
	JackpotClaimEvents string  `json:"jackpotClaimEvents"`
	FirstSeenBlock     string  `json:"firstSeenBlock"`
	UpdatedAtBlock     string  `json:"updatedAtBlock"`
	UpdatedAtTimestamp string  `json:"updatedAtTimestamp"`
	ProfileName        *string `json:"profileName"`
	ProfileAvatar      *string `json:"profileAvatar"`
	ProfileVerified    *bool   `json:"profileVerified"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// FetchWalletStats returns the indexed stats for a wallet, or nil when the
// wallet has no indexed events yet.
func (c *Client) FetchWalletStats(ctx context.Context, wallet string) (*types.PlayerStats, error) {
	var payload struct {
		PlayerStats []statsRow `json:"PlayerStats"`
	}

	query := fmt.Sprintf(walletQueryTemplate, c.selection())
	err := c.query(ctx, query, map[string]interface{}{"wallet": wallet}, &payload)
	if err != nil && c.retryWithoutProfile(ctx, err) {
		query = fmt.Sprintf(walletQueryTemplate, playerStatsFields)
		err = c.query(ctx, query, map[string]interface{}{"wallet": wallet}, &payload)
	}
	if err != nil {
		return nil, asServiceError(err)
	}

	if len(payload.PlayerStats) == 0 {
		return nil, nil
	}

	return rowToPlayerStats(payload.PlayerStats[0]), nil
}

// FetchGlobalStats returns aggregate totals plus the top leaderboard rows.
// Rows are ordered locally by the deterministic comparator in Order.
func (c *Client) FetchGlobalStats(ctx context.Context, limit int) (*types.GlobalStats, []types.LeaderboardEntry, error) {
	var payload struct {
		PlayerStats          []statsRow `json:"PlayerStats"`
		PlayerStatsAggregate struct {
			Aggregate struct {
				Count int64 `json:"count"`
			} `json:"aggregate"`
		} `json:"PlayerStats_aggregate"`
	}

	variables := map[string]interface{}{"limit": maxLeaderboardScan}
	query := fmt.Sprintf(leaderboardQueryTemplate, c.selection())
	err := c.query(ctx, query, variables, &payload)
	if err != nil && c.retryWithoutProfile(ctx, err) {
		query = fmt.Sprintf(leaderboardQueryTemplate, playerStatsFields)
		err = c.query(ctx, query, variables, &payload)
	}
	if err != nil {
		return nil, nil, asServiceError(err)
	}

	entries := make([]types.LeaderboardEntry, 0, len(payload.PlayerStats))
	for _, row := range payload.PlayerStats {
		entries = append(entries, rowToLeaderboardEntry(row))
	}

	global := SumGlobal(entries)
	global.Wallets = payload.PlayerStatsAggregate.Aggregate.Count

	Order(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return global, entries, nil
}

// selection returns the PlayerStats field selection for the current schema
// capability; profile fields are included until proven unsupported.
func (c *Client) selection() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.support == profileUnsupported {
		return playerStatsFields
	}
	return playerStatsFields + profileFields
}

// retryWithoutProfile reports whether the error is a missing-profile-field
// schema error worth retrying with the legacy selection. The first such
// error marks the schema legacy for the rest of the process.
func (c *Client) retryWithoutProfile(ctx context.Context, err error) bool {
	if !isFieldNotFound(err) {
		return false
	}

	c.mu.Lock()
	alreadyLegacy := c.support == profileUnsupported
	c.support = profileUnsupported
	c.mu.Unlock()

	if alreadyLegacy {
		// The legacy selection itself was rejected, retrying cannot help.
		return false
	}

	logging.FromContext(ctx).WithError(err).Info("Indexer schema has no profile fields, using legacy queries")
	return true
}

// query executes one GraphQL request and decodes data into out.
func (c *Client) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	requestBody, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to encode GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create GraphQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminSecret != "" {
		req.Header.Set("x-hasura-admin-secret", c.adminSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("indexer unreachable: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("indexer response read failed: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return types.NewServiceError(types.CodeUpstreamUnavailable,
			fmt.Sprintf("indexer HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("indexer returned invalid JSON: %v", err))
	}

	if len(envelope.Errors) > 0 {
		message := envelope.Errors[0].Message
		if message == "" {
			message = "GraphQL error"
		}
		if fieldNotFoundMessage(message) {
			return &schemaFieldError{message: message}
		}
		return types.NewServiceError(types.CodeUpstreamQueryFailed, fmt.Sprintf("indexer rejected query: %s", message))
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return types.NewServiceError(types.CodeUpstreamQueryFailed, fmt.Sprintf("indexer data shape mismatch: %v", err))
	}
	return nil
}

// schemaFieldError marks a GraphQL field-not-found error, the trigger for
// the legacy-schema fallback.
type schemaFieldError struct {
	message string
}

func (e *schemaFieldError) Error() string {
	return e.message
}

func isFieldNotFound(err error) bool {
	_, ok := err.(*schemaFieldError)
	return ok
}

// asServiceError converts a field error the fallback could not resolve into
// an actionable query failure; other errors pass through untouched.
func asServiceError(err error) error {
	if fieldErr, ok := err.(*schemaFieldError); ok {
		return types.NewServiceError(types.CodeUpstreamQueryFailed,
			fmt.Sprintf("indexer schema is missing required PlayerStats fields (%s); upgrade the indexer deployment", fieldErr.message))
	}
	return err
}

// fieldNotFoundMessage matches the error shapes Hasura and common GraphQL
// servers produce for an unknown selection field.
func fieldNotFoundMessage(message string) bool {
	lower := strings.ToLower(message)
	if !strings.Contains(lower, "field") {
		return false
	}
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "unknown") ||
		strings.Contains(lower, "cannot query")
}

func rowToPlayerStats(row statsRow) *types.PlayerStats {
	return &types.PlayerStats{
		Wallet:             row.Wallet,
		KeyPurchaseAmount:  zeroDefault(row.KeyPurchaseAmount),
		KeyPurchaseEvents:  zeroDefault(row.KeyPurchaseEvents),
		KeysPurchased:      zeroDefault(row.KeysPurchased),
		WeeklyClaimAmount:  zeroDefault(row.WeeklyClaimAmount),
		WeeklyClaimEvents:  zeroDefault(row.WeeklyClaimEvents),
		JackpotClaimAmount: zeroDefault(row.JackpotClaimAmount),
		JackpotClaimEvents: zeroDefault(row.JackpotClaimEvents),
		FirstSeenBlock:     zeroDefault(row.FirstSeenBlock),
		UpdatedAtBlock:     zeroDefault(row.UpdatedAtBlock),
		UpdatedAtTimestamp: zeroDefault(row.UpdatedAtTimestamp),
		ProfileName:        row.ProfileName,
		ProfileAvatar:      row.ProfileAvatar,
		ProfileVerified:    row.ProfileVerified,
	}
}

func rowToLeaderboardEntry(row statsRow) types.LeaderboardEntry {
	key := parseAmount(row.KeyPurchaseAmount)
	weekly := parseAmount(row.WeeklyClaimAmount)
	jackpot := parseAmount(row.JackpotClaimAmount)

	totalClaims := sum(weekly, jackpot)
	net := sub(totalClaims, key)

	return types.LeaderboardEntry{
		Wallet:             row.Wallet,
		KeyPurchaseAmount:  key.String(),
		WeeklyClaimAmount:  weekly.String(),
		JackpotClaimAmount: jackpot.String(),
		TotalClaimAmount:   totalClaims.String(),
		NetAmount:          net.String(),
		ProfileName:        row.ProfileName,
		ProfileAvatar:      row.ProfileAvatar,
		ProfileVerified:    row.ProfileVerified,
	}
}

func zeroDefault(value string) string {
	if value == "" {
		return "0"
	}
	return value
}
