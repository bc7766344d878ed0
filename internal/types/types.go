// Package types provides common type definitions for the wallet cards service.
package types

import (
	"math/big"
	"time"
)

// NetTone classifies a wallet's net profit figure for presentation.
type NetTone string

const (
	// TonePositive represents a net profit greater than zero
	TonePositive NetTone = "positive"
	// ToneNegative represents a net profit below zero
	ToneNegative NetTone = "negative"
	// ToneNeutral represents a zero or unparsable net figure
	ToneNeutral NetTone = "neutral"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Service error codes shared across components
const (
	CodeInvalidWallet       = "INVALID_WALLET"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamQueryFailed = "UPSTREAM_QUERY_FAILED"
	CodeRenderFailed        = "RENDER_FAILED"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// NewServiceError creates a ServiceError with the given code and message.
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// RawCardRequest is the untrusted JSON body of a card render request.
// Every field except the wallet degrades to a safe default during
// normalization.
type RawCardRequest struct {
	Wallet           string `json:"wallet"`
	DisplayName      string `json:"displayName"`
	ShortWallet      string `json:"shortWallet"`
	KeySpendEth      string `json:"keySpendEth"`
	WeeklyClaimsEth  string `json:"weeklyClaimsEth"`
	JackpotClaimsEth string `json:"jackpotClaimsEth"`
	TotalClaimsEth   string `json:"totalClaimsEth"`
	NetEth           string `json:"netEth"`
	KeysBought       string `json:"keysBought"`
	PurchaseEvents   string `json:"purchaseEvents"`
	WeeklyEvents     string `json:"weeklyEvents"`
	JackpotEvents    string `json:"jackpotEvents"`
	AvatarURL        string `json:"avatarUrl"`
	DecorGif         string `json:"decorGif"`
}

// CardRequest is the normalized, render-safe form of a RawCardRequest.
// Wallet is canonical lower-case hex; all numeric fields are sanitized
// decimal strings; optional fields are empty when absent.
type CardRequest struct {
	Wallet           string
	DisplayName      string
	ShortWallet      string
	KeySpendEth      string
	WeeklyClaimsEth  string
	JackpotClaimsEth string
	TotalClaimsEth   string
	NetEth           string
	KeysBought       string
	PurchaseEvents   string
	WeeklyEvents     string
	JackpotEvents    string
	AvatarURL        string
	DecorGif         string
	NetTone          NetTone
}

// PlayerStats is a read-only projection of a wallet's indexed history.
// Amounts are smallest-unit integer strings, never floats.
type PlayerStats struct {
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
	ProfileName        *string `json:"profileName,omitempty"`
	ProfileAvatar      *string `json:"profileAvatar,omitempty"`
	ProfileVerified    *bool   `json:"profileVerified,omitempty"`
}

// GlobalStats aggregates indexed activity across all wallets.
type GlobalStats struct {
	Wallets            int64  `json:"wallets"`
	KeyPurchaseAmount  string `json:"keyPurchaseAmount"`
	WeeklyClaimAmount  string `json:"weeklyClaimAmount"`
	JackpotClaimAmount string `json:"jackpotClaimAmount"`
	TotalClaimAmount   string `json:"totalClaimAmount"`
	NetAmount          string `json:"netAmount"`
}

// LeaderboardEntry is one row of the global leaderboard, ordered by net
// profit desc, total claims desc, wallet asc.
type LeaderboardEntry struct {
	Rank               int     `json:"rank"`
	Wallet             string  `json:"wallet"`
	KeyPurchaseAmount  string  `json:"keyPurchaseAmount"`
	WeeklyClaimAmount  string  `json:"weeklyClaimAmount"`
	JackpotClaimAmount string  `json:"jackpotClaimAmount"`
	TotalClaimAmount   string  `json:"totalClaimAmount"`
	NetAmount          string  `json:"netAmount"`
	ProfileName        *string `json:"profileName,omitempty"`
	ProfileAvatar      *string `json:"profileAvatar,omitempty"`
	ProfileVerified    *bool   `json:"profileVerified,omitempty"`
}

// SearchUser is a normalized profile-search result.
type SearchUser struct {
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Image        string  `json:"image"`
	Verification *string `json:"verification"`
}

// WeeklyWindow describes the current weekly competition window as reported
// by the weekly-runs collaborator. Window boundaries are authoritative.
type WeeklyWindow struct {
	Week        int64
	StartsAt    time.Time
	EndsAt      time.Time
	StartUnix   int64
	EndUnix     int64
	UserScore   *big.Int
	GlobalScore *big.Int
}

// WeeklyPoolProjection is the estimated pool and proportional payout for a
// wallet in the current weekly window. Wei amounts are decimal strings.
type WeeklyPoolProjection struct {
	WeekNumber     int64  `json:"weekNumber"`
	WeekStart      string `json:"weekStart"`
	WeekEnd        string `json:"weekEnd"`
	UserScore      string `json:"userScore"`
	GlobalScore    string `json:"globalScore"`
	PoolWei        string `json:"poolWei"`
	ProjectedWei   string `json:"projectedWei"`
	StartBlock     uint64 `json:"startBlock"`
	LatestBlock    uint64 `json:"latestBlock"`
	ComputedAtUnix int64  `json:"computedAt"`
	FromCachedPool bool   `json:"fromCachedPool"`
}
