// Package profile talks to the external profile directory: a global search
// endpoint and the avatar image host. Avatar fetches are restricted to https
// URLs on an allow-listed host so the proxy cannot be pointed at arbitrary
// origins.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wallet-cards/internal/normalize"
	"github.com/wallet-cards/internal/types"
)

// browserUserAgent mirrors a desktop browser; the portal rejects obviously
// non-browser clients.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/145.0.0.0 Safari/537.36"

const searchReferer = "https://portal.abs.xyz/"

// maxSearchResults caps how many directory hits are returned per query.
const maxSearchResults = 8

// Avatar is a proxied avatar image with its upstream content type.
type Avatar struct {
	ContentType string
	Body        []byte
}

// Client calls the profile search and avatar collaborators.
type Client struct {
	searchEndpoint   string
	bearerToken      string
	avatarHost       string
	avatarHostSuffix string
	httpClient       *http.Client
}

// NewClient creates a profile client. The bearer token is optional; the
// avatar host settings define the apex host and the subdomain suffix the
// avatar proxy will fetch from.
func NewClient(searchEndpoint, bearerToken, avatarHost, avatarHostSuffix string) *Client {
	return &Client{
		searchEndpoint:   searchEndpoint,
		bearerToken:      bearerToken,
		avatarHost:       strings.ToLower(avatarHost),
		avatarHostSuffix: strings.ToLower(avatarHostSuffix),
		httpClient:       &http.Client{Timeout: 15 * time.Second},
	}
}

// searchResponse is the upstream search wire format.
type searchResponse struct {
	Results struct {
		Users []searchUser `json:"users"`
	} `json:"results"`
}

type searchUser struct {
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Image        string  `json:"image"`
	Verification *string `json:"verification"`
}

// Search queries the profile directory and returns normalized results:
// only entries with a valid wallet address survive, addresses are
// lower-cased and at most maxSearchResults entries are returned.
func (c *Client) Search(ctx context.Context, query string) ([]types.SearchUser, error) {
	requestURL := fmt.Sprintf("%s?query=%s", c.searchEndpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", searchReferer)
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("profile search unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable,
			fmt.Sprintf("profile search HTTP %d", resp.StatusCode))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("profile search returned invalid JSON: %v", err))
	}

	return normalizeUsers(payload.Results.Users), nil
}

// normalizeUsers filters directory hits down to entries with a valid wallet
// address, lower-casing the address and capping the result count.
func normalizeUsers(users []searchUser) []types.SearchUser {
	normalized := make([]types.SearchUser, 0, maxSearchResults)
	for _, user := range users {
		address := strings.ToLower(user.Address)
		if !normalize.ValidWallet(address) {
			continue
		}
		normalized = append(normalized, types.SearchUser{
			Name:         user.Name,
			Address:      address,
			Image:        user.Image,
			Verification: user.Verification,
		})
		if len(normalized) == maxSearchResults {
			break
		}
	}
	return normalized
}

// FetchAvatar proxy-fetches an avatar image. Only https URLs on the apex
// host or the allowed subdomain suffix are accepted; the upstream must
// answer with an image content type.
func (c *Client) FetchAvatar(ctx context.Context, rawURL string) (*Avatar, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, types.NewServiceError(types.CodeInvalidInput, "invalid avatar URL")
	}
	if parsed.Scheme != "https" {
		return nil, types.NewServiceError(types.CodeInvalidInput, "only https avatars are allowed")
	}

	host := strings.ToLower(parsed.Hostname())
	if !c.hostAllowed(host) {
		return nil, types.NewServiceError(types.CodeInvalidInput, "avatar host is not allowed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create avatar request: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("avatar fetch failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable,
			fmt.Sprintf("avatar fetch failed (%d)", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, "avatar URL is not an image")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewServiceError(types.CodeUpstreamUnavailable, fmt.Sprintf("avatar read failed: %v", err))
	}

	return &Avatar{ContentType: contentType, Body: body}, nil
}

func (c *Client) hostAllowed(host string) bool {
	if host == "" {
		return false
	}
	if host == c.avatarHost {
		return true
	}
	return c.avatarHostSuffix != "" && strings.HasSuffix(host, c.avatarHostSuffix)
}
