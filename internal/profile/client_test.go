package profile

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-cards/internal/types"
)

func searchClient(endpoint string) *Client {
	return NewClient(endpoint, "", "abs.xyz", ".abs.xyz")
}

func TestSearch_NormalizesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ghost", r.URL.Query().Get("query"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte(`{"results": {"users": [
			{"name": "Ghost", "address": "0xABCDEF0123456789abcdef0123456789ABCDEF01", "image": "https://abs.xyz/g.png", "verification": "verified"},
			{"name": "NoWallet", "address": "not-a-wallet"},
			{"name": "Empty", "address": ""}
		]}}`))
	}))
	defer server.Close()

	users, err := searchClient(server.URL).Search(context.Background(), "ghost")
	require.NoError(t, err)

	require.Len(t, users, 1)
	assert.Equal(t, "Ghost", users[0].Name)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", users[0].Address)
	require.NotNil(t, users[0].Verification)
	assert.Equal(t, "verified", *users[0].Verification)
}

func TestSearch_CapsResultCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rows []string
		for i := 0; i < 20; i++ {
			rows = append(rows, fmt.Sprintf(`{"name": "u%d", "address": "0x%040x"}`, i, i))
		}
		w.Write([]byte(`{"results": {"users": [` + strings.Join(rows, ",") + `]}}`))
	}))
	defer server.Close()

	users, err := searchClient(server.URL).Search(context.Background(), "many")
	require.NoError(t, err)
	assert.Len(t, users, maxSearchResults)
}

func TestSearch_SendsBearerToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"results": {"users": []}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "abs.xyz", ".abs.xyz")
	_, err := client.Search(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token123", auth)
}

func TestSearch_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := searchClient(server.URL).Search(context.Background(), "ghost")
	require.Error(t, err)

	serviceErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, types.CodeUpstreamUnavailable, serviceErr.Code)
}

func TestFetchAvatar_RejectsDisallowedURLs(t *testing.T) {
	client := searchClient("")

	cases := []struct {
		name string
		url  string
	}{
		{"http scheme", "http://abs.xyz/avatar.png"},
		{"foreign host", "https://evil.example.com/avatar.png"},
		{"suffix spoof", "https://notabs.xyz/avatar.png"},
		{"garbage", "::::"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.FetchAvatar(context.Background(), tc.url)
			require.Error(t, err)

			serviceErr, ok := err.(*types.ServiceError)
			require.True(t, ok)
			assert.Equal(t, types.CodeInvalidInput, serviceErr.Code)
		})
	}
}

func TestFetchAvatar_AllowsApexAndSubdomains(t *testing.T) {
	client := searchClient("")

	assert.True(t, client.hostAllowed("abs.xyz"))
	assert.True(t, client.hostAllowed("cdn.abs.xyz"))
	assert.False(t, client.hostAllowed("notabs.xyz"))
	assert.False(t, client.hostAllowed(""))
}

// avatarTestClient points the allow-list at the TLS test server's loopback
// host so requests get through the host check.
func avatarTestClient(server *httptest.Server) *Client {
	client := NewClient("", "", "127.0.0.1", "")
	client.httpClient = server.Client()
	return client
}

func TestFetchAvatar_ForwardsImage(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/*", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	avatar, err := avatarTestClient(server).FetchAvatar(context.Background(), server.URL+"/x.png")
	require.NoError(t, err)

	assert.Equal(t, "image/png", avatar.ContentType)
	assert.Equal(t, []byte("png-bytes"), avatar.Body)
}

func TestFetchAvatar_RejectsNonImageContentType(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	_, err := avatarTestClient(server).FetchAvatar(context.Background(), server.URL+"/x.png")
	require.Error(t, err)

	serviceErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, types.CodeUpstreamUnavailable, serviceErr.Code)
}

func TestFetchAvatar_UpstreamErrorStatus(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := avatarTestClient(server).FetchAvatar(context.Background(), server.URL+"/x.png")
	require.Error(t, err)
}
