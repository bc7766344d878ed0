package weekly

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wallet-cards/internal/types"
)

const testWallet = "0xabcdef0123456789abcdef0123456789abcdef01"

func TestCurrentWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testWallet, r.URL.Query().Get("wallet"))
		w.Write([]byte(`{
			"week": 34,
			"startsAt": "2026-08-24T00:00:00Z",
			"endsAt": "2026-08-31T00:00:00Z",
			"userScore": "120",
			"globalScore": "4800"
		}`))
	}))
	defer server.Close()

	window, err := NewClient(server.URL).CurrentWindow(context.Background(), testWallet)
	require.NoError(t, err)

	assert.Equal(t, int64(34), window.Week)
	assert.Equal(t, int64(1787529600), window.StartUnix)
	assert.Equal(t, "120", window.UserScore.String())
	assert.Equal(t, "4800", window.GlobalScore.String())
}

func TestCurrentWindow_InvalidTimestamps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"week": 1, "startsAt": "yesterday", "endsAt": "2026-08-31T00:00:00Z"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CurrentWindow(context.Background(), testWallet)
	require.Error(t, err)

	serviceErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, types.CodeUpstreamUnavailable, serviceErr.Code)
}

func TestCurrentWindow_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CurrentWindow(context.Background(), testWallet)
	require.Error(t, err)

	serviceErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, types.CodeUpstreamUnavailable, serviceErr.Code)
}

func TestCurrentWindow_UnparsableScoresCountAsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"week": 2,
			"startsAt": "2026-08-24T00:00:00Z",
			"endsAt": "2026-08-31T00:00:00Z",
			"userScore": "many",
			"globalScore": ""
		}`))
	}))
	defer server.Close()

	window, err := NewClient(server.URL).CurrentWindow(context.Background(), testWallet)
	require.NoError(t, err)

	assert.Equal(t, "0", window.UserScore.String())
	assert.Equal(t, "0", window.GlobalScore.String())
}

func TestCurrentWindow_NotConfigured(t *testing.T) {
	_, err := NewClient("").CurrentWindow(context.Background(), testWallet)
	assert.Error(t, err)
}
