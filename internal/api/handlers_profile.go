package api

import (
	"net/http"
	"strings"

	"github.com/wallet-cards/internal/logging"
	"github.com/wallet-cards/internal/types"
)

// minSearchQueryLen is the shortest query forwarded to the directory.
const minSearchQueryLen = 2

type searchResponse struct {
	Users []types.SearchUser `json:"users"`
}

// handleSearch handles GET /api/search - profile directory lookup. The
// endpoint never surfaces upstream failure; manual wallet entry still works
// when the directory is down, so an empty result list is the degradation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if len(query) < minSearchQueryLen {
		respondJSON(w, http.StatusOK, searchResponse{Users: []types.SearchUser{}})
		return
	}

	users, err := s.profiles.Search(r.Context(), query)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Profile search degraded to empty results")
		respondJSON(w, http.StatusOK, searchResponse{Users: []types.SearchUser{}})
		return
	}

	if users == nil {
		users = []types.SearchUser{}
	}
	respondJSON(w, http.StatusOK, searchResponse{Users: users})
}

// handleAvatar handles GET /api/avatar - proxy-fetch an allow-listed avatar.
func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	sourceURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if sourceURL == "" {
		respondError(w, http.StatusBadRequest, "Missing avatar URL")
		return
	}

	avatar, err := s.profiles.FetchAvatar(r.Context(), sourceURL)
	if err != nil {
		statusCode, message := mapServiceError(err)
		respondError(w, statusCode, message)
		return
	}

	w.Header().Set("Content-Type", avatar.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(avatar.Body)
}

type decorGifsResponse struct {
	Gifs []string `json:"gifs"`
}

// handleDecorGifs handles GET /api/decor-gifs - sorted decorative GIF paths.
func (s *Server) handleDecorGifs(w http.ResponseWriter, r *http.Request) {
	gifs, err := s.assets.ListDecorGifs(r.Context())
	if err != nil {
		statusCode, message := mapServiceError(err)
		respondError(w, statusCode, message)
		return
	}

	if gifs == nil {
		gifs = []string{}
	}
	respondJSON(w, http.StatusOK, decorGifsResponse{Gifs: gifs})
}
