package api

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"

	"github.com/wallet-cards/internal/logging"
	"github.com/wallet-cards/internal/normalize"
	"github.com/wallet-cards/internal/types"
)

// handlePlayerCardImage handles POST /api/player-card-image - render the
// shareable card PNG from untrusted stat fields.
func (s *Server) handlePlayerCardImage(w http.ResponseWriter, r *http.Request) {
	var raw types.RawCardRequest
	if err := parseJSONBody(r, &raw); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req, err := normalize.Normalize(&raw)
	if err != nil {
		statusCode, message := mapServiceError(err)
		respondError(w, statusCode, message)
		return
	}

	bundle, err := s.assets.Resolve(r.Context())
	if err != nil {
		statusCode, message := mapServiceError(err)
		respondError(w, statusCode, message)
		return
	}

	avatar := s.fetchAvatarImage(r, req.AvatarURL)

	decor := bundle.FallbackDecor()
	if req.DecorGif != "" {
		decor = bundle.DecorFrame(req.DecorGif)
	}

	data, err := s.cards.Render(r.Context(), req, avatar, decor)
	if err != nil {
		statusCode, message := mapServiceError(err)
		respondError(w, statusCode, message)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// fetchAvatarImage resolves the optional avatar bitmap. Failures degrade to
// the gradient fallback; they are logged so swallowed upstream problems
// stay visible in telemetry.
func (s *Server) fetchAvatarImage(r *http.Request, avatarURL string) image.Image {
	if avatarURL == "" {
		return nil
	}

	logger := logging.FromContext(r.Context()).WithField("avatarUrl", avatarURL)

	avatar, err := s.profiles.FetchAvatar(r.Context(), avatarURL)
	if err != nil {
		logger.WithError(err).Warn("Avatar fetch failed, rendering fallback")
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(avatar.Body))
	if err != nil {
		logger.WithError(err).Warn("Avatar undecodable, rendering fallback")
		return nil
	}
	return img
}
