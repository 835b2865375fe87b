package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/cache"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/roblox"
	"github.com/NickDoxa/ConduitStatusCheckAPI/pkg/logging"
)

// RobloxHandler holds dependencies for the /conduitapi/roblox endpoints.
type RobloxHandler struct {
	Client        *roblox.Client
	StatusCache   *cache.TimedCache[roblox.GameStatus]
	UniverseCache *cache.TimedCache[string]
	CacheTTL      time.Duration
}

func NewRobloxHandler(
	client *roblox.Client,
	statusCache *cache.TimedCache[roblox.GameStatus],
	universeCache *cache.TimedCache[string],
	ttl time.Duration,
) *RobloxHandler {
	return &RobloxHandler{
		Client:        client,
		StatusCache:   statusCache,
		UniverseCache: universeCache,
		CacheTTL:      ttl,
	}
}

type robloxStatusResponse struct {
	IsOnline    bool    `json:"is_online"`
	Playing     *int64  `json:"playing,omitempty"`
	MaxPlayers  *int    `json:"max_players,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PlaceID     *string `json:"place_id,omitempty"`
}

type robloxUniverseResponse struct {
	UniverseID *string `json:"universe_id"`
}

// Status handles GET /conduitapi/roblox/status. At least one of place_id
// and universe_id must be given; the place is resolved to its universe
// only when universe_id is absent.
func (h *RobloxHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	q := r.URL.Query()
	placeID := strings.TrimSpace(q.Get("place_id"))
	universeID := strings.TrimSpace(q.Get("universe_id"))
	if placeID == "" && universeID == "" {
		writeError(w, http.StatusBadRequest, "place_id or universe_id is required")
		return
	}
	if placeID != "" {
		if _, err := strconv.ParseInt(placeID, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "place_id must be an integer")
			return
		}
	}
	if universeID != "" {
		if _, err := strconv.ParseInt(universeID, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "universe_id must be an integer")
			return
		}
	}

	if universeID == "" {
		resolved, err := h.resolveUniverse(ctx, placeID)
		if err != nil {
			logger.Warn("universe resolution failed",
				zap.String("place_id", placeID),
				zap.Error(err),
			)
			writeFetchError(w, err)
			return
		}
		universeID = resolved
	}

	// A place with no universe behaves like an unknown game: offline.
	if universeID == "" {
		writeJSON(w, http.StatusOK, robloxStatusResponse{IsOnline: false})
		return
	}

	key := fmt.Sprintf("place=%s|universe=%s", placeID, universeID)
	fetchCtx := context.WithoutCancel(ctx)
	st, err := h.StatusCache.GetOrFetch(ctx, key, h.CacheTTL, func() (roblox.GameStatus, error) {
		return h.Client.GameInfo(fetchCtx, universeID)
	})
	if err != nil {
		logger.Warn("roblox status fetch failed",
			zap.String("universe_id", universeID),
			zap.Error(err),
		)
		writeFetchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newRobloxStatusResponse(st))
}

// Universe handles GET /conduitapi/roblox/universe.
func (h *RobloxHandler) Universe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	placeID := strings.TrimSpace(r.URL.Query().Get("place_id"))
	if placeID == "" {
		writeError(w, http.StatusBadRequest, "place_id is required")
		return
	}
	if _, err := strconv.ParseInt(placeID, 10, 64); err != nil {
		writeError(w, http.StatusBadRequest, "place_id must be an integer")
		return
	}

	resolved, err := h.resolveUniverse(ctx, placeID)
	if err != nil {
		logger.Warn("universe resolution failed",
			zap.String("place_id", placeID),
			zap.Error(err),
		)
		writeFetchError(w, err)
		return
	}

	var resp robloxUniverseResponse
	if resolved != "" {
		resp.UniverseID = &resolved
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveUniverse looks up the universe for a place through the universe
// cache. The empty string (place unknown to the API) is a cacheable value.
func (h *RobloxHandler) resolveUniverse(ctx context.Context, placeID string) (string, error) {
	key := fmt.Sprintf("place=%s", placeID)
	fetchCtx := context.WithoutCancel(ctx)
	return h.UniverseCache.GetOrFetch(ctx, key, h.CacheTTL, func() (string, error) {
		return h.Client.ResolveUniverse(fetchCtx, placeID)
	})
}

func newRobloxStatusResponse(st roblox.GameStatus) robloxStatusResponse {
	resp := robloxStatusResponse{IsOnline: st.Online}
	if !st.Online {
		return resp
	}

	resp.Playing = &st.Playing
	resp.MaxPlayers = &st.MaxPlayers
	resp.Name = &st.Name
	resp.Description = &st.Description
	if st.RootPlaceID != "" {
		resp.PlaceID = &st.RootPlaceID
	}
	return resp
}
