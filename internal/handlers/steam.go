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
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/steam"
	"github.com/NickDoxa/ConduitStatusCheckAPI/pkg/logging"
)

// News feed defaults when the request leaves them out.
const (
	defaultNewsCount     = 3
	defaultNewsMaxLength = 300
)

// SteamHandler holds dependencies for the /conduitapi/steam endpoints.
type SteamHandler struct {
	Client       *steam.Client
	PlayersCache *cache.TimedCache[int]
	NewsCache    *cache.TimedCache[[]steam.NewsItem]
	CacheTTL     time.Duration
}

func NewSteamHandler(
	client *steam.Client,
	playersCache *cache.TimedCache[int],
	newsCache *cache.TimedCache[[]steam.NewsItem],
	ttl time.Duration,
) *SteamHandler {
	return &SteamHandler{
		Client:       client,
		PlayersCache: playersCache,
		NewsCache:    newsCache,
		CacheTTL:     ttl,
	}
}

type steamPlayersResponse struct {
	AppID       string `json:"app_id"`
	PlayerCount int    `json:"player_count"`
}

type steamNewsItem struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Author   string    `json:"author"`
	Contents string    `json:"contents"`
	Date     time.Time `json:"date"`
}

type steamNewsResponse struct {
	AppID string          `json:"app_id"`
	Items []steamNewsItem `json:"items"`
}

// Players handles GET /conduitapi/steam/players.
func (h *SteamHandler) Players(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	appID, ok := requireAppID(w, r)
	if !ok {
		return
	}

	key := fmt.Sprintf("appid=%s", appID)
	fetchCtx := context.WithoutCancel(ctx)
	count, err := h.PlayersCache.GetOrFetch(ctx, key, h.CacheTTL, func() (int, error) {
		return h.Client.PlayerCount(fetchCtx, appID)
	})
	if err != nil {
		logger.Warn("steam player count fetch failed",
			zap.String("appid", appID),
			zap.Error(err),
		)
		writeFetchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, steamPlayersResponse{
		AppID:       appID,
		PlayerCount: count,
	})
}

// News handles GET /conduitapi/steam/news.
func (h *SteamHandler) News(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	appID, ok := requireAppID(w, r)
	if !ok {
		return
	}

	count, ok := positiveIntParam(w, r, "count", defaultNewsCount)
	if !ok {
		return
	}
	maxLength, ok := positiveIntParam(w, r, "maxlength", defaultNewsMaxLength)
	if !ok {
		return
	}

	key := fmt.Sprintf("appid=%s|count=%d|maxlength=%d", appID, count, maxLength)
	fetchCtx := context.WithoutCancel(ctx)
	items, err := h.NewsCache.GetOrFetch(ctx, key, h.CacheTTL, func() ([]steam.NewsItem, error) {
		return h.Client.News(fetchCtx, appID, count, maxLength)
	})
	if err != nil {
		logger.Warn("steam news fetch failed",
			zap.String("appid", appID),
			zap.Error(err),
		)
		writeFetchError(w, err)
		return
	}

	resp := steamNewsResponse{
		AppID: appID,
		Items: make([]steamNewsItem, 0, len(items)),
	}
	for _, n := range items {
		resp.Items = append(resp.Items, steamNewsItem{
			ID:       n.ID,
			Title:    n.Title,
			URL:      n.URL,
			Author:   n.Author,
			Contents: n.Contents,
			Date:     n.Date,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireAppID validates the appid query parameter, writing a 400 when it
// is missing or not numeric.
func requireAppID(w http.ResponseWriter, r *http.Request) (string, bool) {
	appID := strings.TrimSpace(r.URL.Query().Get("appid"))
	if appID == "" {
		writeError(w, http.StatusBadRequest, "appid is required")
		return "", false
	}
	if _, err := strconv.ParseUint(appID, 10, 64); err != nil {
		writeError(w, http.StatusBadRequest, "appid must be numeric")
		return "", false
	}
	return appID, true
}

// positiveIntParam reads an optional positive integer query parameter,
// writing a 400 when it is present but malformed.
func positiveIntParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}
