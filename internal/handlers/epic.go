package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/cache"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/epic"
	"github.com/NickDoxa/ConduitStatusCheckAPI/pkg/logging"
)

// Storefront defaults when the request leaves them out.
const (
	defaultEpicLocale  = "en-US"
	defaultEpicCountry = "US"
)

// EpicHandler holds dependencies for the /conduitapi/epic endpoints.
type EpicHandler struct {
	Client   *epic.Client
	Cache    *cache.TimedCache[epic.Promotions]
	CacheTTL time.Duration
}

func NewEpicHandler(client *epic.Client, c *cache.TimedCache[epic.Promotions], ttl time.Duration) *EpicHandler {
	return &EpicHandler{
		Client:   client,
		Cache:    c,
		CacheTTL: ttl,
	}
}

type epicGame struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Seller        string     `json:"seller"`
	ImageURL      string     `json:"image_url"`
	OriginalPrice int        `json:"original_price"`
	DiscountPrice int        `json:"discount_price"`
	PriceDisplay  string     `json:"price_display"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
}

type epicFreeGamesResponse struct {
	Current  []epicGame `json:"current"`
	Upcoming []epicGame `json:"upcoming"`
}

// FreeGames handles GET /conduitapi/epic/free-games.
func (h *EpicHandler) FreeGames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	q := r.URL.Query()
	locale := strings.TrimSpace(q.Get("locale"))
	if locale == "" {
		locale = defaultEpicLocale
	} else if !localeOK(locale) {
		writeError(w, http.StatusBadRequest, "locale must be a language tag")
		return
	}
	country := strings.TrimSpace(q.Get("country"))
	if country == "" {
		country = defaultEpicCountry
	} else if !countryOK(country) {
		writeError(w, http.StatusBadRequest, "country must be a two-letter code")
		return
	}

	key := fmt.Sprintf("locale=%s|country=%s", locale, country)
	fetchCtx := context.WithoutCancel(ctx)
	promos, err := h.Cache.GetOrFetch(ctx, key, h.CacheTTL, func() (epic.Promotions, error) {
		return h.Client.FreeGames(fetchCtx, locale, country)
	})
	if err != nil {
		logger.Warn("epic promotions fetch failed",
			zap.String("locale", locale),
			zap.String("country", country),
			zap.Error(err),
		)
		writeFetchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, epicFreeGamesResponse{
		Current:  newEpicGames(promos.Current),
		Upcoming: newEpicGames(promos.Upcoming),
	})
}

// localeOK accepts BCP 47 style tags such as "en-US". The tag becomes
// part of a cache key, so the charset is restricted to letters, digits
// and hyphens.
func localeOK(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// countryOK accepts ISO 3166-1 alpha-2 codes such as "US".
func countryOK(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func newEpicGames(games []epic.FreeGame) []epicGame {
	out := make([]epicGame, 0, len(games))
	for _, g := range games {
		out = append(out, epicGame{
			Title:         g.Title,
			Description:   g.Description,
			Seller:        g.Seller,
			ImageURL:      g.ImageURL,
			OriginalPrice: g.OriginalPrice,
			DiscountPrice: g.DiscountPrice,
			PriceDisplay:  g.PriceDisplay,
			StartDate:     g.StartDate,
			EndDate:       g.EndDate,
		})
	}
	return out
}
