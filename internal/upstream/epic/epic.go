// Package epic queries the Epic Games Store promotions feed for free
// game giveaways.
package epic

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream"
)

type Config struct {
	BaseURL  string // default: https://store-site-backend-static.ak.epicgames.com
	Upstream upstream.Config
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://store-site-backend-static.ak.epicgames.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return cfg
}

// FreeGame is a single giveaway entry from the promotions feed.
type FreeGame struct {
	Title         string
	Description   string
	Seller        string
	ImageURL      string
	OriginalPrice int // in the smallest currency unit
	DiscountPrice int
	PriceDisplay  string
	StartDate     *time.Time
	EndDate       *time.Time
}

// Promotions splits the feed into giveaways that are live now and ones
// announced for later.
type Promotions struct {
	Current  []FreeGame
	Upcoming []FreeGame
}

type Client struct {
	cfg  Config
	http *upstream.Client
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		cfg:  cfg,
		http: upstream.NewClient("epic", cfg.Upstream, logger),
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	return c.http.Close()
}

type offerWire struct {
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	DiscountSetting struct {
		DiscountType       string `json:"discountType"`
		DiscountPercentage int    `json:"discountPercentage"`
	} `json:"discountSetting"`
}

type offerGroupWire struct {
	PromotionalOffers []offerWire `json:"promotionalOffers"`
}

type elementWire struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Seller      struct {
		Name string `json:"name"`
	} `json:"seller"`
	KeyImages []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"keyImages"`
	Price struct {
		TotalPrice struct {
			DiscountPrice int `json:"discountPrice"`
			OriginalPrice int `json:"originalPrice"`
			FmtPrice      struct {
				OriginalPrice string `json:"originalPrice"`
			} `json:"fmtPrice"`
		} `json:"totalPrice"`
	} `json:"price"`
	Promotions *struct {
		PromotionalOffers         []offerGroupWire `json:"promotionalOffers"`
		UpcomingPromotionalOffers []offerGroupWire `json:"upcomingPromotionalOffers"`
	} `json:"promotions"`
}

// FreeGames fetches the promotions feed for the given locale and country.
// Entries without promotion data (the feed pads itself with regular store
// items) are dropped; the rest are split into current and upcoming
// giveaways.
func (c *Client) FreeGames(ctx context.Context, locale, country string) (Promotions, error) {
	q := url.Values{}
	q.Set("locale", locale)
	q.Set("country", country)
	q.Set("allowCountries", country)
	u := fmt.Sprintf("%s/freeGamesPromotions?%s", c.cfg.BaseURL, q.Encode())

	var out struct {
		Data struct {
			Catalog struct {
				SearchStore struct {
					Elements []elementWire `json:"elements"`
				} `json:"searchStore"`
			} `json:"Catalog"`
		} `json:"data"`
	}
	if err := c.http.GetJSON(ctx, u, &out); err != nil {
		return Promotions{}, fmt.Errorf("free games promotions: %w", err)
	}

	promos := Promotions{
		Current:  make([]FreeGame, 0),
		Upcoming: make([]FreeGame, 0),
	}

	for _, el := range out.Data.Catalog.SearchStore.Elements {
		if el.Promotions == nil {
			continue
		}

		if offer, ok := firstOffer(el.Promotions.PromotionalOffers); ok {
			// A live giveaway has its discount already applied, so the
			// effective price is zero. Ordinary sales also show up here
			// and are skipped.
			if el.Price.TotalPrice.DiscountPrice == 0 {
				promos.Current = append(promos.Current, newFreeGame(el, offer))
			}
			continue
		}

		if offer, ok := firstOffer(el.Promotions.UpcomingPromotionalOffers); ok {
			// Upcoming entries keep their normal price until the offer
			// starts; a zero discount percentage marks a full giveaway.
			if offer.DiscountSetting.DiscountPercentage == 0 {
				promos.Upcoming = append(promos.Upcoming, newFreeGame(el, offer))
			}
		}
	}

	return promos, nil
}

func firstOffer(groups []offerGroupWire) (offerWire, bool) {
	for _, g := range groups {
		if len(g.PromotionalOffers) > 0 {
			return g.PromotionalOffers[0], true
		}
	}
	return offerWire{}, false
}

func newFreeGame(el elementWire, offer offerWire) FreeGame {
	return FreeGame{
		Title:         el.Title,
		Description:   el.Description,
		Seller:        el.Seller.Name,
		ImageURL:      pickImage(el),
		OriginalPrice: el.Price.TotalPrice.OriginalPrice,
		DiscountPrice: el.Price.TotalPrice.DiscountPrice,
		PriceDisplay:  el.Price.TotalPrice.FmtPrice.OriginalPrice,
		StartDate:     offer.StartDate,
		EndDate:       offer.EndDate,
	}
}

// pickImage prefers the wide storefront artwork and falls back to
// whatever image the entry carries first.
func pickImage(el elementWire) string {
	for _, img := range el.KeyImages {
		if img.Type == "OfferImageWide" {
			return img.URL
		}
	}
	if len(el.KeyImages) > 0 {
		return el.KeyImages[0].URL
	}
	return ""
}
