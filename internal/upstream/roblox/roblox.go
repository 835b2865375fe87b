// Package roblox queries the public Roblox web APIs for place and
// universe information.
package roblox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream"
)

type Config struct {
	APIBaseURL   string // default: https://apis.roblox.com
	GamesBaseURL string // default: https://games.roblox.com
	Upstream     upstream.Config
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://apis.roblox.com"
	}
	if cfg.GamesBaseURL == "" {
		cfg.GamesBaseURL = "https://games.roblox.com"
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.GamesBaseURL = strings.TrimRight(cfg.GamesBaseURL, "/")

	return cfg
}

// GameStatus describes the live state of a Roblox experience.
type GameStatus struct {
	Online      bool
	Playing     int64
	MaxPlayers  int
	Name        string
	Description string
	RootPlaceID string
}

type Client struct {
	cfg  Config
	http *upstream.Client
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		cfg:  cfg,
		http: upstream.NewClient("roblox", cfg.Upstream, logger),
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	return c.http.Close()
}

// ResolveUniverse maps a place ID to its universe ID. Unknown places
// resolve to the empty string rather than an error, matching how the
// API reports them (404 or a null universeId).
func (c *Client) ResolveUniverse(ctx context.Context, placeID string) (string, error) {
	u := fmt.Sprintf("%s/universes/v1/places/%s/universe", c.cfg.APIBaseURL, url.PathEscape(placeID))

	var out struct {
		UniverseID *int64 `json:"universeId"`
	}
	if err := c.http.GetJSON(ctx, u, &out); err != nil {
		var serr *upstream.StatusError
		if errors.As(err, &serr) && serr.StatusCode == 404 {
			return "", nil
		}
		return "", fmt.Errorf("resolve universe for place %s: %w", placeID, err)
	}

	if out.UniverseID == nil {
		return "", nil
	}
	return strconv.FormatInt(*out.UniverseID, 10), nil
}

// GameInfo fetches live player counts and metadata for a universe. A
// universe the API does not know about comes back as an offline status,
// not an error.
func (c *Client) GameInfo(ctx context.Context, universeID string) (GameStatus, error) {
	u := fmt.Sprintf("%s/v1/games?universeIds=%s", c.cfg.GamesBaseURL, url.QueryEscape(universeID))

	var out struct {
		Data []struct {
			RootPlaceID int64  `json:"rootPlaceId"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Playing     int64  `json:"playing"`
			MaxPlayers  int    `json:"maxPlayers"`
		} `json:"data"`
	}
	if err := c.http.GetJSON(ctx, u, &out); err != nil {
		return GameStatus{}, fmt.Errorf("game info for universe %s: %w", universeID, err)
	}

	if len(out.Data) == 0 {
		return GameStatus{Online: false}, nil
	}

	g := out.Data[0]
	st := GameStatus{
		Online:      true,
		Playing:     g.Playing,
		MaxPlayers:  g.MaxPlayers,
		Name:        g.Name,
		Description: g.Description,
	}
	if g.RootPlaceID != 0 {
		st.RootPlaceID = strconv.FormatInt(g.RootPlaceID, 10)
	}
	return st, nil
}
