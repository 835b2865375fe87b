// Package steam queries the Steam Web API for player counts and app news.
package steam

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream"
)

type Config struct {
	BaseURL  string // default: https://api.steampowered.com
	Upstream upstream.Config
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.steampowered.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return cfg
}

// NewsItem is a single entry from an app's news feed.
type NewsItem struct {
	ID       string
	Title    string
	URL      string
	Author   string
	Contents string
	Date     time.Time
}

type Client struct {
	cfg  Config
	http *upstream.Client
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		cfg:  cfg,
		http: upstream.NewClient("steam", cfg.Upstream, logger),
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	return c.http.Close()
}

// PlayerCount returns the number of players currently in the given app.
func (c *Client) PlayerCount(ctx context.Context, appID string) (int, error) {
	q := url.Values{}
	q.Set("appid", appID)
	u := fmt.Sprintf("%s/ISteamUserStats/GetNumberOfCurrentPlayers/v1/?%s", c.cfg.BaseURL, q.Encode())

	var out struct {
		Response struct {
			PlayerCount int `json:"player_count"`
			Result      int `json:"result"`
		} `json:"response"`
	}
	if err := c.http.GetJSON(ctx, u, &out); err != nil {
		return 0, fmt.Errorf("player count for app %s: %w", appID, err)
	}

	// Steam signals unknown apps with result != 1 inside a 200 response.
	if out.Response.Result != 1 {
		return 0, fmt.Errorf("player count for app %s: steam result %d", appID, out.Response.Result)
	}
	return out.Response.PlayerCount, nil
}

// News returns up to count news items for the given app, with article
// bodies truncated to maxLength characters by the API.
func (c *Client) News(ctx context.Context, appID string, count, maxLength int) ([]NewsItem, error) {
	q := url.Values{}
	q.Set("appid", appID)
	q.Set("count", strconv.Itoa(count))
	q.Set("maxlength", strconv.Itoa(maxLength))
	u := fmt.Sprintf("%s/ISteamNews/GetNewsForApp/v2/?%s", c.cfg.BaseURL, q.Encode())

	var out struct {
		AppNews struct {
			NewsItems []struct {
				GID      string `json:"gid"`
				Title    string `json:"title"`
				URL      string `json:"url"`
				Author   string `json:"author"`
				Contents string `json:"contents"`
				Date     int64  `json:"date"`
			} `json:"newsitems"`
		} `json:"appnews"`
	}
	if err := c.http.GetJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("news for app %s: %w", appID, err)
	}

	items := make([]NewsItem, 0, len(out.AppNews.NewsItems))
	for _, n := range out.AppNews.NewsItems {
		items = append(items, NewsItem{
			ID:       n.GID,
			Title:    n.Title,
			URL:      n.URL,
			Author:   n.Author,
			Contents: n.Contents,
			Date:     time.Unix(n.Date, 0).UTC(),
		})
	}
	return items, nil
}
