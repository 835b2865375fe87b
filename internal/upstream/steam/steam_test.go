package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL: srv.URL,
		Upstream: upstream.Config{
			Timeout:     2 * time.Second,
			BaseBackoff: time.Millisecond,
		},
	}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return c
}

func TestPlayerCount(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISteamUserStats/GetNumberOfCurrentPlayers/v1/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("appid"); got != "730" {
			t.Errorf("unexpected appid %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"player_count":892451,"result":1}}`))
	}))

	got, err := c.PlayerCount(context.Background(), "730")
	if err != nil {
		t.Fatalf("PlayerCount: %v", err)
	}
	if got != 892451 {
		t.Fatalf("expected 892451, got %d", got)
	}
}

func TestPlayerCountUnknownApp(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"result":42}}`))
	}))

	if _, err := c.PlayerCount(context.Background(), "999999999"); err == nil {
		t.Fatal("expected an error for result != 1")
	}
}

func TestNews(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISteamNews/GetNewsForApp/v2/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("appid") != "440" || q.Get("count") != "3" || q.Get("maxlength") != "300" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"appnews":{"appid":440,"newsitems":[
			{"gid":"5124581683907377820","title":"Update released","url":"https://example.com/news/1","author":"Valve","contents":"Fixed a bug.","date":1700000000},
			{"gid":"5124581683907377821","title":"Patch notes","url":"https://example.com/news/2","author":"","contents":"More fixes.","date":1699990000}
		]}}`))
	}))

	items, err := c.News(context.Background(), "440", 3, 300)
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "5124581683907377820" {
		t.Fatalf("unexpected id %q", items[0].ID)
	}
	if items[0].Title != "Update released" {
		t.Fatalf("unexpected title %q", items[0].Title)
	}
	if want := time.Unix(1700000000, 0).UTC(); !items[0].Date.Equal(want) {
		t.Fatalf("expected date %v, got %v", want, items[0].Date)
	}
}
