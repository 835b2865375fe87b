package epic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream"
)

const promotionsFixture = `{
	"data": {
		"Catalog": {
			"searchStore": {
				"elements": [
					{
						"title": "Ghost Runner",
						"description": "Run on walls.",
						"seller": {"name": "505 Games"},
						"keyImages": [
							{"type": "Thumbnail", "url": "https://cdn.example.com/thumb.jpg"},
							{"type": "OfferImageWide", "url": "https://cdn.example.com/wide.jpg"}
						],
						"price": {
							"totalPrice": {
								"discountPrice": 0,
								"originalPrice": 2999,
								"fmtPrice": {"originalPrice": "$29.99"}
							}
						},
						"promotions": {
							"promotionalOffers": [
								{"promotionalOffers": [
									{
										"startDate": "2023-11-16T16:00:00.000Z",
										"endDate": "2023-11-23T16:00:00.000Z",
										"discountSetting": {"discountType": "PERCENTAGE", "discountPercentage": 0}
									}
								]}
							],
							"upcomingPromotionalOffers": []
						}
					},
					{
						"title": "Deep Rock",
						"description": "Rock and stone.",
						"seller": {"name": "Coffee Stain"},
						"keyImages": [
							{"type": "Thumbnail", "url": "https://cdn.example.com/drg.jpg"}
						],
						"price": {
							"totalPrice": {
								"discountPrice": 2999,
								"originalPrice": 2999,
								"fmtPrice": {"originalPrice": "$29.99"}
							}
						},
						"promotions": {
							"promotionalOffers": [],
							"upcomingPromotionalOffers": [
								{"promotionalOffers": [
									{
										"startDate": "2023-11-23T16:00:00.000Z",
										"endDate": "2023-11-30T16:00:00.000Z",
										"discountSetting": {"discountType": "PERCENTAGE", "discountPercentage": 0}
									}
								]}
							]
						}
					},
					{
						"title": "Just A Sale",
						"description": "Half off.",
						"seller": {"name": "Someone"},
						"keyImages": [],
						"price": {
							"totalPrice": {
								"discountPrice": 1499,
								"originalPrice": 2999,
								"fmtPrice": {"originalPrice": "$29.99"}
							}
						},
						"promotions": {
							"promotionalOffers": [
								{"promotionalOffers": [
									{
										"startDate": "2023-11-16T16:00:00.000Z",
										"endDate": "2023-11-23T16:00:00.000Z",
										"discountSetting": {"discountType": "PERCENTAGE", "discountPercentage": 50}
									}
								]}
							],
							"upcomingPromotionalOffers": []
						}
					},
					{
						"title": "Store Filler",
						"description": "Not in a promotion.",
						"seller": {"name": "Someone Else"},
						"keyImages": [],
						"price": {
							"totalPrice": {
								"discountPrice": 5999,
								"originalPrice": 5999,
								"fmtPrice": {"originalPrice": "$59.99"}
							}
						},
						"promotions": null
					}
				]
			}
		}
	}
}`

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

func TestFreeGames(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freeGamesPromotions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("locale") != "en-US" || q.Get("country") != "US" || q.Get("allowCountries") != "US" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(promotionsFixture))
	}))

	promos, err := c.FreeGames(context.Background(), "en-US", "US")
	if err != nil {
		t.Fatalf("FreeGames: %v", err)
	}

	if len(promos.Current) != 1 {
		t.Fatalf("expected 1 current giveaway, got %d", len(promos.Current))
	}
	cur := promos.Current[0]
	if cur.Title != "Ghost Runner" {
		t.Fatalf("unexpected current title %q", cur.Title)
	}
	if cur.ImageURL != "https://cdn.example.com/wide.jpg" {
		t.Fatalf("expected the wide image, got %q", cur.ImageURL)
	}
	if cur.PriceDisplay != "$29.99" || cur.OriginalPrice != 2999 || cur.DiscountPrice != 0 {
		t.Fatalf("unexpected pricing %+v", cur)
	}
	if cur.StartDate == nil || cur.EndDate == nil {
		t.Fatal("expected offer dates")
	}
	if want := time.Date(2023, 11, 16, 16, 0, 0, 0, time.UTC); !cur.StartDate.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, cur.StartDate)
	}

	if len(promos.Upcoming) != 1 {
		t.Fatalf("expected 1 upcoming giveaway, got %d", len(promos.Upcoming))
	}
	if promos.Upcoming[0].Title != "Deep Rock" {
		t.Fatalf("unexpected upcoming title %q", promos.Upcoming[0].Title)
	}
}

func TestFreeGamesEmptyFeed(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"Catalog":{"searchStore":{"elements":[]}}}}`))
	}))

	promos, err := c.FreeGames(context.Background(), "en-US", "US")
	if err != nil {
		t.Fatalf("FreeGames: %v", err)
	}
	if promos.Current == nil || promos.Upcoming == nil {
		t.Fatal("expected non-nil slices for an empty feed")
	}
	if len(promos.Current) != 0 || len(promos.Upcoming) != 0 {
		t.Fatalf("expected empty promotions, got %+v", promos)
	}
}
