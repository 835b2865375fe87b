package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/handlers"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/metrics"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/middleware"
)

// Handlers bundles the endpoint handlers the router mounts.
type Handlers struct {
	Servers *handlers.ServersHandler
	Roblox  *handlers.RobloxHandler
	Steam   *handlers.SteamHandler
	Epic    *handlers.EpicHandler
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	// The API is public and read-only; any origin may call it.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(15 * time.Second)) // request deadline

	// routes
	r.Route("/conduitapi", func(r chi.Router) {
		r.Get("/servers/status", h.Servers.Status)
		r.Get("/roblox/status", h.Roblox.Status)
		r.Get("/roblox/universe", h.Roblox.Universe)
		r.Get("/steam/players", h.Steam.Players)
		r.Get("/steam/news", h.Steam.News)
		r.Get("/epic/free-games", h.Epic.FreeGames)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
