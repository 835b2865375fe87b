package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/cache"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/handlers"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/httpserver"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/metrics"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/epic"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/minecraft"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/roblox"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/steam"
	"github.com/NickDoxa/ConduitStatusCheckAPI/pkg/logging"
)

type Config struct {
	Port            string
	MinecraftTTL    time.Duration
	RobloxTTL       time.Duration
	SteamTTL        time.Duration
	EpicTTL         time.Duration
	UpstreamTimeout time.Duration
	PingTimeout     time.Duration
}

func LoadConfig() Config {
	return Config{
		Port:            getenv("PORT", "7000"),
		MinecraftTTL:    getenvDuration("MINECRAFT_CACHE_TTL", 60*time.Second),
		RobloxTTL:       getenvDuration("ROBLOX_CACHE_TTL", 600*time.Second),
		SteamTTL:        getenvDuration("STEAM_CACHE_TTL", 600*time.Second),
		EpicTTL:         getenvDuration("EPIC_CACHE_TTL", 900*time.Second),
		UpstreamTimeout: getenvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		PingTimeout:     getenvDuration("PING_TIMEOUT", 5*time.Second),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("statusapi exited with error: %v", err)
	}
}

func run() error {
	// ----- Environment -----
	// A .env file is optional; values already in the environment win.
	_ = godotenv.Load()

	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.Duration("minecraft_ttl", cfg.MinecraftTTL),
		zap.Duration("roblox_ttl", cfg.RobloxTTL),
		zap.Duration("steam_ttl", cfg.SteamTTL),
		zap.Duration("epic_ttl", cfg.EpicTTL),
		zap.Duration("upstream_timeout", cfg.UpstreamTimeout),
		zap.Duration("ping_timeout", cfg.PingTimeout),
	)

	// ----- Upstream clients -----
	upCfg := upstream.Config{Timeout: cfg.UpstreamTimeout}

	pinger := minecraft.NewPinger(minecraft.Config{Timeout: cfg.PingTimeout}, logger)
	robloxClient := roblox.NewClient(roblox.Config{Upstream: upCfg}, logger)
	defer robloxClient.Close()
	steamClient := steam.NewClient(steam.Config{Upstream: upCfg}, logger)
	defer steamClient.Close()
	epicClient := epic.NewClient(epic.Config{Upstream: upCfg}, logger)
	defer epicClient.Close()

	// ----- Caches (one per cached result type) -----
	serverCache := cache.New[minecraft.ServerStatus]("minecraft", logger)
	robloxStatusCache := cache.New[roblox.GameStatus]("roblox_status", logger)
	universeCache := cache.New[string]("roblox_universe", logger)
	playersCache := cache.New[int]("steam_players", logger)
	newsCache := cache.New[[]steam.NewsItem]("steam_news", logger)
	epicCache := cache.New[epic.Promotions]("epic_free_games", logger)

	// ----- Handlers -----
	h := httpserver.Handlers{
		Servers: handlers.NewServersHandler(pinger, serverCache, cfg.MinecraftTTL),
		Roblox:  handlers.NewRobloxHandler(robloxClient, robloxStatusCache, universeCache, cfg.RobloxTTL),
		Steam:   handlers.NewSteamHandler(steamClient, playersCache, newsCache, cfg.SteamTTL),
		Epic:    handlers.NewEpicHandler(epicClient, epicCache, cfg.EpicTTL),
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting statusapi",
		zap.String("addr", srv.Addr),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvDuration reads key as a Go duration ("10m") or bare seconds
// ("600"), falling back to def when unset or unparseable.
func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
