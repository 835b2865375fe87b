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
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/minecraft"
	"github.com/NickDoxa/ConduitStatusCheckAPI/pkg/logging"
)

// ServersHandler holds dependencies for the /conduitapi/servers endpoints.
type ServersHandler struct {
	Pinger   minecraft.Pinger
	Cache    *cache.TimedCache[minecraft.ServerStatus]
	CacheTTL time.Duration
}

func NewServersHandler(p minecraft.Pinger, c *cache.TimedCache[minecraft.ServerStatus], ttl time.Duration) *ServersHandler {
	return &ServersHandler{
		Pinger:   p,
		Cache:    c,
		CacheTTL: ttl,
	}
}

type serverStatusResponse struct {
	IsOnline      bool      `json:"isOnline"`
	OnlinePlayers *int      `json:"onlinePlayers"`
	MaxPlayers    *int      `json:"maxPlayers"`
	Ping          *float64  `json:"ping"` // milliseconds
	Version       *string   `json:"version"`
	Description   *string   `json:"description"`
	Icon          *string   `json:"icon"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Status handles GET /conduitapi/servers/status.
func (h *ServersHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	host := strings.TrimSpace(r.URL.Query().Get("host"))
	if host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}

	port := 0
	if raw := r.URL.Query().Get("server_port"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 || p > 65535 {
			writeError(w, http.StatusBadRequest, "server_port must be a port number")
			return
		}
		port = p
	}

	key := fmt.Sprintf("host=%s|port=%d", host, port)
	// The fetch is detached from this request: a caller that disconnects
	// must not fail the flight for coalesced waiters. The ping's own
	// timeout still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	st, err := h.Cache.GetOrFetch(ctx, key, h.CacheTTL, func() (minecraft.ServerStatus, error) {
		return h.Pinger.Status(fetchCtx, host, port)
	})
	if err != nil {
		logger.Warn("server status fetch failed",
			zap.String("host", host),
			zap.Int("port", port),
			zap.Error(err),
		)
		writeFetchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newServerStatusResponse(st))
}

func newServerStatusResponse(st minecraft.ServerStatus) serverStatusResponse {
	resp := serverStatusResponse{
		IsOnline:  st.Online,
		CheckedAt: st.CheckedAt,
	}
	if !st.Online {
		return resp
	}

	ping := float64(st.Latency.Nanoseconds()) / float64(time.Millisecond)
	resp.OnlinePlayers = &st.Players
	resp.MaxPlayers = &st.MaxPlayers
	resp.Ping = &ping
	resp.Version = &st.Version
	resp.Description = &st.MOTD
	if st.Icon != "" {
		resp.Icon = &st.Icon
	}
	return resp
}
