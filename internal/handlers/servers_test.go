package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/cache"
	"github.com/NickDoxa/ConduitStatusCheckAPI/internal/upstream/minecraft"
	"github.com/NickDoxa/ConduitStatusCheckAPI/pkg/logging"
)

type fakePinger struct {
	calls  int
	status minecraft.ServerStatus
	err    error
}

func (f *fakePinger) Status(ctx context.Context, host string, port int) (minecraft.ServerStatus, error) {
	f.calls++
	if f.err != nil {
		return minecraft.ServerStatus{}, f.err
	}
	return f.status, nil
}

// newTestRequest builds a GET request carrying a test logger in its context.
func newTestRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(logging.WithLogger(req.Context(), zaptest.NewLogger(t)))
}

func TestServersStatusOnline(t *testing.T) {
	pinger := &fakePinger{
		status: minecraft.ServerStatus{
			Online:     true,
			Players:    17,
			MaxPlayers: 100,
			Latency:    42 * time.Millisecond,
			Version:    "1.20.4",
			MOTD:       "A Minecraft Server",
			Icon:       "data:image/png;base64,AAAA",
			CheckedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	h := NewServersHandler(pinger, cache.New[minecraft.ServerStatus]("minecraft", zaptest.NewLogger(t)), time.Minute)

	rr := httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=mc.example.com"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["isOnline"] != true {
		t.Fatalf("expected isOnline true, got %v", resp["isOnline"])
	}
	if resp["onlinePlayers"] != float64(17) {
		t.Fatalf("expected 17 players, got %v", resp["onlinePlayers"])
	}
	if resp["ping"] != float64(42) {
		t.Fatalf("expected 42ms ping, got %v", resp["ping"])
	}
	if resp["version"] != "1.20.4" {
		t.Fatalf("unexpected version %v", resp["version"])
	}
	if resp["icon"] != "data:image/png;base64,AAAA" {
		t.Fatalf("unexpected icon %v", resp["icon"])
	}

	// Identical request inside the TTL is served from the cache.
	rr = httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=mc.example.com"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if pinger.calls != 1 {
		t.Fatalf("expected 1 ping for 2 requests, got %d", pinger.calls)
	}
}

func TestServersStatusOffline(t *testing.T) {
	pinger := &fakePinger{
		status: minecraft.ServerStatus{
			Online:    false,
			CheckedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	h := NewServersHandler(pinger, cache.New[minecraft.ServerStatus]("minecraft", zaptest.NewLogger(t)), time.Minute)

	rr := httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=down.example.com"))

	if rr.Code != http.StatusOK {
		t.Fatalf("offline is a status, not an error; got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["isOnline"] != false {
		t.Fatalf("expected isOnline false, got %v", resp["isOnline"])
	}
	for _, field := range []string{"onlinePlayers", "maxPlayers", "ping", "version", "description", "icon"} {
		v, present := resp[field]
		if !present {
			t.Fatalf("expected %s to be present", field)
		}
		if v != nil {
			t.Fatalf("expected %s to be null, got %v", field, v)
		}
	}
}

func TestServersStatusParamValidation(t *testing.T) {
	pinger := &fakePinger{}
	h := NewServersHandler(pinger, cache.New[minecraft.ServerStatus]("minecraft", zaptest.NewLogger(t)), time.Minute)

	cases := []struct {
		name   string
		target string
	}{
		{"missing host", "/conduitapi/servers/status"},
		{"port not a number", "/conduitapi/servers/status?host=mc.example.com&server_port=abc"},
		{"port out of range", "/conduitapi/servers/status?host=mc.example.com&server_port=70000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Status(rr, newTestRequest(t, tc.target))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
	if pinger.calls != 0 {
		t.Fatalf("invalid params must not reach the pinger, got %d calls", pinger.calls)
	}
}

func TestServersStatusPortAffectsKey(t *testing.T) {
	pinger := &fakePinger{
		status: minecraft.ServerStatus{Online: true, CheckedAt: time.Now().UTC()},
	}
	h := NewServersHandler(pinger, cache.New[minecraft.ServerStatus]("minecraft", zaptest.NewLogger(t)), time.Minute)

	rr := httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=mc.example.com"))
	rr = httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=mc.example.com&server_port=25566"))

	if pinger.calls != 2 {
		t.Fatalf("distinct ports must be distinct cache keys, got %d calls", pinger.calls)
	}
}

// blockingPinger holds every probe until release is closed.
type blockingPinger struct {
	calls   atomic.Int32
	release chan struct{}
	status  minecraft.ServerStatus
}

func (b *blockingPinger) Status(ctx context.Context, host string, port int) (minecraft.ServerStatus, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
		return b.status, nil
	case <-ctx.Done():
		return minecraft.ServerStatus{}, ctx.Err()
	}
}

func TestServersStatusCanceledRequestStillPopulatesCache(t *testing.T) {
	pinger := &blockingPinger{
		release: make(chan struct{}),
		status:  minecraft.ServerStatus{Online: true, CheckedAt: time.Now().UTC()},
	}
	h := NewServersHandler(pinger, cache.New[minecraft.ServerStatus]("minecraft", zaptest.NewLogger(t)), time.Minute)

	req := newTestRequest(t, "/conduitapi/servers/status?host=mc.example.com")
	ctx, cancel := context.WithCancel(req.Context())
	cancel()

	rr := httptest.NewRecorder()
	h.Status(rr, req.WithContext(ctx))
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 for a canceled request, got %d", rr.Code)
	}

	// The probe was not canceled with its caller; once it completes, the
	// entry is served without pinging again.
	close(pinger.release)
	rr = httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=mc.example.com"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := pinger.calls.Load(); got != 1 {
		t.Fatalf("expected the abandoned probe to be reused, got %d pings", got)
	}
}

func TestServersStatusUpstreamError(t *testing.T) {
	pinger := &fakePinger{err: context.DeadlineExceeded}
	h := NewServersHandler(pinger, cache.New[minecraft.ServerStatus]("minecraft", zaptest.NewLogger(t)), time.Minute)

	rr := httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=slow.example.com"))

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 for a deadline error, got %d", rr.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "gateway_timeout" {
		t.Fatalf("unexpected error body %q", resp.Error)
	}

	// The failure is not cached; the next request pings again.
	rr = httptest.NewRecorder()
	h.Status(rr, newTestRequest(t, "/conduitapi/servers/status?host=slow.example.com"))
	if pinger.calls != 2 {
		t.Fatalf("expected a second ping after a failure, got %d", pinger.calls)
	}
}
