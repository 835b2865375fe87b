// Package minecraft probes Minecraft servers over the Java and Bedrock
// protocols.
package minecraft

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dreamscached/minequery/v2"
	"github.com/sandertv/go-raknet"
	"go.uber.org/zap"
)

// Default ports for the two protocol families.
const (
	DefaultJavaPort    = 25565
	DefaultBedrockPort = 19132
)

// ServerStatus is the result of probing a single server. Offline servers
// are a status, not an error.
type ServerStatus struct {
	Online     bool
	Players    int
	MaxPlayers int
	Latency    time.Duration
	Version    string
	MOTD       string
	Icon       string // data URI, empty when the server has no favicon
	CheckedAt  time.Time
}

// Pinger probes a server and reports its status. The returned error is
// reserved for the caller's context expiring; an unreachable server is
// reported as an offline ServerStatus.
type Pinger interface {
	Status(ctx context.Context, host string, port int) (ServerStatus, error)
}

type Config struct {
	Timeout time.Duration // per-protocol probe timeout (default: 5s)
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return cfg
}

// javaStatus and bedrockStatus keep the protocol libraries at the edge of
// the package; probe only ever sees these.
type javaStatus struct {
	version string
	motd    string
	online  int
	max     int
	icon    image.Image
}

type bedrockStatus struct {
	version string
	motd    string
	online  int
	max     int
}

type pinger struct {
	timeout time.Duration
	logger  *zap.Logger

	pingJava    func(host string, port int) (javaStatus, error)
	pingBedrock func(addr string, timeout time.Duration) ([]byte, error)
}

func NewPinger(cfg Config, logger *zap.Logger) Pinger {
	cfg = cfg.WithDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}

	mq := minequery.NewPinger(minequery.WithTimeout(cfg.Timeout))

	return &pinger{
		timeout: cfg.Timeout,
		logger:  logger.Named("minecraft"),
		pingJava: func(host string, port int) (javaStatus, error) {
			st, err := mq.Ping17(host, port)
			if err != nil {
				return javaStatus{}, err
			}
			return javaStatus{
				version: st.VersionName,
				motd:    st.DescriptionText(),
				online:  st.OnlinePlayers,
				max:     st.MaxPlayers,
				icon:    st.Icon,
			}, nil
		},
		pingBedrock: raknet.PingTimeout,
	}
}

// Status tries the Java protocol first and falls back to Bedrock. When
// port is zero each protocol uses its own default port.
func (p *pinger) Status(ctx context.Context, host string, port int) (ServerStatus, error) {
	ch := make(chan ServerStatus, 1)
	go func() {
		ch <- p.probe(host, port)
	}()

	select {
	case <-ctx.Done():
		return ServerStatus{}, ctx.Err()
	case st := <-ch:
		return st, nil
	}
}

func (p *pinger) probe(host string, port int) ServerStatus {
	javaPort := port
	if javaPort == 0 {
		javaPort = DefaultJavaPort
	}

	start := time.Now()
	if st, err := p.pingJava(host, javaPort); err == nil {
		latency := time.Since(start)
		p.logger.Debug("java ping succeeded",
			zap.String("host", host),
			zap.Int("port", javaPort),
			zap.Duration("latency", latency),
		)
		return ServerStatus{
			Online:     true,
			Players:    st.online,
			MaxPlayers: st.max,
			Latency:    latency,
			Version:    st.version,
			MOTD:       st.motd,
			Icon:       encodeIcon(st.icon),
			CheckedAt:  time.Now().UTC(),
		}
	} else {
		p.logger.Debug("java ping failed",
			zap.String("host", host),
			zap.Int("port", javaPort),
			zap.Error(err),
		)
	}

	bedrockPort := port
	if bedrockPort == 0 {
		bedrockPort = DefaultBedrockPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(bedrockPort))
	start = time.Now()
	if pong, err := p.pingBedrock(addr, p.timeout); err == nil {
		latency := time.Since(start)
		st, perr := parseBedrockPong(pong)
		if perr == nil {
			p.logger.Debug("bedrock ping succeeded",
				zap.String("host", host),
				zap.Int("port", bedrockPort),
				zap.Duration("latency", latency),
			)
			return ServerStatus{
				Online:     true,
				Players:    st.online,
				MaxPlayers: st.max,
				Latency:    latency,
				Version:    st.version,
				MOTD:       st.motd,
				CheckedAt:  time.Now().UTC(),
			}
		}
		p.logger.Debug("bedrock pong unparseable",
			zap.String("host", host),
			zap.Int("port", bedrockPort),
			zap.Error(perr),
		)
	} else {
		p.logger.Debug("bedrock ping failed",
			zap.String("host", host),
			zap.Int("port", bedrockPort),
			zap.Error(err),
		)
	}

	return ServerStatus{
		Online:    false,
		CheckedAt: time.Now().UTC(),
	}
}

// parseBedrockPong extracts status fields from the RakNet unconnected
// pong user data, a semicolon-separated record:
// edition;motd;protocol;version;online;max;guid;sub-motd;...
func parseBedrockPong(pong []byte) (bedrockStatus, error) {
	fields := strings.Split(string(pong), ";")
	if len(fields) < 6 {
		return bedrockStatus{}, fmt.Errorf("unconnected pong has %d fields, want at least 6", len(fields))
	}

	online, err := strconv.Atoi(fields[4])
	if err != nil {
		return bedrockStatus{}, fmt.Errorf("online players %q: %w", fields[4], err)
	}
	max, err := strconv.Atoi(fields[5])
	if err != nil {
		return bedrockStatus{}, fmt.Errorf("max players %q: %w", fields[5], err)
	}

	return bedrockStatus{
		version: fields[3],
		motd:    fields[1],
		online:  online,
		max:     max,
	}, nil
}

// encodeIcon re-encodes a server favicon as a data URI the way browsers
// expect it.
func encodeIcon(img image.Image) string {
	if img == nil {
		return ""
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
