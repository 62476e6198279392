// Package discovery streams newly created pump.fun tokens as trade candidates.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-token-trader/internal/domain"
	"solana-token-trader/internal/observability"
)

// DefaultPumpPortalURL is the PumpPortal data websocket.
const DefaultPumpPortalURL = "wss://pumpportal.fun/api/data"

// Config configures a PumpPortal source.
type Config struct {
	URL              string
	Buffer           int           // candidate channel capacity
	ReconnectInitial time.Duration // first reconnect delay
	ReconnectMax     time.Duration // reconnect delay ceiling
	ReadTimeout      time.Duration // no message for this long forces a reconnect
	Logger           zerolog.Logger
	Metrics          *observability.Metrics
	Now              func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		URL:              DefaultPumpPortalURL,
		Buffer:           256,
		ReconnectInitial: time.Second,
		ReconnectMax:     30 * time.Second,
		ReadTimeout:      2 * time.Minute,
	}
}

// PumpPortal subscribes to new-token events and emits candidates.
type PumpPortal struct {
	cfg    Config
	dialer *websocket.Dialer
}

// NewPumpPortal creates a source. Zero config fields take defaults.
func NewPumpPortal(cfg Config) *PumpPortal {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = def.ReconnectInitial
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = def.ReconnectMax
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PumpPortal{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Candidates connects in the background and streams candidates until ctx is
// done, reconnecting with exponential backoff. The channel is closed on return.
func (p *PumpPortal) Candidates(ctx context.Context) (<-chan domain.Candidate, error) {
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse discovery url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("discovery url must be ws or wss, got %q", u.Scheme)
	}

	out := make(chan domain.Candidate, p.cfg.Buffer)
	go p.run(ctx, out)
	return out, nil
}

func (p *PumpPortal) run(ctx context.Context, out chan<- domain.Candidate) {
	defer close(out)
	log := p.cfg.Logger

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.ReconnectInitial
	b.MaxInterval = p.cfg.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	detector := NewDetector(0)
	for {
		received, err := p.session(ctx, out, detector)
		if ctx.Err() != nil {
			return
		}
		if received > 0 {
			b.Reset()
		}
		wait := b.NextBackOff()
		log.Warn().Err(err).Int("received", received).Dur("retry_in", wait).Msg("discovery stream disconnected")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session runs one connection until it fails or ctx is done and returns the
// number of candidates emitted.
func (p *PumpPortal) session(ctx context.Context, out chan<- domain.Candidate, detector *Detector) (int, error) {
	conn, _, err := p.dialer.DialContext(ctx, p.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(map[string]string{"method": "subscribeNewToken"}); err != nil {
		return 0, fmt.Errorf("subscribe: %w", err)
	}
	p.cfg.Logger.Info().Str("url", p.cfg.URL).Msg("subscribed to new tokens")

	received := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, ctx.Err()
			}
			return received, fmt.Errorf("read: %w", err)
		}

		ev, ok, err := ParseMessage(data)
		if err != nil {
			p.cfg.Logger.Debug().Err(err).Msg("skipping malformed message")
			continue
		}
		if !ok || !detector.First(ev.Mint) {
			continue
		}

		c := ToCandidate(ev, p.cfg.Now())
		select {
		case out <- c:
			received++
			p.cfg.Metrics.RecordDiscovered(string(domain.SourcePumpPortal))
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}
