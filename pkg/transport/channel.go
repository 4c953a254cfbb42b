// Package transport connects to the real-time session and splits its traffic:
// binary frames carry the agent's audio, text frames carry the out-of-band
// JSON control messages. The engine never touches the wire; it only sees the
// callbacks.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	defaultReadLimit    = 10 * 1024 * 1024
	defaultPingInterval = 5 * time.Second
)

// Quality bands for the ping round-trip, coarse on purpose: the UI only shows
// a label.
const (
	QualityUnknown = "unknown"
	QualityGood    = "good"
	QualityFair    = "fair"
	QualityPoor    = "poor"
)

// Callbacks are invoked from the channel's read and ping loops. OnAudio and
// OnControl must not block; the read loop is the only reader on the
// connection.
type Callbacks struct {
	// OnAudio receives one inbound agent audio frame (PCM chunk).
	OnAudio func(chunk []byte)
	// OnControl receives one raw JSON control message.
	OnControl func(raw []byte)
	// OnQuality fires when the coarse connection-quality label changes.
	OnQuality func(label string)
}

type Config struct {
	URL          string
	Token        string
	PingInterval time.Duration
	ReadLimit    int64
}

// Channel is one session's message channel.
type Channel struct {
	cfg    Config
	cb     Callbacks
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	quality string
	closed  bool
}

// Dial opens the session channel. The token rides as a query parameter, same
// as the rest of the platform's websocket endpoints.
func Dial(ctx context.Context, cfg Config, cb Callbacks, logger *zap.Logger) (*Channel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid session url: %w", err)
	}
	if cfg.Token != "" {
		q := u.Query()
		q.Set("token", cfg.Token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session: %w", err)
	}

	readLimit := cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	logger.Info("session channel connected", zap.String("host", u.Host))

	return &Channel{
		cfg:     cfg,
		cb:      cb,
		logger:  logger,
		conn:    conn,
		quality: QualityUnknown,
	}, nil
}

// Run pumps the channel until ctx is cancelled or the connection drops. A
// normal peer close returns nil.
func (c *Channel) Run(ctx context.Context) error {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx)

	for {
		messageType, payload, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("session channel read: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if c.cb.OnAudio != nil {
				c.cb.OnAudio(payload)
			}
		case websocket.MessageText:
			if c.cb.OnControl != nil {
				c.cb.OnControl(payload)
			}
		}
	}
}

// pingLoop derives the coarse quality label from ping round-trips.
func (c *Channel) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := c.conn.Ping(ctx); err != nil {
				if ctx.Err() == nil && !c.isClosed() {
					c.logger.Warn("session ping failed", zap.Error(err))
					c.setQuality(QualityPoor)
				}
				continue
			}
			c.setQuality(qualityForRTT(time.Since(start)))
		}
	}
}

func qualityForRTT(rtt time.Duration) string {
	switch {
	case rtt < 100*time.Millisecond:
		return QualityGood
	case rtt < 250*time.Millisecond:
		return QualityFair
	default:
		return QualityPoor
	}
}

func (c *Channel) setQuality(label string) {
	c.mu.Lock()
	changed := c.quality != label
	c.quality = label
	c.mu.Unlock()

	if changed {
		c.logger.Info("connection quality changed", zap.String("quality", label))
		if c.cb.OnQuality != nil {
			c.cb.OnQuality(label)
		}
	}
}

// Quality returns the current coarse connection-quality label.
func (c *Channel) Quality() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the channel down and unblocks Run.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	return conn.Close(websocket.StatusNormalClosure, "")
}
