package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantlab-io/tradecost/internal/config"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 15 * time.Second
)

// Client is a reconnecting websocket consumer for the L2 snapshot feed.
// Dials go through a circuit breaker so a flapping endpoint backs off
// instead of hammering reconnects.
type Client struct {
	cfg     config.MarketDataConfig
	handler func([]byte)
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a client delivering every raw message to handler
func NewClient(cfg config.MarketDataConfig, handler func([]byte)) *Client {
	settings := gobreaker.Settings{Name: "marketdata-dial"}
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	settings.Timeout = 30 * time.Second

	return &Client{
		cfg:     cfg,
		handler: handler,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *Client) endpoint() string {
	if strings.Contains(c.cfg.URL, "%s") {
		return fmt.Sprintf(c.cfg.URL, c.cfg.Symbol)
	}
	return c.cfg.URL
}

// Run consumes the feed until the context is canceled or the reconnect
// budget is exhausted. Each successful connection resets the budget.
func (c *Client) Run(ctx context.Context) error {
	delay := time.Duration(c.cfg.ReconnectDelay) * time.Second
	if delay <= 0 {
		delay = 5 * time.Second
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
				return fmt.Errorf("marketdata: giving up after %d connection attempts: %w", attempts, err)
			}
			log.Warn().
				Err(err).
				Int("attempt", attempts).
				Str("url", c.endpoint()).
				Msg("connection failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		attempts = 0
		log.Info().Str("url", c.endpoint()).Msg("market data connected")

		err = c.consume(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("market data stream interrupted, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, c.endpoint(), nil)
		return conn, err
	})
	if err != nil {
		return nil, err
	}
	return result.(*websocket.Conn), nil
}

// consume reads messages until the connection breaks or the context is
// canceled. A background goroutine closes the connection on cancellation
// to unblock the read.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	pingInterval := time.Duration(c.cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	pongWait := 3 * pingInterval

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		// Any inbound traffic proves liveness, with or without pongs
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handler(msg)
	}
}
