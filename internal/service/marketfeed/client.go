// Package marketfeed streams live trades from a Finnhub-compatible
// WebSocket feed into the tick pipeline.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements repository.MarketStream over a WebSocket trade feed.
// Connect, Subscribe and Read are driven by the tick collector; Reconnect
// covers feed drops.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration) *Client {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

// Connect dials the feed. The API key travels as a query parameter, so it
// is escaped rather than pasted into the URL.
func (c *Client) Connect(ctx context.Context) error {
	u := c.websocketURL + "?token=" + url.QueryEscape(c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("marketfeed connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if c.l != nil {
		c.l.Info("marketfeed connected")
	}
	return nil
}

// Subscribe registers the configured symbols on the open connection.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("marketfeed not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	if c.l != nil {
		c.l.Info("marketfeed subscribed", applogger.Strings("symbols", c.symbols))
	}
	return nil
}

// feedTrade is one trade in the feed's wire format; timestamps arrive in
// milliseconds.
type feedTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"`
}

type feedMessage struct {
	Type string      `json:"type"`
	Data []feedTrade `json:"data"`
}

// Read starts the ping and read loops and streams ticks until the context
// ends or the connection breaks. A broken read surfaces on the error
// channel; the collector decides whether to Reconnect.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	go c.pingLoop(ctx)
	go c.readLoop(ctx, ticks, errs)

	return ticks, errs
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn := c.current(); conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, ticks chan<- *models.Tick, errs chan<- error) {
	defer close(ticks)
	defer close(errs)

	for ctx.Err() == nil {
		conn := c.current()
		if conn == nil {
			errs <- fmt.Errorf("marketfeed connection lost")
			return
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			errs <- fmt.Errorf("marketfeed read: %w", err)
			return
		}

		var m feedMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			// Control frames and acks share the socket; only trades matter.
			continue
		}
		for _, d := range m.Data {
			tick := &models.Tick{
				Symbol:    d.S,
				Timestamp: d.T / 1000,
				Price:     d.P,
				Volume:    d.V,
				Received:  time.Now(),
			}
			select {
			case ticks <- tick:
			default:
				// Consumer is behind; the next trade supersedes this one.
			}
		}
	}
}

// Reconnect tears the connection down, waits out the delay, and dials and
// resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
