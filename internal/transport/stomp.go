// Package transport provides the production broker client: STOMP framing
// carried over a WebSocket connection.
package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"marketchat/internal/constants"
	apperrors "marketchat/internal/errors"
	"marketchat/internal/session"
	"marketchat/pkg/circuitbreaker"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"
	"github.com/sirupsen/logrus"
)

// Config holds the broker endpoint settings.
type Config struct {
	URL         string
	Login       string
	Passcode    string
	Heartbeat   time.Duration
	DialTimeout time.Duration
}

// Client speaks STOMP over a WebSocket and satisfies session.Broker.
// A Client holds at most one live connection; Connect after Disconnect
// establishes a fresh one.
type Client struct {
	cfg     Config
	logger  *logrus.Logger
	breaker *circuitbreaker.CircuitBreaker

	mu   sync.Mutex
	ws   *websocket.Conn
	conn *stomp.Conn
	subs []*stomp.Subscription
}

// NewClient creates an unconnected broker client.
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = time.Duration(constants.DefaultHeartbeatSec) * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = time.Duration(constants.DefaultDialTimeoutSec) * time.Second
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		breaker: circuitbreaker.New("broker-send", constants.SendBreakerMaxFailures, time.Duration(constants.SendBreakerCooldownSec)*time.Second, logger),
	}
}

// Connect dials the WebSocket endpoint and performs the STOMP handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	endpoint, err := url.Parse(c.cfg.URL)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "invalid broker URL")
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return apperrors.WrapRetryable(err, apperrors.ErrCodeTransport, "websocket dial failed")
	}
	// STOMP frames are large relative to the library default read limit.
	ws.SetReadLimit(1 << 20)

	// The net.Conn adapter must outlive the dial context; reads and writes
	// carry their own deadlines through the STOMP heartbeating.
	netConn := websocket.NetConn(context.Background(), ws, websocket.MessageText)

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(c.cfg.Heartbeat, c.cfg.Heartbeat),
		stomp.ConnOpt.Host(endpoint.Host),
	}
	if c.cfg.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(c.cfg.Login, c.cfg.Passcode))
	}

	conn, err := stomp.Connect(netConn, opts...)
	if err != nil {
		_ = ws.Close(websocket.StatusProtocolError, "stomp handshake failed")
		return apperrors.WrapRetryable(err, apperrors.ErrCodeTransport, "stomp handshake failed")
	}

	c.ws = ws
	c.conn = conn
	c.subs = nil
	c.logger.WithField("url", c.cfg.URL).Info("Connected to broker")
	return nil
}

// Subscribe attaches to a destination and adapts the STOMP message stream
// into session frames. The returned channel is closed when the subscription
// ends; a transport failure surfaces as a frame with Err set first.
func (c *Client) Subscribe(destination string) (<-chan session.Frame, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, apperrors.New(apperrors.ErrCodeTransport, "not connected")
	}

	sub, err := conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSubscribe, "subscribe failed").WithContext("destination", destination)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	out := make(chan session.Frame)
	go func() {
		defer close(out)
		for msg := range sub.C {
			if msg.Err != nil {
				out <- session.Frame{Err: msg.Err}
				return
			}
			out <- session.Frame{Body: msg.Body}
		}
	}()
	return out, nil
}

// Send publishes a frame to a destination. Sends run through a circuit
// breaker so a dead broker fails fast instead of blocking every publish on
// a doomed write.
func (c *Client) Send(destination, contentType string, body []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return apperrors.New(apperrors.ErrCodeTransport, "not connected")
	}
	err := c.breaker.Do(func() error {
		return conn.Send(destination, contentType, body)
	})
	if err != nil {
		return apperrors.WrapRetryable(err, apperrors.ErrCodeBrokerSend, "send failed").WithContext("destination", destination)
	}
	return nil
}

// Disconnect tears down the STOMP session and the underlying WebSocket.
// Safe to call repeatedly and on a client that never connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	ws := c.ws
	subs := c.subs
	c.conn = nil
	c.ws = nil
	c.subs = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	for _, sub := range subs {
		if sub.Active() {
			_ = sub.Unsubscribe()
		}
	}
	// Disconnect sends the STOMP DISCONNECT frame; the websocket close is
	// best-effort afterwards since the peer may already be gone.
	err := conn.Disconnect()
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}
	if err != nil {
		c.logger.WithError(err).Debug("STOMP disconnect returned an error")
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "disconnect failed")
	}
	c.logger.Info("Disconnected from broker")
	return nil
}

var _ session.Broker = (*Client)(nil)
