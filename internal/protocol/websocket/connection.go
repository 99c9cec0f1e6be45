package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrConnectionClosed is returned when the connection was closed locally.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrConnectionNotConnected is returned when trying to use a disconnected connection.
	ErrConnectionNotConnected = errors.New("connection not connected")
)

// State represents the state of a connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds stream connection configuration.
type Config struct {
	// ConnectTimeout bounds the handshake.
	ConnectTimeout time.Duration

	// WriteTimeout is the timeout for write operations.
	WriteTimeout time.Duration

	// PingInterval is the interval between ping messages. 0 disables pings.
	PingInterval time.Duration

	// PongTimeout is how long a read may wait for any frame, pongs included.
	PongTimeout time.Duration

	// MaxMessageSize is the maximum size of a message in bytes.
	MaxMessageSize int64

	// ReconnectDelay is the delay before attempting to reconnect.
	ReconnectDelay time.Duration

	// MaxReconnects is the number of consecutive failed attempts tolerated
	// before giving up. Negative means retry forever.
	MaxReconnects int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 1 << 20,
		ReconnectDelay: 5 * time.Second,
		MaxReconnects:  5,
	}
}

// Connection is a client connection to the change stream. It may be
// reconnected after it drops.
type Connection struct {
	endpoint string
	config   *Config
	headers  http.Header

	mu      sync.RWMutex
	writeMu sync.Mutex
	state   State
	conn    *websocket.Conn
	done    chan struct{}
	err     error

	onMessage     func(*Message)
	onStateChange func(State)

	lastPing time.Time
	lastPong time.Time
}

// NewConnection creates a disconnected connection to endpoint.
func NewConnection(endpoint string, config *Config) *Connection {
	if config == nil {
		config = DefaultConfig()
	}
	done := make(chan struct{})
	close(done)
	return &Connection{
		endpoint: endpoint,
		config:   config,
		headers:  make(http.Header),
		state:    StateDisconnected,
		done:     done,
	}
}

// Endpoint returns the connection endpoint.
func (c *Connection) Endpoint() string {
	return c.endpoint
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetHeader sets a handshake header.
func (c *Connection) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(key, value)
}

// OnMessage sets the callback invoked, in order, for every data frame.
func (c *Connection) OnMessage(fn func(*Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnStateChange sets the state change callback.
func (c *Connection) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// Done is closed when the current session ends.
func (c *Connection) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Err returns why the last session ended. It is ErrConnectionClosed after
// Close and nil while connected.
func (c *Connection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Connect dials the endpoint and starts reading.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.setState(StateConnecting)
	headers := c.headers.Clone()
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.ConnectTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(connectCtx, c.endpoint, headers)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			err = fmt.Errorf("failed to connect: %w (HTTP %d)", err, resp.StatusCode)
		} else {
			err = fmt.Errorf("failed to connect: %w", err)
		}
		c.mu.Lock()
		c.err = err
		c.setState(StateError)
		c.mu.Unlock()
		return err
	}
	resp.Body.Close()

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		if c.config.PongTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
		}
		return nil
	})

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.err = nil
	c.setState(StateConnected)
	c.mu.Unlock()

	go c.readLoop(conn, done)
	if c.config.PingInterval > 0 {
		go c.pingLoop(conn, done)
	}

	return nil
}

// readLoop delivers frames until the session ends.
func (c *Connection) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		if c.config.PongTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = fmt.Errorf("server closed stream: %w", err)
			}
			c.handleDisconnect(conn, done, err)
			return
		}

		mt := MessageTypeText
		if msgType == websocket.BinaryMessage {
			mt = MessageTypeBinary
		}

		c.mu.RLock()
		fn := c.onMessage
		c.mu.RUnlock()
		if fn != nil {
			fn(NewMessage(mt, data))
		}
	}
}

// pingLoop sends periodic ping messages.
func (c *Connection) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.lastPing = time.Now()
			c.mu.Unlock()

			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				c.handleDisconnect(conn, done, fmt.Errorf("ping failed: %w", err))
				return
			}
		}
	}
}

// Send writes a text frame.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrConnectionNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.WriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// Close ends the session with a normal closure.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.setState(StateDisconnected)
		return nil
	}

	c.setState(StateDisconnecting)
	c.err = ErrConnectionClosed
	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := c.conn.Close()
	c.conn = nil
	c.setState(StateDisconnected)
	return err
}

// handleDisconnect ends the session conn belongs to, if it is still current.
func (c *Connection) handleDisconnect(conn *websocket.Conn, done chan struct{}, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}

	c.err = cause
	close(done)
	c.conn.Close()
	c.conn = nil
	c.setState(StateDisconnected)
}

// setState sets the connection state and notifies listeners.
// Must be called with mu held.
func (c *Connection) setState(state State) {
	if c.state == state {
		return
	}
	c.state = state

	if c.onStateChange != nil {
		go c.onStateChange(state)
	}
}

// LastPing returns the time of the last ping sent.
func (c *Connection) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

// LastPong returns the time of the last pong received.
func (c *Connection) LastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}
