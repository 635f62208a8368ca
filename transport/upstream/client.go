package upstream

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
)

// Conn is the minimal connection surface the client needs. Satisfied by
// *websocket.Conn; tests substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a connection to the jam server.
type Dialer interface {
	Dial(url string) (Conn, error)
}

// gorillaDialer is the production dialer.
type gorillaDialer struct{}

func (gorillaDialer) Dial(url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MessageHandler receives every decoded application message. Heartbeat
// acknowledgments are consumed internally and never reach it.
type MessageHandler func(protocol.ServerMessage)

// StateHandler fires exactly once per connection state transition.
type StateHandler func(protocol.ConnState)

// Config carries the transport settings. All constants are fixed in
// production but overridable for testing.
type Config struct {
	URL           string
	PingInterval  time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration

	// Dialer defaults to a gorilla/websocket dialer.
	Dialer Dialer

	OnMessage     MessageHandler
	OnStateChange StateHandler
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = protocol.DefaultServerURL
	}
	if c.PingInterval <= 0 {
		c.PingInterval = protocol.DefaultPingIntervalMs * time.Millisecond
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = protocol.DefaultReconnectBaseMs * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = protocol.DefaultReconnectMaxMs * time.Millisecond
	}
	if c.Dialer == nil {
		c.Dialer = gorillaDialer{}
	}
}

// Client is the reconnecting transport to the jam server.
type Client struct {
	cfg     Config
	backoff *backoff.Backoff

	mu             sync.Mutex
	state          protocol.ConnState
	conn           Conn
	pending        []protocol.ClientMessage
	reconnectTimer *time.Timer
	pingStop       chan struct{}
	gen            int

	// writeMu serializes frames so the pending-queue flush completes
	// before any concurrent Send reaches the socket.
	writeMu sync.Mutex
}

// NewClient creates a transport with the given configuration. The client
// starts disconnected; call Connect to open the link.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:   cfg,
		state: protocol.Disconnected,
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectBase,
			Max:    cfg.ReconnectMax,
			Factor: 2,
			Jitter: false,
		},
	}
}

// State returns the current connection state.
func (c *Client) State() protocol.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens (or re-opens) the connection. Safe to call redundantly: a
// client already connecting or connected is left alone and no state hook
// fires.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == protocol.Connecting || c.state == protocol.Connected {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	gen := c.gen
	notify := c.setStateLocked(protocol.Connecting)
	c.mu.Unlock()
	notify()

	go c.dial(gen)
}

// Send delivers a client message according to the current state: written
// immediately when connected, queued when connecting, dropped when
// disconnected.
func (c *Client) Send(msg protocol.ClientMessage) {
	c.mu.Lock()
	switch c.state {
	case protocol.Connected:
		conn := c.conn
		c.mu.Unlock()
		c.write(conn, msg)
	case protocol.Connecting:
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
	default:
		// No buffering while fully down.
		c.mu.Unlock()
	}
}

// Close tears the connection down and suppresses automatic reconnection.
// The client can be reused with a later Connect.
func (c *Client) Close() {
	c.mu.Lock()
	c.teardownLocked()
	notify := c.setStateLocked(protocol.Disconnected)
	c.mu.Unlock()
	notify()
}

// dial runs the blocking connection attempt for one generation. A failure to
// even construct the connection is handled exactly like an async connection
// failure.
func (c *Client) dial(gen int) {
	conn, err := c.cfg.Dialer.Dial(c.cfg.URL)

	c.mu.Lock()
	if gen != c.gen || c.state != protocol.Connecting {
		// Torn down while dialing.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		notify := c.setStateLocked(protocol.Disconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		notify()
		return
	}

	c.conn = conn
	c.backoff.Reset()
	stop := make(chan struct{})
	c.pingStop = stop
	pending := c.pending
	c.pending = nil
	notify := c.setStateLocked(protocol.Connected)

	// Take the write lock before releasing the state lock so the queue
	// flush beats every Send racing on the fresh connection. The state
	// hook fires only after the flush, with writeMu released, so a
	// handler may call Send without deadlocking.
	c.writeMu.Lock()
	c.mu.Unlock()

	for _, msg := range pending {
		c.writeLocked(conn, msg)
	}
	c.writeMu.Unlock()
	notify()

	go c.pingLoop(stop)
	go c.readLoop(gen, conn)
}

// readLoop pumps frames off one connection until it dies.
func (c *Client) readLoop(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnError(gen)
			return
		}

		msg, derr := protocol.DecodeServer(data)
		if derr != nil {
			log.Printf("Warning: dropping malformed server message: %v", derr)
			continue
		}
		if _, ok := msg.(protocol.Pong); ok {
			// Heartbeat ack, consumed here.
			continue
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(msg)
		}
	}
}

// pingLoop sends the keep-alive heartbeat while the connection is up.
func (c *Client) pingLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Send(protocol.NewPing())
		}
	}
}

// handleConnError reacts to a dead connection: back to disconnected and
// schedule the next attempt, unless this loop belongs to an already
// torn-down generation.
func (c *Client) handleConnError(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	notify := c.setStateLocked(protocol.Disconnected)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
	notify()
}

func (c *Client) write(conn Conn, msg protocol.ClientMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.writeLocked(conn, msg)
}

func (c *Client) writeLocked(conn Conn, msg protocol.ClientMessage) {
	data, err := protocol.EncodeClient(msg)
	if err != nil {
		log.Printf("Warning: failed to encode client message: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop sees the same failure and drives recovery.
		log.Printf("Warning: websocket write failed: %v", err)
	}
}

// teardownLocked cancels timers, discards the pending queue, closes any
// socket, and invalidates outstanding loops by bumping the generation.
func (c *Client) teardownLocked() {
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.pending = nil
}

// setStateLocked records a transition and returns the hook invocation to run
// after the lock is released. A no-op transition returns a no-op func.
func (c *Client) setStateLocked(next protocol.ConnState) func() {
	if c.state == next {
		return func() {}
	}
	c.state = next
	h := c.cfg.OnStateChange
	if h == nil {
		return func() {}
	}
	return func() { h(next) }
}

func (c *Client) scheduleReconnectLocked() {
	d := c.nextReconnectDelay()
	c.reconnectTimer = time.AfterFunc(d, c.Connect)
}

// nextReconnectDelay returns min(base * 2^n, max) for the nth consecutive
// failure and advances the counter. A successful connection resets it.
func (c *Client) nextReconnectDelay() time.Duration {
	return c.backoff.Duration()
}
