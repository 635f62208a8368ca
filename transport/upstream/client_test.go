package upstream

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
)

// fakeConn is an in-memory connection. Reads block until the test feeds a
// frame or closes the connection.
type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	inbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return 1, data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentTypes(t *testing.T) []protocol.MessageType {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.MessageType, 0, len(c.writes))
	for _, data := range c.writes {
		var env struct {
			Type protocol.MessageType `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("Client wrote an undecodable frame: %v", err)
		}
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeConn) sentMessages(t *testing.T) []protocol.ClientMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ClientMessage, 0, len(c.writes))
	for _, data := range c.writes {
		msg, err := protocol.DecodeClient(data)
		if err != nil {
			t.Fatalf("Client wrote an undecodable frame: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// fakeDialer hands out scripted results one attempt at a time.
type fakeDialer struct {
	mu       sync.Mutex
	results  []dialResult
	attempts int
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if len(d.results) == 0 {
		return nil, errors.New("no scripted dial result")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// stateRecorder collects connection state transitions on a channel.
type stateRecorder struct {
	states chan protocol.ConnState
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{states: make(chan protocol.ConnState, 16)}
}

func (r *stateRecorder) handler(st protocol.ConnState) {
	r.states <- st
}

func (r *stateRecorder) waitFor(t *testing.T, want protocol.ConnState) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case st := <-r.states:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for state %s", want)
		}
	}
}

func testConfig(dialer Dialer, rec *stateRecorder, onMsg MessageHandler) Config {
	cfg := Config{
		URL:           "ws://test.invalid/ws",
		PingInterval:  time.Hour,
		ReconnectBase: time.Millisecond,
		ReconnectMax:  4 * time.Millisecond,
		Dialer:        dialer,
		OnMessage:     onMsg,
	}
	if rec != nil {
		cfg.OnStateChange = rec.handler
	}
	return cfg
}

func TestSendWhileDisconnected(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	rec := newStateRecorder()
	client := NewClient(testConfig(dialer, rec, nil))
	defer client.Close()

	// Dropped: the client is fully down.
	client.Send(protocol.NewLeaveJam())

	client.Connect()
	rec.waitFor(t, protocol.Connected)

	client.Send(protocol.NewPing())
	sent := conn.sentMessages(t)
	if len(sent) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sent))
	}
	if _, ok := sent[0].(protocol.Ping); !ok {
		t.Errorf("The pre-connect message should have been dropped, got %T", sent[0])
	}
}

func TestPendingQueueFlushedInOrder(t *testing.T) {
	conn := newFakeConn()
	release := make(chan struct{})
	dialer := &blockingDialer{conn: conn, release: release}
	rec := newStateRecorder()
	client := NewClient(testConfig(dialer, rec, nil))
	defer client.Close()

	client.Connect()
	rec.waitFor(t, protocol.Connecting)

	// Queued while the dial is in flight.
	client.Send(protocol.NewJoinJam("ABC123", protocol.CurrentUser{DisplayName: "Alice"}))
	client.Send(protocol.NewChangeMode(protocol.ModeHost))
	client.Send(protocol.NewPing())

	close(release)
	rec.waitFor(t, protocol.Connected)

	client.Send(protocol.NewLeaveJam())

	sent := conn.sentTypes(t)
	if len(sent) != 4 {
		t.Fatalf("Expected 4 frames, got %d", len(sent))
	}
	wantOrder := []protocol.MessageType{
		protocol.TypeJoinJam, protocol.TypeChangeMode, protocol.TypePing, protocol.TypeLeaveJam,
	}
	for i, want := range wantOrder {
		if sent[i] != want {
			t.Errorf("Frame %d: expected %s, got %s", i, want, sent[i])
		}
	}
}

func TestSendFromStateChangeHook(t *testing.T) {
	conn := newFakeConn()
	release := make(chan struct{})
	dialer := &blockingDialer{conn: conn, release: release}

	connected := make(chan struct{})
	var client *Client
	cfg := testConfig(dialer, nil, nil)
	cfg.OnStateChange = func(st protocol.ConnState) {
		if st == protocol.Connected {
			// A caller that resends on reconnect does exactly this.
			client.Send(protocol.NewLeaveJam())
			close(connected)
		}
	}
	client = NewClient(cfg)
	defer client.Close()

	client.Connect()
	// Queued while the dial is in flight; still beats the hook's send.
	client.Send(protocol.NewPing())
	close(release)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("Send from the connected state hook never returned")
	}

	sent := conn.sentTypes(t)
	if len(sent) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(sent))
	}
	if sent[0] != protocol.TypePing || sent[1] != protocol.TypeLeaveJam {
		t.Errorf("Expected the queued frame before the hook's frame, got %v", sent)
	}
}

// blockingDialer parks every attempt until the release channel closes.
type blockingDialer struct {
	conn    *fakeConn
	release chan struct{}
}

func (d *blockingDialer) Dial(url string) (Conn, error) {
	<-d.release
	return d.conn, nil
}

func TestReconnectDelaySchedule(t *testing.T) {
	client := NewClient(Config{
		ReconnectBase: 100 * time.Millisecond,
		ReconnectMax:  400 * time.Millisecond,
		Dialer:        &fakeDialer{},
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond,
	}
	for i, w := range want {
		if got := client.nextReconnectDelay(); got != w {
			t.Errorf("Attempt %d: expected delay %v, got %v", i, w, got)
		}
	}

	client.backoff.Reset()
	if got := client.nextReconnectDelay(); got != 100*time.Millisecond {
		t.Errorf("After reset: expected delay 100ms, got %v", got)
	}
}

func TestReconnectAfterDialFailure(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{
		{err: errors.New("connection refused")},
		{conn: conn},
	}}
	rec := newStateRecorder()
	client := NewClient(testConfig(dialer, rec, nil))
	defer client.Close()

	client.Connect()
	rec.waitFor(t, protocol.Disconnected)
	rec.waitFor(t, protocol.Connected)

	if got := dialer.attemptCount(); got != 2 {
		t.Errorf("Expected 2 dial attempts, got %d", got)
	}
}

func TestReconnectAfterConnectionDrop(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: first}, {conn: second}}}
	rec := newStateRecorder()
	client := NewClient(testConfig(dialer, rec, nil))
	defer client.Close()

	client.Connect()
	rec.waitFor(t, protocol.Connected)

	// Kill the connection out from under the client.
	first.Close()

	rec.waitFor(t, protocol.Disconnected)
	rec.waitFor(t, protocol.Connected)

	if got := dialer.attemptCount(); got != 2 {
		t.Errorf("Expected 2 dial attempts, got %d", got)
	}
}

func TestCloseSuppressesReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}, {conn: newFakeConn()}}}
	rec := newStateRecorder()
	client := NewClient(testConfig(dialer, rec, nil))

	client.Connect()
	rec.waitFor(t, protocol.Connected)

	client.Close()
	rec.waitFor(t, protocol.Disconnected)

	// Give a would-be reconnect timer ample time to fire.
	time.Sleep(20 * time.Millisecond)
	if got := dialer.attemptCount(); got != 1 {
		t.Errorf("Expected no reconnect after Close, got %d attempts", got)
	}
	if client.State() != protocol.Disconnected {
		t.Errorf("Expected disconnected after Close, got %s", client.State())
	}
}

func TestInboundMessages(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	rec := newStateRecorder()
	received := make(chan protocol.ServerMessage, 16)
	client := NewClient(testConfig(dialer, rec, func(msg protocol.ServerMessage) {
		received <- msg
	}))
	defer client.Close()

	client.Connect()
	rec.waitFor(t, protocol.Connected)

	t.Run("pong is swallowed, application messages pass", func(t *testing.T) {
		conn.inbound <- []byte(`{"type":"PONG"}`)
		conn.inbound <- []byte(`{"type":"ERROR","code":"JAM_FULL","message":"jam is full"}`)

		select {
		case msg := <-received:
			errMsg, ok := msg.(protocol.Error)
			if !ok {
				t.Fatalf("Expected Error, got %T", msg)
			}
			if errMsg.Code != "JAM_FULL" {
				t.Errorf("Expected code JAM_FULL, got %s", errMsg.Code)
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for the error message")
		}

		select {
		case msg := <-received:
			t.Errorf("PONG should have been swallowed, got %T", msg)
		default:
		}
	})

	t.Run("malformed frames are dropped without killing the loop", func(t *testing.T) {
		conn.inbound <- []byte(`{not json`)
		conn.inbound <- []byte(`{"type":"UNKNOWN_THING"}`)
		conn.inbound <- []byte(`{"type":"MODE_CHANGED","mode":"host"}`)

		select {
		case msg := <-received:
			if _, ok := msg.(protocol.ModeChanged); !ok {
				t.Errorf("Expected ModeChanged, got %T", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for the mode change")
		}
	})
}

func TestConnectIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	rec := newStateRecorder()
	client := NewClient(testConfig(dialer, rec, nil))
	defer client.Close()

	client.Connect()
	rec.waitFor(t, protocol.Connected)

	client.Connect()
	client.Connect()

	time.Sleep(10 * time.Millisecond)
	if got := dialer.attemptCount(); got != 1 {
		t.Errorf("Redundant Connect should not redial, got %d attempts", got)
	}

	select {
	case st := <-rec.states:
		t.Errorf("Redundant Connect should not fire the state hook, got %s", st)
	default:
	}
}
