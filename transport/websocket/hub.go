package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/noobtra/soundcloud-jam/jam/coordinator"
	"github.com/noobtra/soundcloud-jam/jam/protocol"
	"github.com/noobtra/soundcloud-jam/jam/state"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Per-client send buffer.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The agent binds to loopback; surfaces connect from extension
		// contexts, which don't carry a useful Origin.
		return true
	},
}

// Controller is the command surface the hub drives. Satisfied by
// *coordinator.Coordinator.
type Controller interface {
	RegisterSurface(s coordinator.Surface)
	UnregisterSurface(id string)
	Snapshot() state.Snapshot
	SetCurrentUser(user protocol.CurrentUser)
	CreateJam(surfaceID string, mode protocol.JamMode)
	JoinJam(surfaceID, inviteCode string)
	AutoJoin(surfaceID, inviteCode string)
	LeaveJam()
	TrackUpdate(surfaceID string, track protocol.TrackInfo)
	ChangeMode(mode protocol.JamMode)
	QueueAdd(track protocol.TrackInfo)
	QueueRemove(queueID string)
	SurfaceLocation(surfaceID, url string)
}

// Surface command types sent by popup and page scripts.
const (
	CmdGetJamState     = "GET_JAM_STATE"
	CmdCreateJam       = "CREATE_JAM"
	CmdJoinJam         = "JOIN_JAM"
	CmdAutoJoin        = "AUTO_JOIN"
	CmdLeaveJam        = "LEAVE_JAM"
	CmdTrackUpdate     = "TRACK_UPDATE"
	CmdCurrentUser     = "CURRENT_USER"
	CmdChangeMode      = "CHANGE_MODE"
	CmdQueueAdd        = "QUEUE_ADD"
	CmdQueueRemove     = "QUEUE_REMOVE"
	CmdSurfaceLocation = "SURFACE_LOCATION"
)

// PlayTrackType tags the directed playback command sent to the pinned
// surface.
const PlayTrackType = "PLAY_TRACK"

// Command is one inbound surface message; fields beyond Type are set
// depending on the command.
type Command struct {
	Type       string                `json:"type"`
	Mode       protocol.JamMode      `json:"mode,omitempty"`
	InviteCode string                `json:"inviteCode,omitempty"`
	Track      *protocol.TrackInfo   `json:"track,omitempty"`
	User       *protocol.CurrentUser `json:"user,omitempty"`
	QueueID    string                `json:"queueId,omitempty"`
	URL        string                `json:"url,omitempty"`
}

// playCommand is the directed PLAY_TRACK message.
type playCommand struct {
	Type  string             `json:"type"`
	Track protocol.TrackInfo `json:"track"`
}

// Client is one connected surface.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// ID implements coordinator.Surface.
func (c *Client) ID() string { return c.id }

// Deliver implements coordinator.Surface. Non-blocking: a full buffer means
// the surface is not keeping up and the delivery is skipped.
func (c *Client) Deliver(update state.Update) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// PlayTrack implements coordinator.Surface.
func (c *Client) PlayTrack(track protocol.TrackInfo) error {
	data, err := json.Marshal(playCommand{Type: PlayTrackType, Track: track})
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

var errSendBufferFull = &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "send buffer full"}

// Hub maintains the set of connected surfaces.
type Hub struct {
	controller Controller

	register   chan *Client
	unregister chan *Client
}

// NewHub creates a hub that drives the given controller.
func NewHub(controller Controller) *Hub {
	return &Hub{
		controller: controller,
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	clients := make(map[*Client]bool)
	for {
		select {
		case client := <-h.register:
			clients[client] = true
			h.controller.RegisterSurface(client)
			log.Printf("Surface connected: %s (total: %d)", client.id, len(clients))

		case client := <-h.unregister:
			if clients[client] {
				delete(clients, client)
				close(client.send)
				h.controller.UnregisterSurface(client.id)
				log.Printf("Surface disconnected: %s (remaining: %d)", client.id, len(clients))
			}
		}
	}
}

// ServeWS handles a surface WebSocket request.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// dispatch routes one surface command to the controller.
func (h *Hub) dispatch(c *Client, cmd Command) {
	switch cmd.Type {
	case CmdGetJamState:
		// Explicit read: answer only the asking surface.
		_ = c.Deliver(h.controller.Snapshot().UpdateMessage())

	case CmdCreateJam:
		h.controller.CreateJam(c.id, cmd.Mode)

	case CmdJoinJam:
		h.controller.JoinJam(c.id, cmd.InviteCode)

	case CmdAutoJoin:
		h.controller.AutoJoin(c.id, cmd.InviteCode)

	case CmdLeaveJam:
		h.controller.LeaveJam()

	case CmdTrackUpdate:
		if cmd.Track != nil {
			h.controller.TrackUpdate(c.id, *cmd.Track)
		}

	case CmdCurrentUser:
		if cmd.User != nil {
			h.controller.SetCurrentUser(*cmd.User)
		}

	case CmdChangeMode:
		h.controller.ChangeMode(cmd.Mode)

	case CmdQueueAdd:
		if cmd.Track != nil {
			h.controller.QueueAdd(*cmd.Track)
		}

	case CmdQueueRemove:
		h.controller.QueueRemove(cmd.QueueID)

	case CmdSurfaceLocation:
		h.controller.SurfaceLocation(c.id, cmd.URL)

	default:
		log.Printf("Warning: unknown surface command %q from %s", cmd.Type, c.id)
	}
}

// readPump pumps commands from the surface to the controller.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Surface %s read error: %v", c.id, err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Printf("Warning: dropping malformed surface command from %s: %v", c.id, err)
			continue
		}
		c.hub.dispatch(c, cmd)
	}
}

// writePump pumps deliveries from the hub to the surface connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
