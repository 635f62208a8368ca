package coordinator

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
	"github.com/noobtra/soundcloud-jam/jam/state"
	"github.com/noobtra/soundcloud-jam/validate"
)

const (
	// DefaultAllowedOrigin is the origin the pinned surface must stay on.
	DefaultAllowedOrigin = "https://soundcloud.com"

	// DefaultKeepAliveInterval matches the original extension's wake-up
	// alarm cadence.
	DefaultKeepAliveInterval = 24 * time.Second
)

// Transport is what the coordinator needs from the upstream client.
type Transport interface {
	Connect()
	Send(msg protocol.ClientMessage)
	Close()
}

// Config wires the coordinator's collaborators.
type Config struct {
	Transport   Transport
	Persistence state.SnapshotPersistence

	// AllowedOrigin defaults to DefaultAllowedOrigin.
	AllowedOrigin string

	// KeepAliveInterval defaults to DefaultKeepAliveInterval.
	KeepAliveInterval time.Duration
}

// Coordinator applies the jam business rules. See the package doc for the
// overall responsibilities.
type Coordinator struct {
	transport         Transport
	store             *state.Store
	allowedOrigin     string
	keepAliveInterval time.Duration

	mu       sync.Mutex
	pinnedID string
	keepStop chan struct{}

	surfacesMu sync.RWMutex
	surfaces   map[string]Surface
}

// New creates a coordinator and its backing state store.
func New(cfg Config) *Coordinator {
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = DefaultAllowedOrigin
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}

	c := &Coordinator{
		transport:         cfg.Transport,
		allowedOrigin:     cfg.AllowedOrigin,
		keepAliveInterval: cfg.KeepAliveInterval,
		surfaces:          make(map[string]Surface),
	}
	c.store = state.NewStore(c.broadcast, cfg.Persistence)
	return c
}

// Start restores persisted state and, if a session survived the restart,
// re-opens the transport and the keep-alive schedule.
func (c *Coordinator) Start() {
	if c.store.Restore() {
		log.Printf("Restored active jam session from disk, reconnecting")
		c.transport.Connect()
		c.startKeepAlive()
	}
}

// Stop halts the keep-alive schedule and closes the transport.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopKeepAliveLocked()
	c.mu.Unlock()
	c.transport.Close()
}

// Snapshot returns the current state for explicit reads.
func (c *Coordinator) Snapshot() state.Snapshot {
	return c.store.Snapshot()
}

// Surfaces

// RegisterSurface adds a consumer surface to the fan-out set.
func (c *Coordinator) RegisterSurface(s Surface) {
	c.surfacesMu.Lock()
	c.surfaces[s.ID()] = s
	c.surfacesMu.Unlock()
}

// UnregisterSurface removes a surface. If it was the pinned jam surface,
// the session is left: the owning surface going away ends the jam locally.
func (c *Coordinator) UnregisterSurface(id string) {
	c.surfacesMu.Lock()
	delete(c.surfaces, id)
	c.surfacesMu.Unlock()

	c.mu.Lock()
	pinned := c.pinnedID == id
	c.mu.Unlock()
	if pinned {
		log.Printf("Jam surface %s closed, leaving jam", id)
		c.LeaveJam()
	}
}

// SurfaceLocation records a navigation report from a surface. The pinned
// surface leaving the allowed origin leaves the jam.
func (c *Coordinator) SurfaceLocation(surfaceID, url string) {
	c.mu.Lock()
	pinned := c.pinnedID == surfaceID
	c.mu.Unlock()
	if !pinned || strings.HasPrefix(url, c.allowedOrigin) {
		return
	}
	log.Printf("Jam surface %s navigated away, leaving jam", surfaceID)
	c.LeaveJam()
}

// Local commands

// SetCurrentUser records the local user's profile as detected by the page
// scraper.
func (c *Coordinator) SetCurrentUser(user protocol.CurrentUser) {
	c.store.SetCurrentUser(&user)
}

// CreateJam opens a new session with the issuing surface pinned as the jam
// surface. Dropped silently when no current user is known.
func (c *Coordinator) CreateJam(surfaceID string, mode protocol.JamMode) {
	if mode == "" {
		mode = protocol.ModeAnyone
	}
	if err := validate.Mode(string(mode)); err != nil {
		log.Printf("Ignoring create command: %v", err)
		return
	}
	snap := c.store.Snapshot()
	if snap.CurrentUser == nil {
		log.Printf("Ignoring create command: no current user")
		return
	}

	c.pin(surfaceID)
	c.transport.Connect()
	c.transport.Send(protocol.NewCreateJam(*snap.CurrentUser, mode))
}

// JoinJam resolves an invite code and joins that session. Rejected when a
// session is already active: the existing session takes precedence over
// the new request.
func (c *Coordinator) JoinJam(surfaceID, inviteCode string) {
	if err := validate.InviteCode(inviteCode); err != nil {
		log.Printf("Ignoring join command: %v", err)
		return
	}
	snap := c.store.Snapshot()
	if snap.Session != nil {
		log.Printf("Ignoring join command: already in a jam")
		return
	}
	if snap.CurrentUser == nil {
		log.Printf("Ignoring join command: no current user")
		return
	}

	c.pin(surfaceID)
	c.transport.Connect()
	c.transport.Send(protocol.NewJoinJam(inviteCode, *snap.CurrentUser))
}

// AutoJoin is a join triggered by a detected invite link rather than an
// explicit user action. Same rules as JoinJam.
func (c *Coordinator) AutoJoin(surfaceID, inviteCode string) {
	c.JoinJam(surfaceID, inviteCode)
}

// LeaveJam leaves the active session: sends the leave message, clears the
// session, unpins the surface, and stops the keep-alive schedule. The unpin
// happens even without an active session, so a pin still waiting for server
// confirmation is discarded and a later confirmation installs an ownerless
// session that the next leave trigger can still end.
func (c *Coordinator) LeaveJam() {
	c.mu.Lock()
	c.pinnedID = ""
	c.stopKeepAliveLocked()
	c.mu.Unlock()

	if c.store.Snapshot().Session == nil {
		return
	}
	c.transport.Send(protocol.NewLeaveJam())
	c.store.ClearSession()
}

// TrackUpdate reports local playback. Only the pinned surface is
// authoritative for playback, others are ignored. The pin is not persisted,
// so a session restored at startup has no pin; the first surface to report
// playback for it claims the pin. The own membership entry is updated
// locally and the track forwarded when in a session.
func (c *Coordinator) TrackUpdate(surfaceID string, track protocol.TrackInfo) {
	if err := validate.Track(track); err != nil {
		log.Printf("Ignoring track update: %v", err)
		return
	}

	snap := c.store.Snapshot()
	c.mu.Lock()
	if c.pinnedID == "" && snap.Session != nil {
		log.Printf("Surface %s claimed the restored jam session", surfaceID)
		c.pinnedID = surfaceID
	}
	authoritative := c.pinnedID == surfaceID
	c.mu.Unlock()
	if !authoritative {
		return
	}
	if snap.UserID != "" {
		c.store.UpdateUser(snap.UserID, func(u protocol.JamUser) protocol.JamUser {
			t := track
			u.CurrentTrack = &t
			return u
		})
	}
	if snap.Session != nil {
		c.transport.Send(protocol.NewTrackUpdate(track))
	}
}

// ChangeMode switches the playback mode. Requires an active session.
func (c *Coordinator) ChangeMode(mode protocol.JamMode) {
	if err := validate.Mode(string(mode)); err != nil {
		log.Printf("Ignoring mode change: %v", err)
		return
	}
	if c.store.Snapshot().Session == nil {
		return
	}
	c.transport.Send(protocol.NewChangeMode(mode))
}

// QueueAdd appends a track to the shared queue. Requires an active session.
func (c *Coordinator) QueueAdd(track protocol.TrackInfo) {
	if c.store.Snapshot().Session == nil {
		return
	}
	c.transport.Send(protocol.NewQueueAdd(track))
}

// QueueRemove deletes a queue entry. Requires an active session.
func (c *Coordinator) QueueRemove(queueID string) {
	if queueID == "" || c.store.Snapshot().Session == nil {
		return
	}
	c.transport.Send(protocol.NewQueueRemove(queueID))
}

// Server events

// HandleConnState mirrors the transport state machine into the snapshot.
func (c *Coordinator) HandleConnState(st protocol.ConnState) {
	c.store.SetConnState(st)
}

// HandleServerMessage reduces one inbound server event into state mutations
// and local-authority decisions. Adding a protocol variant without a case
// here falls through to the logged default.
func (c *Coordinator) HandleServerMessage(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.JamCreated:
		c.store.SetSession(&m.Session, m.UserID)
		c.startKeepAlive()

	case protocol.JamJoined:
		c.store.SetSession(&m.Session, m.UserID)
		c.startKeepAlive()

	case protocol.UserJoined:
		c.store.AddUser(m.User)

	case protocol.UserLeft:
		c.store.RemoveUser(m.UserID)

	case protocol.UserTrackUpdated:
		c.store.UpdateUser(m.UserID, func(u protocol.JamUser) protocol.JamUser {
			t := m.Track
			u.CurrentTrack = &t
			return u
		})

	case protocol.PlayTrack:
		// An action, not state: goes to the pinned surface only.
		c.playOnPinned(m.Track)

	case protocol.ModeChanged:
		c.store.SetMode(m.Mode)

	case protocol.QueueUpdated:
		c.store.SetQueue(m.Queue)

	case protocol.Error:
		// Application-level errors never tear down the connection.
		log.Printf("Jam server error %s: %s", m.Code, m.Message)

	case protocol.Pong:
		// Swallowed by the transport; nothing to do.

	default:
		log.Printf("Warning: unhandled server message %T", msg)
	}
}

// Internals

func (c *Coordinator) pin(surfaceID string) {
	c.mu.Lock()
	c.pinnedID = surfaceID
	c.mu.Unlock()
	log.Printf("Jam surface pinned: %s", surfaceID)
}

func (c *Coordinator) playOnPinned(track protocol.TrackInfo) {
	c.mu.Lock()
	pinned := c.pinnedID
	c.mu.Unlock()
	if pinned == "" {
		return
	}

	c.surfacesMu.RLock()
	s := c.surfaces[pinned]
	c.surfacesMu.RUnlock()
	if s == nil {
		return
	}
	if err := s.PlayTrack(track); err != nil {
		log.Printf("Warning: play command to surface %s failed: %v", pinned, err)
	}
}

// broadcast fans one snapshot out to every registered surface,
// best-effort. Registered as the store's change listener.
func (c *Coordinator) broadcast(snap state.Snapshot) {
	update := snap.UpdateMessage()

	c.surfacesMu.RLock()
	defer c.surfacesMu.RUnlock()
	for _, s := range c.surfaces {
		// A surface that is not listening is skipped, not retried.
		_ = s.Deliver(update)
	}
}

// startKeepAlive begins the periodic schedule that re-asserts the transport
// while a session is active. Starting a new schedule replaces any prior one.
func (c *Coordinator) startKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopKeepAliveLocked()

	stop := make(chan struct{})
	c.keepStop = stop
	go func() {
		ticker := time.NewTicker(c.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// No-op when already connected.
				c.transport.Connect()
			}
		}
	}()
}

func (c *Coordinator) stopKeepAliveLocked() {
	if c.keepStop != nil {
		close(c.keepStop)
		c.keepStop = nil
	}
}
