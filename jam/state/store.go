package state

import (
	"log"
	"sync"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
)

// UpdateType tags the consumer-facing broadcast record.
const UpdateType = "JAM_STATE_UPDATE"

// Snapshot is the complete point-in-time view of local session state.
// Session and UserID are always set and cleared together.
type Snapshot struct {
	Session     *protocol.JamSession  `json:"session"`
	UserID      string                `json:"userId,omitempty"`
	CurrentUser *protocol.CurrentUser `json:"currentUser,omitempty"`
	ConnState   protocol.ConnState    `json:"connectionState"`
}

// Update is the broadcast message sent to every consumer surface on each
// state change and on explicit request.
type Update struct {
	Type string `json:"type"`
	Snapshot
}

// UpdateMessage wraps the snapshot in the broadcast envelope.
func (s Snapshot) UpdateMessage() Update {
	return Update{Type: UpdateType, Snapshot: s}
}

// clone deep-copies the snapshot so callers can hand it out freely.
func (s Snapshot) clone() Snapshot {
	out := s
	out.Session = s.Session.Clone()
	if s.CurrentUser != nil {
		user := *s.CurrentUser
		out.CurrentUser = &user
	}
	return out
}

// ChangeListener receives the full snapshot after every mutation.
type ChangeListener func(Snapshot)

// Store is the authoritative in-process session state cache.
//
// The listener and persistence are fixed at construction so independent
// instances can coexist in tests. All mutators are safe for concurrent use;
// the listener fires synchronously after the mutation completes, outside the
// store's lock.
type Store struct {
	mu          sync.RWMutex
	session     *protocol.JamSession
	userID      string
	currentUser *protocol.CurrentUser
	connState   protocol.ConnState
	version     uint64

	onChange    ChangeListener
	persistence SnapshotPersistence

	saveMu       sync.Mutex
	savedVersion uint64
}

// NewStore creates a store with the given change listener and persistence.
// Either may be nil.
func NewStore(onChange ChangeListener, persistence SnapshotPersistence) *Store {
	return &Store{
		connState:   protocol.Disconnected,
		onChange:    onChange,
		persistence: persistence,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Session:     s.session,
		UserID:      s.userID,
		CurrentUser: s.currentUser,
		ConnState:   s.connState,
	}.clone()
}

// SetSession replaces the session and local user ID wholesale. Used on
// create/join confirmation.
func (s *Store) SetSession(session *protocol.JamSession, userID string) {
	s.mu.Lock()
	s.session = session.Clone()
	s.userID = userID
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// SetCurrentUser records the local user's profile, independent of any
// session.
func (s *Store) SetCurrentUser(user *protocol.CurrentUser) {
	s.mu.Lock()
	if user != nil {
		u := *user
		s.currentUser = &u
	} else {
		s.currentUser = nil
	}
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// SetConnState records the transport connection state.
func (s *Store) SetConnState(state protocol.ConnState) {
	s.mu.Lock()
	s.connState = state
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// UpdateUser replaces the matching membership entry with the transform's
// result, preserving order. No-op when there is no session.
func (s *Store) UpdateUser(userID string, transform func(protocol.JamUser) protocol.JamUser) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	next := s.session.Clone()
	for i := range next.Users {
		if next.Users[i].ID == userID {
			next.Users[i] = transform(next.Users[i])
			break
		}
	}
	s.session = next
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// AddUser appends a participant. Idempotent: a user ID already present keeps
// its existing entry (first write wins) and no notification fires.
func (s *Store) AddUser(user protocol.JamUser) {
	s.mu.Lock()
	if s.session == nil || s.session.FindUser(user.ID) != nil {
		s.mu.Unlock()
		return
	}
	next := s.session.Clone()
	next.Users = append(next.Users, user)
	s.session = next
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// RemoveUser filters out the participant with the given ID. Removing an
// absent ID is a harmless no-op on the membership list.
func (s *Store) RemoveUser(userID string) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	next := s.session.Clone()
	users := next.Users[:0]
	for _, u := range next.Users {
		if u.ID != userID {
			users = append(users, u)
		}
	}
	next.Users = users
	s.session = next
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// SetMode replaces the session's playback mode. No-op without a session.
func (s *Store) SetMode(mode protocol.JamMode) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	next := s.session.Clone()
	next.Mode = mode
	s.session = next
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// SetQueue replaces the shared queue wholesale. No-op without a session.
func (s *Store) SetQueue(queue []protocol.QueuedTrack) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	next := s.session.Clone()
	next.Queue = append([]protocol.QueuedTrack(nil), queue...)
	s.session = next
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// ClearSession clears the session and user ID together, leaving the current
// user and connection state untouched.
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.session = nil
	s.userID = ""
	snap, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap, version)
}

// Restore loads the last persisted snapshot. The connection state is always
// forced to disconnected regardless of what was stored. Reports whether a
// usable session came back, so the caller can decide to reconnect.
func (s *Store) Restore() bool {
	if s.persistence == nil {
		return false
	}
	snap, ok, err := s.persistence.Load()
	if err != nil {
		log.Printf("Warning: failed to restore jam state: %v", err)
		return false
	}
	if !ok || snap.Session == nil {
		return false
	}

	s.mu.Lock()
	s.session = snap.Session.Clone()
	s.userID = snap.UserID
	if snap.CurrentUser != nil {
		u := *snap.CurrentUser
		s.currentUser = &u
	}
	s.connState = protocol.Disconnected
	s.mu.Unlock()
	return true
}

// changedLocked bumps the version and captures the snapshot for the
// notification that follows the unlock.
func (s *Store) changedLocked() (Snapshot, uint64) {
	s.version++
	return s.snapshotLocked(), s.version
}

func (s *Store) notify(snap Snapshot, version uint64) {
	if s.onChange != nil {
		s.onChange(snap)
	}
	if s.persistence != nil {
		go s.persist(snap, version)
	}
}

// persist writes the snapshot in the background. Saves are serialized and
// version-guarded so a slow older save never clobbers a newer one. Failures
// are logged and swallowed.
func (s *Store) persist(snap Snapshot, version uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if version <= s.savedVersion {
		return
	}
	if err := s.persistence.Save(snap); err != nil {
		log.Printf("Warning: failed to persist jam state: %v", err)
		return
	}
	s.savedVersion = version
}
