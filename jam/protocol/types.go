package protocol

// JamMode controls who may drive playback for the session.
type JamMode string

const (
	// ModeHost restricts playback control to the session host.
	ModeHost JamMode = "host"
	// ModeAnyone lets every participant drive playback.
	ModeAnyone JamMode = "anyone"
)

// Valid reports whether m is a known mode value.
func (m JamMode) Valid() bool {
	return m == ModeHost || m == ModeAnyone
}

// ConnState is the transport connection state as seen by consumers.
type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	Connected    ConnState = "connected"
)

// Defaults for the transport configuration. All of them are overridable
// through the agent config so tests can point at a local fake server.
const (
	DefaultServerURL       = "ws://127.0.0.1:9005/ws"
	DefaultPingIntervalMs  = 20_000
	DefaultReconnectBaseMs = 1_000
	DefaultReconnectMaxMs  = 30_000
	MaxInviteCodeLength    = 32
	MaxDisplayNameLength   = 120
)

// TrackInfo describes the currently playing track. StartTime and EndTime are
// Unix milliseconds (wall clock); EndTime-StartTime is the remaining-duration
// contract consumers use for progress rendering.
type TrackInfo struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	TrackURL   string `json:"trackUrl"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
}

// CurrentUser is the local user's own SoundCloud profile, supplied by an
// external scraper and passed through opaquely.
type CurrentUser struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	ProfileURL  string `json:"profileUrl"`
}

// JamUser is one connected participant, unique by ID within a session.
type JamUser struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"displayName"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	ProfileURL   string     `json:"profileUrl,omitempty"`
	Username     string     `json:"username,omitempty"`
	IsHost       bool       `json:"isHost"`
	CurrentTrack *TrackInfo `json:"currentTrack,omitempty"`
}

// QueuedTrack is one entry in the shared queue. Ordering is insertion order
// and multiple entries may reference the same track URL.
type QueuedTrack struct {
	QueueID     string    `json:"queueId"`
	Track       TrackInfo `json:"track"`
	AddedBy     string    `json:"addedBy"`
	AddedByName string    `json:"addedByName"`
	AddedAt     int64     `json:"addedAt"`
}

// JamSession is the full session state as the server reports it.
//
// HostID is never reassigned locally: host promotion is the server's call, so
// if the host leaves without a promotion event the ID dangles until the
// server says otherwise.
type JamSession struct {
	JamID      string        `json:"jamId"`
	InviteCode string        `json:"inviteCode"`
	Users      []JamUser     `json:"users"`
	HostID     string        `json:"hostId"`
	CreatedAt  int64         `json:"createdAt"`
	Mode       JamMode       `json:"mode"`
	Queue      []QueuedTrack `json:"queue,omitempty"`
}

// Clone returns a deep copy of the session. Mutating the copy never affects
// the original, which is what the state store's copy-on-write discipline
// relies on.
func (s *JamSession) Clone() *JamSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Users = make([]JamUser, len(s.Users))
	for i, u := range s.Users {
		out.Users[i] = u
		if u.CurrentTrack != nil {
			track := *u.CurrentTrack
			out.Users[i].CurrentTrack = &track
		}
	}
	if s.Queue != nil {
		out.Queue = make([]QueuedTrack, len(s.Queue))
		copy(out.Queue, s.Queue)
	}
	return &out
}

// FindUser returns the participant with the given ID, or nil.
func (s *JamSession) FindUser(id string) *JamUser {
	if s == nil {
		return nil
	}
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i]
		}
	}
	return nil
}
