package protocol

// MessageType is the wire discriminator carried in every record's "type" field.
type MessageType string

// Client → server message types.
const (
	TypeCreateJam   MessageType = "CREATE_JAM"
	TypeJoinJam     MessageType = "JOIN_JAM"
	TypeLeaveJam    MessageType = "LEAVE_JAM"
	TypeTrackUpdate MessageType = "TRACK_UPDATE"
	TypeChangeMode  MessageType = "CHANGE_MODE"
	TypeQueueAdd    MessageType = "QUEUE_ADD"
	TypeQueueRemove MessageType = "QUEUE_REMOVE"
	TypePing        MessageType = "PING"
)

// Server → client message types.
const (
	TypeJamCreated       MessageType = "JAM_CREATED"
	TypeJamJoined        MessageType = "JAM_JOINED"
	TypeUserJoined       MessageType = "USER_JOINED"
	TypeUserLeft         MessageType = "USER_LEFT"
	TypeUserTrackUpdated MessageType = "USER_TRACK_UPDATED"
	TypePlayTrack        MessageType = "PLAY_TRACK"
	TypeModeChanged      MessageType = "MODE_CHANGED"
	TypeQueueUpdated     MessageType = "QUEUE_UPDATED"
	TypePong             MessageType = "PONG"
	TypeError            MessageType = "ERROR"
)

// ClientMessage is the closed set of messages the client sends.
type ClientMessage interface {
	clientMessage()
	messageType() MessageType
}

// ServerMessage is the closed set of messages the server sends.
type ServerMessage interface {
	serverMessage()
	messageType() MessageType
}

// CreateJam asks the server to open a new session with the sender as host.
type CreateJam struct {
	Type        MessageType `json:"type"`
	DisplayName string      `json:"displayName"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	ProfileURL  string      `json:"profileUrl,omitempty"`
	Username    string      `json:"username,omitempty"`
	Mode        JamMode     `json:"mode"`
}

// JoinJam asks the server to resolve an invite code and join that session.
type JoinJam struct {
	Type        MessageType `json:"type"`
	InviteCode  string      `json:"inviteCode"`
	DisplayName string      `json:"displayName"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	ProfileURL  string      `json:"profileUrl,omitempty"`
	Username    string      `json:"username,omitempty"`
}

// LeaveJam leaves the current session.
type LeaveJam struct {
	Type MessageType `json:"type"`
}

// TrackUpdate reports the sender's currently playing track.
type TrackUpdate struct {
	Type  MessageType `json:"type"`
	Track TrackInfo   `json:"track"`
}

// ChangeMode switches who may drive playback.
type ChangeMode struct {
	Type MessageType `json:"type"`
	Mode JamMode     `json:"mode"`
}

// QueueAdd appends a track to the shared queue.
type QueueAdd struct {
	Type  MessageType `json:"type"`
	Track TrackInfo   `json:"track"`
}

// QueueRemove deletes a queue entry by its ID.
type QueueRemove struct {
	Type    MessageType `json:"type"`
	QueueID string      `json:"queueId"`
}

// Ping is the keep-alive heartbeat. The matching Pong never leaves the
// transport layer.
type Ping struct {
	Type MessageType `json:"type"`
}

func (CreateJam) clientMessage()   {}
func (JoinJam) clientMessage()     {}
func (LeaveJam) clientMessage()    {}
func (TrackUpdate) clientMessage() {}
func (ChangeMode) clientMessage()  {}
func (QueueAdd) clientMessage()    {}
func (QueueRemove) clientMessage() {}
func (Ping) clientMessage()        {}

func (CreateJam) messageType() MessageType   { return TypeCreateJam }
func (JoinJam) messageType() MessageType     { return TypeJoinJam }
func (LeaveJam) messageType() MessageType    { return TypeLeaveJam }
func (TrackUpdate) messageType() MessageType { return TypeTrackUpdate }
func (ChangeMode) messageType() MessageType  { return TypeChangeMode }
func (QueueAdd) messageType() MessageType    { return TypeQueueAdd }
func (QueueRemove) messageType() MessageType { return TypeQueueRemove }
func (Ping) messageType() MessageType        { return TypePing }

// JamCreated confirms session creation; the snapshot becomes authoritative.
type JamCreated struct {
	Type    MessageType `json:"type"`
	Session JamSession  `json:"session"`
	UserID  string      `json:"userId"`
}

// JamJoined confirms joining an existing session.
type JamJoined struct {
	Type    MessageType `json:"type"`
	Session JamSession  `json:"session"`
	UserID  string      `json:"userId"`
}

// UserJoined announces a new participant.
type UserJoined struct {
	Type MessageType `json:"type"`
	User JamUser     `json:"user"`
}

// UserLeft announces a departed participant.
type UserLeft struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
}

// UserTrackUpdated carries another participant's now-playing track.
type UserTrackUpdated struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId"`
	Track  TrackInfo   `json:"track"`
}

// PlayTrack is a remote playback command. It is an action, not state: the
// coordinator forwards it to the pinned surface instead of mutating the
// snapshot.
type PlayTrack struct {
	Type  MessageType `json:"type"`
	Track TrackInfo   `json:"track"`
}

// ModeChanged announces a playback-mode switch.
type ModeChanged struct {
	Type MessageType `json:"type"`
	Mode JamMode     `json:"mode"`
}

// QueueUpdated replaces the shared queue wholesale.
type QueueUpdated struct {
	Type  MessageType   `json:"type"`
	Queue []QueuedTrack `json:"queue"`
}

// Pong acknowledges a Ping.
type Pong struct {
	Type MessageType `json:"type"`
}

// Error is a non-fatal application-level error from the server.
type Error struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

func (JamCreated) serverMessage()       {}
func (JamJoined) serverMessage()        {}
func (UserJoined) serverMessage()       {}
func (UserLeft) serverMessage()         {}
func (UserTrackUpdated) serverMessage() {}
func (PlayTrack) serverMessage()        {}
func (ModeChanged) serverMessage()      {}
func (QueueUpdated) serverMessage()     {}
func (Pong) serverMessage()             {}
func (Error) serverMessage()            {}

func (JamCreated) messageType() MessageType       { return TypeJamCreated }
func (JamJoined) messageType() MessageType        { return TypeJamJoined }
func (UserJoined) messageType() MessageType       { return TypeUserJoined }
func (UserLeft) messageType() MessageType         { return TypeUserLeft }
func (UserTrackUpdated) messageType() MessageType { return TypeUserTrackUpdated }
func (PlayTrack) messageType() MessageType        { return TypePlayTrack }
func (ModeChanged) messageType() MessageType      { return TypeModeChanged }
func (QueueUpdated) messageType() MessageType     { return TypeQueueUpdated }
func (Pong) messageType() MessageType             { return TypePong }
func (Error) messageType() MessageType            { return TypeError }

// Constructors keep the tag field in sync with the variant so callers cannot
// produce a mistagged record.

// NewCreateJam builds a CREATE_JAM message from the local user's profile.
func NewCreateJam(user CurrentUser, mode JamMode) CreateJam {
	return CreateJam{
		Type:        TypeCreateJam,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
		ProfileURL:  user.ProfileURL,
		Username:    user.Username,
		Mode:        mode,
	}
}

// NewJoinJam builds a JOIN_JAM message for the given invite code.
func NewJoinJam(inviteCode string, user CurrentUser) JoinJam {
	return JoinJam{
		Type:        TypeJoinJam,
		InviteCode:  inviteCode,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
		ProfileURL:  user.ProfileURL,
		Username:    user.Username,
	}
}

// NewLeaveJam builds a LEAVE_JAM message.
func NewLeaveJam() LeaveJam { return LeaveJam{Type: TypeLeaveJam} }

// NewTrackUpdate builds a TRACK_UPDATE message.
func NewTrackUpdate(track TrackInfo) TrackUpdate {
	return TrackUpdate{Type: TypeTrackUpdate, Track: track}
}

// NewChangeMode builds a CHANGE_MODE message.
func NewChangeMode(mode JamMode) ChangeMode {
	return ChangeMode{Type: TypeChangeMode, Mode: mode}
}

// NewQueueAdd builds a QUEUE_ADD message.
func NewQueueAdd(track TrackInfo) QueueAdd {
	return QueueAdd{Type: TypeQueueAdd, Track: track}
}

// NewQueueRemove builds a QUEUE_REMOVE message.
func NewQueueRemove(queueID string) QueueRemove {
	return QueueRemove{Type: TypeQueueRemove, QueueID: queueID}
}

// NewPing builds a keep-alive PING message.
func NewPing() Ping { return Ping{Type: TypePing} }
