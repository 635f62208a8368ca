package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noobtra/soundcloud-jam/jam/coordinator"
	"github.com/noobtra/soundcloud-jam/jam/protocol"
	"github.com/noobtra/soundcloud-jam/jam/state"
)

// fakeController records every command the hub dispatches.
type fakeController struct {
	registered   chan coordinator.Surface
	unregistered chan string
	calls        chan string

	snapshot state.Snapshot
}

func newFakeController() *fakeController {
	return &fakeController{
		registered:   make(chan coordinator.Surface, 4),
		unregistered: make(chan string, 4),
		calls:        make(chan string, 16),
		snapshot: state.Snapshot{
			ConnState: protocol.Connected,
		},
	}
}

func (f *fakeController) RegisterSurface(s coordinator.Surface) { f.registered <- s }
func (f *fakeController) UnregisterSurface(id string)           { f.unregistered <- id }
func (f *fakeController) Snapshot() state.Snapshot              { return f.snapshot }

func (f *fakeController) SetCurrentUser(user protocol.CurrentUser) {
	f.calls <- "SetCurrentUser:" + user.DisplayName
}

func (f *fakeController) CreateJam(surfaceID string, mode protocol.JamMode) {
	f.calls <- fmt.Sprintf("CreateJam:%s:%s", surfaceID, mode)
}

func (f *fakeController) JoinJam(surfaceID, inviteCode string) {
	f.calls <- fmt.Sprintf("JoinJam:%s:%s", surfaceID, inviteCode)
}

func (f *fakeController) AutoJoin(surfaceID, inviteCode string) {
	f.calls <- fmt.Sprintf("AutoJoin:%s:%s", surfaceID, inviteCode)
}

func (f *fakeController) LeaveJam() { f.calls <- "LeaveJam" }

func (f *fakeController) TrackUpdate(surfaceID string, track protocol.TrackInfo) {
	f.calls <- fmt.Sprintf("TrackUpdate:%s:%s", surfaceID, track.Title)
}

func (f *fakeController) ChangeMode(mode protocol.JamMode) {
	f.calls <- fmt.Sprintf("ChangeMode:%s", mode)
}

func (f *fakeController) QueueAdd(track protocol.TrackInfo) {
	f.calls <- "QueueAdd:" + track.Title
}

func (f *fakeController) QueueRemove(queueID string) {
	f.calls <- "QueueRemove:" + queueID
}

func (f *fakeController) SurfaceLocation(surfaceID, url string) {
	f.calls <- fmt.Sprintf("SurfaceLocation:%s:%s", surfaceID, url)
}

func (f *fakeController) waitCall(t *testing.T, prefix string) string {
	t.Helper()
	select {
	case call := <-f.calls:
		if !strings.HasPrefix(call, prefix) {
			t.Fatalf("Expected call %s..., got %s", prefix, call)
		}
		return call
	case <-time.After(time.Second):
		t.Fatalf("Timed out waiting for call %s", prefix)
		return ""
	}
}

// dialTestHub spins up a hub behind an httptest server and connects one
// surface to it.
func dialTestHub(t *testing.T, controller *fakeController) (*websocket.Conn, coordinator.Surface) {
	t.Helper()

	hub := NewHub(controller)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	select {
	case surface := <-controller.registered:
		return conn, surface
	case <-time.After(time.Second):
		t.Fatal("Surface was never registered")
		return nil, nil
	}
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame is not a JSON object: %v", err)
	}
	return frame
}

func frameType(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	if err := json.Unmarshal(frame["type"], &typ); err != nil {
		t.Fatalf("Frame has no type field: %v", err)
	}
	return typ
}

func TestHubStateRequest(t *testing.T) {
	controller := newFakeController()
	conn, _ := dialTestHub(t, controller)

	sendCommand(t, conn, Command{Type: CmdGetJamState})

	frame := readFrame(t, conn)
	if got := frameType(t, frame); got != state.UpdateType {
		t.Errorf("Expected %s, got %s", state.UpdateType, got)
	}
}

func TestHubCommandDispatch(t *testing.T) {
	controller := newFakeController()
	conn, surface := dialTestHub(t, controller)
	track := &protocol.TrackInfo{Title: "Song", Artist: "Band", TrackURL: "https://x"}

	cases := []struct {
		cmd    Command
		prefix string
	}{
		{Command{Type: CmdCreateJam, Mode: protocol.ModeHost}, "CreateJam:" + surface.ID() + ":host"},
		{Command{Type: CmdJoinJam, InviteCode: "ABC123"}, "JoinJam:" + surface.ID() + ":ABC123"},
		{Command{Type: CmdAutoJoin, InviteCode: "XYZ789"}, "AutoJoin:" + surface.ID() + ":XYZ789"},
		{Command{Type: CmdLeaveJam}, "LeaveJam"},
		{Command{Type: CmdTrackUpdate, Track: track}, "TrackUpdate:" + surface.ID() + ":Song"},
		{Command{Type: CmdCurrentUser, User: &protocol.CurrentUser{DisplayName: "Alice"}}, "SetCurrentUser:Alice"},
		{Command{Type: CmdChangeMode, Mode: protocol.ModeAnyone}, "ChangeMode:anyone"},
		{Command{Type: CmdQueueAdd, Track: track}, "QueueAdd:Song"},
		{Command{Type: CmdQueueRemove, QueueID: "q1"}, "QueueRemove:q1"},
		{Command{Type: CmdSurfaceLocation, URL: "https://soundcloud.com/feed"}, "SurfaceLocation:" + surface.ID()},
	}

	for _, tc := range cases {
		sendCommand(t, conn, tc.cmd)
		controller.waitCall(t, tc.prefix)
	}
}

func TestHubIgnoresMalformedCommands(t *testing.T) {
	controller := newFakeController()
	conn, _ := dialTestHub(t, controller)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("Failed to send garbage: %v", err)
	}
	sendCommand(t, conn, Command{Type: "NO_SUCH_COMMAND"})

	// The connection must survive both.
	sendCommand(t, conn, Command{Type: CmdLeaveJam})
	controller.waitCall(t, "LeaveJam")
}

func TestHubSurfaceDelivery(t *testing.T) {
	controller := newFakeController()
	conn, surface := dialTestHub(t, controller)

	t.Run("deliver pushes a state update", func(t *testing.T) {
		update := state.Snapshot{ConnState: protocol.Connecting}.UpdateMessage()
		if err := surface.Deliver(update); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}

		frame := readFrame(t, conn)
		if got := frameType(t, frame); got != state.UpdateType {
			t.Errorf("Expected %s, got %s", state.UpdateType, got)
		}
	})

	t.Run("play track pushes a directed command", func(t *testing.T) {
		track := protocol.TrackInfo{Title: "Song", Artist: "Band", TrackURL: "https://x"}
		if err := surface.PlayTrack(track); err != nil {
			t.Fatalf("PlayTrack failed: %v", err)
		}

		frame := readFrame(t, conn)
		if got := frameType(t, frame); got != PlayTrackType {
			t.Errorf("Expected %s, got %s", PlayTrackType, got)
		}
	})
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	controller := newFakeController()
	conn, surface := dialTestHub(t, controller)

	conn.Close()

	select {
	case id := <-controller.unregistered:
		if id != surface.ID() {
			t.Errorf("Expected unregister of %s, got %s", surface.ID(), id)
		}
	case <-time.After(time.Second):
		t.Fatal("Surface was never unregistered")
	}
}
