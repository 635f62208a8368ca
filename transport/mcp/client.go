package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/noobtra/soundcloud-jam/jam/state"
)

// Client is a thin MCP client that proxies to the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API.
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools.
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"SoundCloud Jam Agent",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`SoundCloud Jam Agent - MCP Interface

This is a thin client that proxies all requests to the agent's REST API.

The agent keeps one local jam session in sync with the remote jam server:
who is in the jam, what everyone is playing, the shared queue, and the
playback mode.

AVAILABLE TOOLS:
- jam_state: Get the current session snapshot (members, tracks, queue, connection)
- create_jam: Open a new jam session
- join_jam: Join an existing jam via invite code
- leave_jam: Leave the current jam
- change_mode: Switch who controls playback ("host" or "anyone")
- queue_add: Add a track to the shared queue
- queue_remove: Remove a queue entry by its ID

Session commands are asynchronous: the jam server confirms them over the
agent's WebSocket, so check jam_state after issuing one.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools.
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "jam_state",
		Description: "Get the current jam session snapshot",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleJamState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_jam",
		Description: "Create a new jam session with the local user as host",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"anyone", "host"},
					"description": "Who may control playback (default: anyone)",
				},
			},
		},
	}, c.handleCreateJam)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "join_jam",
		Description: "Join an existing jam session via invite code",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"invite_code": map[string]interface{}{
					"type":        "string",
					"description": "Invite code of the jam to join",
				},
			},
			Required: []string{"invite_code"},
		},
	}, c.handleJoinJam)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "leave_jam",
		Description: "Leave the current jam session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleLeaveJam)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "change_mode",
		Description: "Switch who may control playback in the current jam",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"anyone", "host"},
					"description": "New playback mode",
				},
			},
			Required: []string{"mode"},
		},
	}, c.handleChangeMode)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "queue_add",
		Description: "Add a track to the shared jam queue",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Track title",
				},
				"artist": map[string]interface{}{
					"type":        "string",
					"description": "Track artist",
				},
				"track_url": map[string]interface{}{
					"type":        "string",
					"description": "SoundCloud track URL",
				},
				"artwork_url": map[string]interface{}{
					"type":        "string",
					"description": "Artwork URL (optional)",
				},
			},
			Required: []string{"title", "artist", "track_url"},
		},
	}, c.handleQueueAdd)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "queue_remove",
		Description: "Remove an entry from the shared jam queue",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"queue_id": map[string]interface{}{
					"type":        "string",
					"description": "Queue entry ID to remove",
				},
			},
			Required: []string{"queue_id"},
		},
	}, c.handleQueueRemove)
}

// GetMCPServer returns the underlying MCP server for HTTP mounting.
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleJamState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var update state.Update
	if err := c.apiCall("GET", "/api/state", nil, &update); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(update.Snapshot)), nil
}

func (c *Client) handleCreateJam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	mode, _ := args["mode"].(string)

	body := map[string]string{}
	if mode != "" {
		body["mode"] = mode
	}

	if err := c.apiCall("POST", "/api/jam", body, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Jam creation requested; check jam_state for the invite code once the server confirms."), nil
}

func (c *Client) handleJoinJam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	inviteCode, _ := args["invite_code"].(string)

	body := map[string]string{"inviteCode": inviteCode}
	if err := c.apiCall("POST", "/api/jam/join", body, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Join requested for invite code %s; check jam_state for confirmation.", inviteCode)), nil
}

func (c *Client) handleLeaveJam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := c.apiCall("DELETE", "/api/jam", nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Left the jam."), nil
}

func (c *Client) handleChangeMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	mode, _ := args["mode"].(string)

	body := map[string]string{"mode": mode}
	if err := c.apiCall("PUT", "/api/jam/mode", body, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Mode change to %q requested.", mode)), nil
}

func (c *Client) handleQueueAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	title, _ := args["title"].(string)
	artist, _ := args["artist"].(string)
	trackURL, _ := args["track_url"].(string)
	artworkURL, _ := args["artwork_url"].(string)

	body := map[string]interface{}{
		"title":      title,
		"artist":     artist,
		"trackUrl":   trackURL,
		"artworkUrl": artworkURL,
	}
	if err := c.apiCall("POST", "/api/queue", body, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued %q by %s.", title, artist)), nil
}

func (c *Client) handleQueueRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	queueID, _ := args["queue_id"].(string)
	if queueID == "" {
		return mcp.NewToolResultError("queue_id is required"), nil
	}

	if err := c.apiCall("DELETE", "/api/queue/"+queueID, nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed queue entry %s.", queueID)), nil
}

// formatSnapshot renders a snapshot as readable text for tool output.
func formatSnapshot(snap state.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Connection: %s\n", snap.ConnState)
	if snap.CurrentUser != nil {
		fmt.Fprintf(&b, "Logged in as: %s\n", snap.CurrentUser.DisplayName)
	} else {
		b.WriteString("Logged in as: (unknown)\n")
	}

	if snap.Session == nil {
		b.WriteString("Not in a jam.\n")
		return b.String()
	}

	s := snap.Session
	fmt.Fprintf(&b, "\nJam %s (invite code: %s, mode: %s)\n", s.JamID, s.InviteCode, s.Mode)
	fmt.Fprintf(&b, "Members (%d):\n", len(s.Users))
	for _, u := range s.Users {
		marker := ""
		if u.IsHost {
			marker = " [host]"
		}
		if u.ID == snap.UserID {
			marker += " (you)"
		}
		fmt.Fprintf(&b, "- %s%s", u.DisplayName, marker)
		if u.CurrentTrack != nil {
			fmt.Fprintf(&b, " - playing %q by %s", u.CurrentTrack.Title, u.CurrentTrack.Artist)
		}
		b.WriteString("\n")
	}

	if len(s.Queue) > 0 {
		fmt.Fprintf(&b, "Queue (%d):\n", len(s.Queue))
		for i, q := range s.Queue {
			fmt.Fprintf(&b, "%d. %q by %s (added by %s, id %s)\n",
				i+1, q.Track.Title, q.Track.Artist, q.AddedByName, q.QueueID)
		}
	}

	return b.String()
}
