// Package mcp exposes the jam agent over the Model Context Protocol.
//
// The Client is a thin proxy: every tool call turns into a request against
// the agent's own REST API, so MCP stays a pure alternate control surface
// with no business logic of its own. It backs the /mcp HTTP endpoint.
//
// Tools:
//
//   - jam_state: current session snapshot
//   - create_jam / join_jam / leave_jam: session lifecycle
//   - change_mode: switch who controls playback
//   - queue_add / queue_remove: shared queue edits
package mcp
