// Package websocket is the local hub that consumer surfaces attach to.
//
// The popup UI and the page-embedded scripts each open one WebSocket to the
// agent's /ws endpoint. Every connection registers as a coordinator surface:
// it receives JAM_STATE_UPDATE broadcasts (and, when pinned, directed
// PLAY_TRACK commands) and sends the surface command set: create/join/leave
// jam, track and user reports, queue and mode edits, and location reports
// that drive the auto-leave rule.
//
// The hub keeps one gorilla read/write pump per client with ping/pong
// deadlines. A client whose send buffer fills up is dropped rather than
// blocking the broadcast path; delivery to surfaces is best-effort.
package websocket
