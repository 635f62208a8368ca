// Package protocol defines the wire types shared with the jam server and the
// codec that moves them across the WebSocket.
//
// The wire format is newline-free JSON, one record per WebSocket text frame,
// discriminated by a "type" field. Client and server messages are modeled as
// two closed sum types (ClientMessage / ServerMessage); every variant carries
// its own tag so encoding is deterministic and decoding can dispatch
// exhaustively.
//
// Core Types:
//
// TrackInfo describes a playing track using absolute wall-clock timestamps
// (Unix milliseconds) for start and end, so any consumer can compute progress
// without knowing the sender's clock offset at creation time.
//
// JamSession is the full session state: membership, host, playback mode, and
// the shared queue. JamUser is one participant; CurrentUser is the local
// user's own profile as scraped from SoundCloud.
//
// Adding a message kind means adding a variant struct, its tag constant, and
// a decode case; the compiler flags every switch that does not handle it.
package protocol
