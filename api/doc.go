// Package api exposes the agent's REST surface.
//
// The API is a thin command/read layer over the coordinator: GET /api/state
// returns the current snapshot, and the command endpoints issue the same
// operations the WebSocket surfaces use. REST is pull-based, so commands
// issued here act through a dedicated surface handle whose deliveries are
// discarded; clients poll the state endpoint instead.
//
// Endpoints:
//
//	GET    /api/state          current snapshot
//	POST   /api/jam            create a jam {"mode": "anyone"|"host"}
//	POST   /api/jam/join       join via invite code {"inviteCode": "..."}
//	DELETE /api/jam            leave the current jam
//	PUT    /api/jam/mode       switch playback mode
//	POST   /api/track          report local playback
//	POST   /api/queue          add a track to the shared queue
//	DELETE /api/queue/{id}     remove a queue entry
//	PUT    /api/user           set the current user profile
//	GET    /healthz            liveness probe
//	GET    /ws                 surface WebSocket (hub)
//
// Commands are accepted with 202: confirmation arrives asynchronously from
// the jam server and shows up in subsequent state reads.
package api
