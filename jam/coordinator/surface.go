package coordinator

import (
	"github.com/noobtra/soundcloud-jam/jam/protocol"
	"github.com/noobtra/soundcloud-jam/jam/state"
)

// Surface is one registered consumer of jam state. Implementations must not
// block in Deliver or PlayTrack; both are best-effort.
type Surface interface {
	// ID returns the surface's opaque handle, stable for its lifetime.
	ID() string

	// Deliver pushes a state update to the surface.
	Deliver(update state.Update) error

	// PlayTrack directs the surface to start playing a track. Only the
	// pinned surface ever receives this.
	PlayTrack(track protocol.TrackInfo) error
}
