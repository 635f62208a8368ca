// Package validate checks user-supplied jam inputs before they reach the
// coordinator or the wire: invite codes, playback modes, track info, and
// display names. All checks return a descriptive error or nil.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
)

var (
	ErrEmptyInviteCode  = errors.New("invite code is empty")
	ErrInvalidMode      = errors.New("unknown playback mode")
	ErrEmptyDisplayName = errors.New("display name is empty")
)

// InviteCode checks that a code is non-empty, bounded, and alphanumeric,
// which is the only shape the server ever hands out.
func InviteCode(code string) error {
	if code == "" {
		return ErrEmptyInviteCode
	}
	if len(code) > protocol.MaxInviteCodeLength {
		return fmt.Errorf("invite code exceeds %d characters", protocol.MaxInviteCodeLength)
	}
	for _, r := range code {
		if !isAlphanumeric(r) {
			return fmt.Errorf("invite code contains invalid character %q", r)
		}
	}
	return nil
}

// Mode checks that a mode string is one of the known playback modes.
func Mode(mode string) error {
	if !protocol.JamMode(mode).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return nil
}

// Track checks that track info is complete enough to broadcast: title,
// artist, and URL present, and a non-negative playing window.
func Track(t protocol.TrackInfo) error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("track title is empty")
	}
	if strings.TrimSpace(t.Artist) == "" {
		return errors.New("track artist is empty")
	}
	if strings.TrimSpace(t.TrackURL) == "" {
		return errors.New("track URL is empty")
	}
	if t.EndTime < t.StartTime {
		return fmt.Errorf("track ends (%d) before it starts (%d)", t.EndTime, t.StartTime)
	}
	return nil
}

// DisplayName checks a user-facing name for presence and length.
func DisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyDisplayName
	}
	if len(name) > protocol.MaxDisplayNameLength {
		return fmt.Errorf("display name exceeds %d characters", protocol.MaxDisplayNameLength)
	}
	return nil
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
