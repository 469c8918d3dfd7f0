package discord

import (
	"github.com/MrWong99/tempo/internal/playback"
)

// CanControl reports whether userID may use the transport controls of a
// session in state st. The requester of the current track owns the session;
// with nothing playing the session is unclaimed and anyone may act.
func CanControl(st playback.State, userID string) bool {
	if st.Current == nil || st.Current.RequesterID == "" {
		return true
	}
	return st.Current.RequesterID == userID
}
