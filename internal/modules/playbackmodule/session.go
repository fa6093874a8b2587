package playbackmodule

import (
	"fmt"
	"time"

	"github.com/mondominator/audiora/internal/utils"
)

// SessionState is the playback state reported by a client.
type SessionState string

const (
	StatePlaying SessionState = "playing"
	StatePaused  SessionState = "paused"
	StateStopped SessionState = "stopped"
)

// Valid reports whether the state is one a client may submit.
func (s SessionState) Valid() bool {
	switch s {
	case StatePlaying, StatePaused, StateStopped:
		return true
	}
	return false
}

// ClientInfo describes the device a session belongs to.
type ClientInfo struct {
	Platform  string `json:"platform,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// PlaybackSession is one user's progress through one audiobook.
type PlaybackSession struct {
	ID            string       `json:"id"`
	UserID        uint         `json:"user_id"`
	AudiobookID   uint         `json:"audiobook_id"`
	Position      int          `json:"position"` // seconds into the book
	State         SessionState `json:"state"`
	Client        ClientInfo   `json:"client"`
	StartedAt     time.Time    `json:"started_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// sessionKey derives the stable key for a (user, audiobook) pair so repeat
// upserts land on the same logical session.
func sessionKey(userID, audiobookID uint) string {
	return utils.GenerateNamespaceUUID(utils.NamespaceSessions,
		fmt.Sprintf("%d:%d", userID, audiobookID))
}

// newSessionID appends a random suffix so a restarted session is
// distinguishable from the one it replaces.
func newSessionID(key string) string {
	return key + "-" + utils.GenerateShortUUID()
}
