package playbackmodule

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mondominator/audiora/internal/events"
)

// ErrSessionNotFound is returned when no live session has the given ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionManager is the in-memory registry of active playback sessions. It
// owns the primary map (session ID -> session), a per-user index for user
// queries, and a key index so the same (user, audiobook) pair reuses one
// logical session. All methods are safe for concurrent use, including
// concurrent calls from the reaper.
type SessionManager struct {
	logger  hclog.Logger
	bus     *events.Bus
	timeout time.Duration

	mu     sync.RWMutex
	byID   map[string]*PlaybackSession
	byUser map[uint]map[string]struct{}
	byKey  map[string]string // stable key -> live session ID
}

// NewSessionManager creates a session registry. timeout is how long a
// session stays live without a heartbeat.
func NewSessionManager(logger hclog.Logger, bus *events.Bus, timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &SessionManager{
		logger:  logger.Named("sessions"),
		bus:     bus,
		timeout: timeout,
		byID:    make(map[string]*PlaybackSession),
		byUser:  make(map[uint]map[string]struct{}),
		byKey:   make(map[string]string),
	}
}

// Upsert creates or refreshes the session for (userID, audiobookID) and
// returns its ID. Every call refreshes the heartbeat; creation and state
// transitions publish their event synchronously after the write. Upserting
// state "stopped" removes the session (idempotently).
func (sm *SessionManager) Upsert(userID, audiobookID uint, position int, state SessionState, client ClientInfo) string {
	key := sessionKey(userID, audiobookID)

	sm.mu.Lock()

	if sid, ok := sm.byKey[key]; ok {
		session := sm.byID[sid]
		if sm.live(session) {
			if state == StateStopped {
				sm.removeLocked(session)
				snapshot := *session
				snapshot.State = StateStopped
				snapshot.Position = position
				sm.mu.Unlock()
				sm.publish(events.EventSessionStop, &snapshot)
				return sid
			}

			stateChanged := session.State != state
			session.Position = position
			session.State = state
			session.LastHeartbeat = time.Now()
			if client.IPAddress != "" {
				session.Client.IPAddress = client.IPAddress
			}
			if client.Platform != "" {
				session.Client.Platform = client.Platform
			}
			if client.UserAgent != "" {
				session.Client.UserAgent = client.UserAgent
			}
			snapshot := *session
			sm.mu.Unlock()

			if stateChanged {
				sm.publish(events.EventSessionUpdate, &snapshot)
			}
			return sid
		}
		// Stale leftover the reaper has not swept yet; replace it.
		sm.removeLocked(session)
	}

	if state == StateStopped {
		// Stopping a session that does not exist is a success, not an error.
		sm.mu.Unlock()
		return newSessionID(key)
	}

	now := time.Now()
	session := &PlaybackSession{
		ID:            newSessionID(key),
		UserID:        userID,
		AudiobookID:   audiobookID,
		Position:      position,
		State:         state,
		Client:        client,
		StartedAt:     now,
		LastHeartbeat: now,
	}
	sm.byID[session.ID] = session
	sm.byKey[key] = session.ID
	if sm.byUser[userID] == nil {
		sm.byUser[userID] = make(map[string]struct{})
	}
	sm.byUser[userID][session.ID] = struct{}{}
	snapshot := *session
	sm.mu.Unlock()

	sm.logger.Info("playback session started",
		"sessionID", session.ID, "userID", userID, "audiobookID", audiobookID)
	sm.publish(events.EventSessionStart, &snapshot)
	return snapshot.ID
}

// Get returns a live session by ID. Stale sessions are invisible even before
// the reaper removes them.
func (sm *SessionManager) Get(sessionID string) (*PlaybackSession, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.byID[sessionID]
	if !ok || !sm.live(session) {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

// GetForUser returns the user's live sessions via the secondary index.
func (sm *SessionManager) GetForUser(userID uint) []*PlaybackSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var out []*PlaybackSession
	for sid := range sm.byUser[userID] {
		if session := sm.byID[sid]; session != nil && sm.live(session) {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out
}

// GetAll returns every live session.
func (sm *SessionManager) GetAll() []*PlaybackSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]*PlaybackSession, 0, len(sm.byID))
	for _, session := range sm.byID {
		if sm.live(session) {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out
}

// Stop removes the session and publishes session.stop. Stopping an unknown
// or already-stopped session succeeds silently so client retries never see
// an error.
func (sm *SessionManager) Stop(sessionID string) {
	sm.mu.Lock()
	session, ok := sm.byID[sessionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	sm.removeLocked(session)
	snapshot := *session
	snapshot.State = StateStopped
	sm.mu.Unlock()

	sm.logger.Info("playback session stopped", "sessionID", sessionID)
	sm.publish(events.EventSessionStop, &snapshot)
}

// reapStale removes every session past the heartbeat timeout and returns the
// removed snapshots; one session.stop is published per removal.
func (sm *SessionManager) reapStale() []*PlaybackSession {
	sm.mu.Lock()
	var reaped []*PlaybackSession
	for _, session := range sm.byID {
		if !sm.live(session) {
			sm.removeLocked(session)
			snapshot := *session
			snapshot.State = StateStopped
			reaped = append(reaped, &snapshot)
		}
	}
	sm.mu.Unlock()

	for _, snapshot := range reaped {
		sm.logger.Info("reaped stale session",
			"sessionID", snapshot.ID, "lastHeartbeat", snapshot.LastHeartbeat)
		sm.publish(events.EventSessionStop, snapshot)
	}
	return reaped
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	n := 0
	for _, session := range sm.byID {
		if sm.live(session) {
			n++
		}
	}
	return n
}

// live reports whether the session's heartbeat is within the timeout.
// Caller holds sm.mu.
func (sm *SessionManager) live(session *PlaybackSession) bool {
	return time.Since(session.LastHeartbeat) <= sm.timeout
}

// removeLocked deletes the session from all three maps. Caller holds sm.mu.
func (sm *SessionManager) removeLocked(session *PlaybackSession) {
	delete(sm.byID, session.ID)
	delete(sm.byKey, sessionKey(session.UserID, session.AudiobookID))
	if userSessions, ok := sm.byUser[session.UserID]; ok {
		delete(userSessions, session.ID)
		if len(userSessions) == 0 {
			delete(sm.byUser, session.UserID)
		}
	}
}

func (sm *SessionManager) publish(eventType events.EventType, session *PlaybackSession) {
	sm.bus.Publish(events.NewEvent(eventType, map[string]interface{}{
		"session_id":   session.ID,
		"user_id":      session.UserID,
		"audiobook_id": session.AudiobookID,
		"position":     session.Position,
		"state":        string(session.State),
		"client_ip":    session.Client.IPAddress,
		"platform":     session.Client.Platform,
	}))
}
