package playbackmodule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mondominator/audiora/internal/events"
)

func newTestManager(t *testing.T, timeout time.Duration) (*SessionManager, *events.Bus) {
	t.Helper()
	bus := events.NewBus(hclog.NewNullLogger(), 64, 100)
	t.Cleanup(bus.Close)
	return NewSessionManager(hclog.NewNullLogger(), bus, timeout), bus
}

// drainEvents collects everything currently buffered for the subscriber.
func drainEvents(sub *events.Subscriber) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countByType(evs []events.Event, typ events.EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestUpsertSamePairReusesSession(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	id1 := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{Platform: "web"})
	id2 := manager.Upsert(1, 42, 30, StatePlaying, ClientInfo{})

	assert.Equal(t, id1, id2, "same user and audiobook should map to one session")
	assert.Equal(t, 1, manager.Count())

	session, err := manager.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, 30, session.Position)
	assert.Equal(t, "web", session.Client.Platform, "client info survives heartbeats that omit it")

	userSessions := manager.GetForUser(1)
	require.Len(t, userSessions, 1)
	assert.Equal(t, id1, userSessions[0].ID)
	assert.Equal(t, 30, userSessions[0].Position)
}

func TestUpsertDifferentBooksGetDistinctSessions(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	id1 := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})
	id2 := manager.Upsert(1, 43, 0, StatePlaying, ClientInfo{})

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, manager.Count())
	assert.Len(t, manager.GetForUser(1), 2)
}

func TestSessionIDDerivedFromStableKey(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	id1 := manager.Upsert(7, 9, 0, StatePlaying, ClientInfo{})
	manager.Stop(id1)
	id2 := manager.Upsert(7, 9, 0, StatePlaying, ClientInfo{})

	// Restarted sessions share the derived key prefix but not the suffix.
	assert.Equal(t, sessionKey(7, 9), id1[:len(id1)-9])
	assert.Equal(t, sessionKey(7, 9), id2[:len(id2)-9])
	assert.NotEqual(t, id1, id2)
}

func TestUpsertPublishesStartAndStateChanges(t *testing.T) {
	manager, bus := newTestManager(t, time.Minute)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub.ID)

	id := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})
	manager.Upsert(1, 42, 10, StatePlaying, ClientInfo{}) // position only, no event
	manager.Upsert(1, 42, 20, StatePaused, ClientInfo{})  // state change
	manager.Stop(id)

	evs := drainEvents(sub)
	assert.Equal(t, 1, countByType(evs, events.EventSessionStart))
	assert.Equal(t, 1, countByType(evs, events.EventSessionUpdate))
	assert.Equal(t, 1, countByType(evs, events.EventSessionStop))
}

func TestUpsertStoppedRemovesSession(t *testing.T) {
	manager, bus := newTestManager(t, time.Minute)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub.ID)

	id := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})
	stoppedID := manager.Upsert(1, 42, 99, StateStopped, ClientInfo{})

	assert.Equal(t, id, stoppedID)
	assert.Equal(t, 0, manager.Count())
	_, err := manager.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	evs := drainEvents(sub)
	assert.Equal(t, 1, countByType(evs, events.EventSessionStop))
}

func TestUpsertStoppedWithoutSessionCreatesNothing(t *testing.T) {
	manager, bus := newTestManager(t, time.Minute)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub.ID)

	id := manager.Upsert(1, 42, 0, StateStopped, ClientInfo{})

	assert.True(t, strings.HasPrefix(id, sessionKey(1, 42)))
	assert.Equal(t, 0, manager.Count())
	assert.Empty(t, drainEvents(sub))
}

func TestStopIsIdempotent(t *testing.T) {
	manager, bus := newTestManager(t, time.Minute)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub.ID)

	id := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})
	manager.Stop(id)
	manager.Stop(id)
	manager.Stop("no-such-session")

	evs := drainEvents(sub)
	assert.Equal(t, 1, countByType(evs, events.EventSessionStop), "repeated stops publish once")
}

func TestStaleSessionsAreInvisibleBeforeReaping(t *testing.T) {
	manager, _ := newTestManager(t, 20*time.Millisecond)

	id := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})
	time.Sleep(40 * time.Millisecond)

	_, err := manager.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, manager.Count())
	assert.Empty(t, manager.GetForUser(1))
	assert.Empty(t, manager.GetAll())
}

func TestStaleSessionReplacedByFreshUpsert(t *testing.T) {
	manager, _ := newTestManager(t, 20*time.Millisecond)

	id1 := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})
	time.Sleep(40 * time.Millisecond)
	id2 := manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})

	assert.NotEqual(t, id1, id2, "a stale leftover is replaced, not revived")
	assert.Equal(t, 1, manager.Count())
}

func TestReapStaleRemovesAndPublishesOnce(t *testing.T) {
	manager, bus := newTestManager(t, 20*time.Millisecond)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub.ID)

	manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})
	manager.Upsert(2, 42, 0, StatePlaying, ClientInfo{})
	time.Sleep(40 * time.Millisecond)
	manager.Upsert(3, 42, 0, StatePlaying, ClientInfo{}) // still live

	reaped := manager.reapStale()
	assert.Len(t, reaped, 2)
	assert.Equal(t, 1, manager.Count())

	// A second sweep finds nothing and publishes nothing more.
	assert.Empty(t, manager.reapStale())

	evs := drainEvents(sub)
	assert.Equal(t, 2, countByType(evs, events.EventSessionStop))
}

func TestReaperSweepsPeriodically(t *testing.T) {
	manager, bus := newTestManager(t, 20*time.Millisecond)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub.ID)

	manager.Upsert(1, 42, 0, StatePlaying, ClientInfo{})

	reaper := NewReaper(hclog.NewNullLogger(), manager, 10*time.Millisecond)
	require.NoError(t, reaper.Start(context.Background()))
	defer reaper.Stop()

	require.Eventually(t, func() bool {
		return manager.Count() == 0
	}, 2*time.Second, 10*time.Millisecond, "reaper should remove the stale session")

	require.Eventually(t, func() bool {
		return countByType(drainEvents(sub), events.EventSessionStop) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
