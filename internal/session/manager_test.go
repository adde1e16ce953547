// internal/session/manager_test.go
package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evictRecorder collects eviction callbacks for inspection.
type evictRecorder struct {
	mu     sync.Mutex
	evicts []struct{ player, room uuid.UUID }
}

func (er *evictRecorder) fn(playerID, roomID uuid.UUID) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.evicts = append(er.evicts, struct{ player, room uuid.UUID }{playerID, roomID})
}

func (er *evictRecorder) count() int {
	er.mu.Lock()
	defer er.mu.Unlock()
	return len(er.evicts)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestDisconnectEvictsAfterGrace(t *testing.T) {
	rec := &evictRecorder{}
	m := NewManager(20*time.Millisecond, rec.fn, testLogger())
	player, room := uuid.New(), uuid.New()

	m.Connect(player)
	m.SetRoom(player, room)
	m.Disconnect(player)

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, player, rec.evicts[0].player)
	assert.Equal(t, room, rec.evicts[0].room)
	rec.mu.Unlock()

	// The session is gone after eviction.
	_, seated := m.CurrentRoom(player)
	assert.False(t, seated)

	// The timer fires once and only once.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestReconnectCancelsEviction(t *testing.T) {
	rec := &evictRecorder{}
	m := NewManager(30*time.Millisecond, rec.fn, testLogger())
	player, room := uuid.New(), uuid.New()

	m.Connect(player)
	m.SetRoom(player, room)
	m.Disconnect(player)
	m.Connect(player) // back within grace

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "reconnect must cancel the pending eviction")

	got, seated := m.CurrentRoom(player)
	require.True(t, seated)
	assert.Equal(t, room, got)
}

func TestOverlappingConnectionsDeferTimer(t *testing.T) {
	rec := &evictRecorder{}
	m := NewManager(20*time.Millisecond, rec.fn, testLogger())
	player, room := uuid.New(), uuid.New()

	// A reconnect can overlap the old connection: the old socket's
	// disconnect must not start the clock while the new one is live.
	m.Connect(player)
	m.SetRoom(player, room)
	m.Connect(player)
	m.Disconnect(player)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "one connection is still live")

	m.Disconnect(player)
	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestSeatWithoutConnectionIsReclaimed(t *testing.T) {
	rec := &evictRecorder{}
	m := NewManager(20*time.Millisecond, rec.fn, testLogger())
	player, room := uuid.New(), uuid.New()

	// Room created over HTTP, socket never opened: the seat must not leak.
	m.SetRoom(player, room)

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, player, rec.evicts[0].player)
	assert.Equal(t, room, rec.evicts[0].room)
	rec.mu.Unlock()
}

func TestSocketArrivalCancelsCreateEviction(t *testing.T) {
	rec := &evictRecorder{}
	m := NewManager(30*time.Millisecond, rec.fn, testLogger())
	player, room := uuid.New(), uuid.New()

	m.SetRoom(player, room)
	m.Connect(player) // websocket opened within grace

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "connecting must cancel the create-time eviction")

	got, seated := m.CurrentRoom(player)
	require.True(t, seated)
	assert.Equal(t, room, got)
}

func TestSetRoomReportsPriorSeat(t *testing.T) {
	m := NewManager(time.Minute, nil, testLogger())
	player, roomA, roomB := uuid.New(), uuid.New(), uuid.New()

	m.Connect(player)
	prior, had := m.SetRoom(player, roomA)
	assert.False(t, had)
	assert.Equal(t, uuid.Nil, prior)

	// Re-seating in the same room is not a move.
	prior, had = m.SetRoom(player, roomA)
	assert.False(t, had)

	prior, had = m.SetRoom(player, roomB)
	require.True(t, had, "joining a second room reports the room to vacate")
	assert.Equal(t, roomA, prior)

	got, seated := m.CurrentRoom(player)
	require.True(t, seated)
	assert.Equal(t, roomB, got)
}

func TestClearRoomOnlyWhenCurrent(t *testing.T) {
	m := NewManager(time.Minute, nil, testLogger())
	player, roomA, roomB := uuid.New(), uuid.New(), uuid.New()

	m.Connect(player)
	m.SetRoom(player, roomA)

	// A stale clear for a room the player already moved on from is ignored.
	m.SetRoom(player, roomB)
	m.ClearRoom(player, roomA)
	got, seated := m.CurrentRoom(player)
	require.True(t, seated)
	assert.Equal(t, roomB, got)

	m.ClearRoom(player, roomB)
	_, seated = m.CurrentRoom(player)
	assert.False(t, seated)
}

func TestDisconnectWithoutRoomDropsSession(t *testing.T) {
	rec := &evictRecorder{}
	m := NewManager(10*time.Millisecond, rec.fn, testLogger())
	player := uuid.New()

	m.Connect(player)
	m.Disconnect(player)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "no seat means nothing to evict")
	_, seated := m.CurrentRoom(player)
	assert.False(t, seated)
}
