// internal/session/manager.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultGrace is how long a disconnected player keeps their seat before
// the deferred leave fires.
const DefaultGrace = 5 * time.Second

// EvictFn is called exactly once when a disconnected player's grace period
// expires without a reconnect. It receives the player and the room they
// were seated in.
type EvictFn func(playerID, roomID uuid.UUID)

// Session binds one authenticated player to at most one room membership.
type Session struct {
	PlayerID uuid.UUID
	RoomID   uuid.UUID // uuid.Nil when not in a room

	// conns counts live connections; the grace timer only arms when the
	// last one drops. gen guards against a stale timer firing after a
	// reconnect re-armed the session.
	conns      int
	graceTimer *time.Timer
	gen        uint64
}

// Manager tracks active sessions and enforces the single-room invariant.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	grace    time.Duration
	onEvict  EvictFn
	logger   *logrus.Logger
}

// NewManager creates a session manager. grace <= 0 selects DefaultGrace.
func NewManager(grace time.Duration, onEvict EvictFn, logger *logrus.Logger) *Manager {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		grace:    grace,
		onEvict:  onEvict,
		logger:   logger,
	}
}

// Connect registers a live connection for the player, cancelling any
// pending eviction from an earlier disconnect.
func (m *Manager) Connect(playerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[playerID]
	if !ok {
		m.sessions[playerID] = &Session{PlayerID: playerID, conns: 1}
		return
	}
	s.conns++
	s.gen++
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
		m.logger.WithField("player_id", playerID).Debug("reconnect within grace period")
	}
}

// CurrentRoom returns the room the player is seated in, if any.
func (m *Manager) CurrentRoom(playerID uuid.UUID) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[playerID]
	if !ok || s.RoomID == uuid.Nil {
		return uuid.Nil, false
	}
	return s.RoomID, true
}

// SetRoom records the player's membership and returns the room they must
// implicitly leave first, if they were already seated elsewhere.
func (m *Manager) SetRoom(playerID, roomID uuid.UUID) (prior uuid.UUID, hadPrior bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[playerID]
	if !ok {
		s = &Session{PlayerID: playerID}
		m.sessions[playerID] = s
	}
	if s.RoomID != uuid.Nil && s.RoomID != roomID {
		prior, hadPrior = s.RoomID, true
	}
	s.RoomID = roomID
	if s.conns == 0 {
		// Seated without a live connection (room created over HTTP before
		// the socket opens): start the clock so an abandoned seat is
		// reclaimed through the normal eviction path.
		m.armGraceLocked(s)
	}
	return prior, hadPrior
}

// ClearRoom drops the membership record if it still points at roomID.
func (m *Manager) ClearRoom(playerID, roomID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[playerID]; ok && s.RoomID == roomID {
		s.RoomID = uuid.Nil
	}
}

// Disconnect arms the grace timer once the player's last connection drops.
// If they do not reconnect before it expires, the eviction callback fires
// exactly once with their room.
func (m *Manager) Disconnect(playerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[playerID]
	if !ok {
		return
	}
	if s.conns > 0 {
		s.conns--
	}
	if s.conns > 0 {
		return
	}
	if s.RoomID == uuid.Nil {
		delete(m.sessions, playerID)
		return
	}
	m.armGraceLocked(s)
}

// armGraceLocked (re)starts the session's eviction timer for its current
// room. Assumes mu is held and s.RoomID is set.
func (m *Manager) armGraceLocked(s *Session) {
	s.gen++
	gen := s.gen
	playerID, roomID := s.PlayerID, s.RoomID
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.graceTimer = time.AfterFunc(m.grace, func() {
		m.evict(playerID, roomID, gen)
	})
}

// evict runs when a grace timer fires. A generation mismatch means the
// player reconnected (or disconnected again) in the meantime.
func (m *Manager) evict(playerID, roomID uuid.UUID, gen uint64) {
	m.mu.Lock()
	s, ok := m.sessions[playerID]
	if !ok || s.gen != gen {
		m.mu.Unlock()
		return
	}
	s.RoomID = uuid.Nil
	s.graceTimer = nil
	delete(m.sessions, playerID)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"player_id": playerID,
		"room_id":   roomID,
	}).Info("grace period expired, evicting player")
	if m.onEvict != nil {
		m.onEvict(playerID, roomID)
	}
}
