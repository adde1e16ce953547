// internal/handlers/server.go
package handlers

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MushroomFleet/lobby-system/internal/cache"
	"github.com/MushroomFleet/lobby-system/internal/room"
	"github.com/MushroomFleet/lobby-system/internal/session"
)

// LobbyServer bundles the room registry and session manager behind the
// HTTP/WS surface.
type LobbyServer struct {
	Registry *room.Registry
	Sessions *session.Manager
	Logger   *logrus.Logger
}

// NewLobbyServer wires the registry, the session manager's eviction path,
// and (when Redis is connected) the chronicle sink.
func NewLobbyServer(logger *logrus.Logger, launcher room.Launcher) *LobbyServer {
	s := &LobbyServer{Logger: logger}

	var sink room.EventSink
	if cache.Rdb != nil {
		sink = func(roomID uuid.UUID, seq int64, actor uuid.UUID, eventType string, payload map[string]interface{}) {
			rec := cache.RoomEventRecord{
				RoomID:    roomID,
				Seq:       seq,
				ActorID:   actor,
				EventType: eventType,
				Payload:   payload,
				Timestamp: time.Now().UnixMilli(),
			}
			// Fire-and-forget: the sink runs inside the room's critical
			// section, so the network hop happens off to the side.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := cache.PublishRoomEvent(ctx, rec); err != nil {
					logger.Warnf("failed to chronicle room event: %v", err)
				}
			}()
		}
	}

	s.Registry = room.NewRegistry(logger, launcher, sink)
	s.Sessions = session.NewManager(graceFromEnv(), s.evictPlayer, logger)
	return s
}

// graceFromEnv reads SESSION_GRACE (e.g. "5s"); zero selects the default.
func graceFromEnv() time.Duration {
	v := os.Getenv("SESSION_GRACE")
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// evictPlayer is the session manager's grace-expiry callback: the deferred
// leave for a player whose connection never came back.
func (s *LobbyServer) evictPlayer(playerID, roomID uuid.UUID) {
	r, ok := s.Registry.FindByID(roomID)
	if !ok {
		return
	}
	if err := r.Leave(playerID); err != nil {
		s.Logger.WithFields(logrus.Fields{
			"player_id": playerID,
			"room_id":   roomID,
		}).Debugf("deferred leave skipped: %v", err)
	}
}

// leaveCurrentRoom implicitly removes the player from whatever room they
// are seated in, if any. Used before create/join seats them elsewhere.
func (s *LobbyServer) leaveCurrentRoom(playerID uuid.UUID) {
	roomID, ok := s.Sessions.CurrentRoom(playerID)
	if !ok {
		return
	}
	if r, found := s.Registry.FindByID(roomID); found {
		if err := r.Leave(playerID); err != nil {
			s.Logger.Debugf("implicit leave of room %s failed: %v", roomID, err)
		}
	}
	s.Sessions.ClearRoom(playerID, roomID)
}
