// internal/game/launcher.go
package game

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MushroomFleet/lobby-system/internal/room"
)

// Launcher is the local implementation of the game session collaborator.
// It allocates a game session id and takes ownership of the member list;
// the session itself runs outside this service.
type Launcher struct {
	Logger *logrus.Logger
}

// NewLauncher returns a Launcher logging through the given logger.
func NewLauncher(logger *logrus.Logger) *Launcher {
	return &Launcher{Logger: logger}
}

// Launch satisfies room.Launcher. It must stay non-blocking: it runs inside
// the room's start critical section.
func (l *Launcher) Launch(roomID uuid.UUID, mode room.GameMode, settings room.Settings, players []room.PlayerInfo) (uuid.UUID, error) {
	gameID, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, err
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID.String()
	}
	l.Logger.WithFields(logrus.Fields{
		"game_id": gameID,
		"room_id": roomID,
		"mode":    mode,
		"map":     settings.Map,
		"players": ids,
	}).Info("game session launched")
	return gameID, nil
}
