// internal/room/errors.go
package room

import "errors"

// Sentinel errors returned by room operations. Conflict-class errors leave the
// room unmodified and no delta is emitted.
var (
	ErrRoomFull         = errors.New("room is full")
	ErrAlreadyMember    = errors.New("player is already a member")
	ErrNotMember        = errors.New("player is not a member of this room")
	ErrHostCannotReady  = errors.New("host readiness is implicit")
	ErrForbidden        = errors.New("action requires host authority")
	ErrCannotKickSelf   = errors.New("host cannot kick themselves")
	ErrNotEnoughPlayers = errors.New("at least 2 players are required to start")
	ErrPlayersNotReady  = errors.New("not all players are ready")
	ErrEmptyMessage     = errors.New("chat message is empty")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrRoomClosed       = errors.New("room is closed")

	// Registry errors.
	ErrNotFound        = errors.New("room not found")
	ErrInvalidCapacity = errors.New("capacity must be between 2 and 8")
	ErrInvalidGameMode = errors.New("unknown game mode")
	ErrNameRequired    = errors.New("room name is required")
)
