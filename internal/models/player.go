// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is an account row. Guests are created on the fly at first connect
// and carry no credentials.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email,omitempty"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`
	Level    int       `json:"level"`
	Avatar   string    `json:"avatar"`
	IsGuest  bool      `json:"is_guest"`
}
