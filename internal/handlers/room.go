// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MushroomFleet/lobby-system/internal/database"
	"github.com/MushroomFleet/lobby-system/internal/room"
)

// CreateRoomHandler creates a room from the caller's spec. The creator is
// seated as sole member and host; if they were in another room, they leave
// it first.
func CreateRoomHandler(s *LobbyServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, ok := requirePlayer(w, r)
		if !ok {
			return
		}

		var spec room.CreateSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}
		if spec.MaxPlayers == 0 {
			spec.MaxPlayers = 4
		}

		p, err := database.GetPlayerByID(r.Context(), playerID)
		if err != nil {
			http.Error(w, "player not found", http.StatusNotFound)
			return
		}
		host := room.PlayerInfo{ID: p.ID, Username: p.Username, Level: p.Level, Avatar: p.Avatar}

		s.leaveCurrentRoom(playerID)

		created, err := s.Registry.Create(spec, host)
		if err != nil {
			switch {
			case errors.Is(err, room.ErrNameRequired),
				errors.Is(err, room.ErrInvalidCapacity),
				errors.Is(err, room.ErrInvalidGameMode):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, "error creating room", http.StatusInternalServerError)
			}
			return
		}
		s.Sessions.SetRoom(playerID, created.ID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(created.Snapshot())
	}
}

// ListRoomsHandler returns public rooms still forming, with occupancy.
func ListRoomsHandler(s *LobbyServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requirePlayer(w, r); !ok {
			return
		}

		f := room.Filter{
			Search: r.URL.Query().Get("search"),
			Mode:   room.GameMode(r.URL.Query().Get("mode")),
		}
		rooms := s.Registry.ListPublic(f)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rooms)
	}
}
