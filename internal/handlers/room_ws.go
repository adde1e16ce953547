// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MushroomFleet/lobby-system/internal/database"
	"github.com/MushroomFleet/lobby-system/internal/room"
)

// Application-defined WebSocket close codes.
const (
	StatusBadSubprotocol websocket.StatusCode = 4000
	StatusUnknownRoom    websocket.StatusCode = 4004
)

// RoomWSHandler upgrades the connection, resolves the caller and the target
// room (by id or join code), seats them, and runs the command loop.
func RoomWSHandler(s *LobbyServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := strings.TrimPrefix(r.URL.Path, "/room/ws/")
		if target == "" || strings.Contains(target, "/") {
			http.Error(w, "missing room id or code", http.StatusBadRequest)
			return
		}

		// Resolve the caller before the upgrade so a freshly minted guest
		// cookie rides along on the 101 response.
		playerID, err := EnsureGuest(w, r)
		if err != nil {
			s.Logger.Warnf("player resolution failed: %v", err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"}, // tighten per deployment
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(StatusBadSubprotocol, "client must speak the lobby subprotocol")
			return
		}

		rm, ok := s.resolveRoom(target)
		if !ok {
			c.Close(StatusUnknownRoom, "room does not exist")
			return
		}

		p, err := database.GetPlayerByID(r.Context(), playerID)
		if err != nil {
			s.Logger.Warnf("failed to load player %s: %v", playerID, err)
			c.Close(websocket.StatusPolicyViolation, "unknown player")
			return
		}
		info := room.PlayerInfo{ID: p.ID, Username: p.Username, Level: p.Level, Avatar: p.Avatar}

		s.Sessions.Connect(playerID)

		// A join while seated elsewhere implicitly leaves the prior room.
		if cur, seated := s.Sessions.CurrentRoom(playerID); seated && cur != rm.ID {
			s.leaveCurrentRoom(playerID)
		}

		sub, err := rm.Connect(info)
		if err != nil {
			s.Sessions.Disconnect(playerID)
			c.Close(websocket.StatusPolicyViolation, fmt.Sprintf("cannot join: %v", err))
			return
		}
		s.Sessions.SetRoom(playerID, rm.ID)

		s.Logger.WithFields(logrus.Fields{
			"player_id": playerID,
			"room_id":   rm.ID,
			"remote":    r.RemoteAddr,
		}).Info("player connected to room")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writePump(ctx, c, sub, s.Logger)
		readPump(ctx, c, s, rm, sub)

		// Cleanup: drop the live subscription and let the grace timer
		// decide whether the seat is vacated.
		rm.Disconnect(playerID, sub)
		s.Sessions.Disconnect(playerID)
		s.Logger.WithFields(logrus.Fields{
			"player_id": playerID,
			"room_id":   rm.ID,
		}).Info("player disconnected from room")
	}
}

// resolveRoom accepts either a room uuid or a join code.
func (s *LobbyServer) resolveRoom(target string) (*room.Room, bool) {
	if id, err := uuid.Parse(target); err == nil {
		return s.Registry.FindByID(id)
	}
	return s.Registry.FindByCode(target)
}

// command is the inbound wire shape. Fields beyond Type are optional and
// validated per command before any room state is touched.
type command struct {
	Type     string `json:"type"`
	Ready    *bool  `json:"ready,omitempty"`
	Text     string `json:"text,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

// readPump reads and dispatches commands until the connection drops or the
// player leaves.
func readPump(ctx context.Context, c *websocket.Conn, s *LobbyServer, rm *room.Room, sub *room.Subscriber) {
	playerID := sub.PlayerID
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!errors.Is(err, context.Canceled) {
				s.Logger.Debugf("room %s: read error for player %s: %v", rm.ID, playerID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			sub.SendError("validation", "invalid JSON payload", s.Logger)
			continue
		}

		if done := dispatch(s, rm, sub, cmd); done {
			return
		}
	}
}

// dispatch validates the command's shape, then routes it into the room's
// critical section. Returns true when the connection should close.
func dispatch(s *LobbyServer, rm *room.Room, sub *room.Subscriber, cmd command) bool {
	playerID := sub.PlayerID

	switch cmd.Type {
	case "set_ready":
		if cmd.Ready == nil {
			sub.SendError("validation", "set_ready requires a ready flag", s.Logger)
			return false
		}
		if err := rm.SetReady(playerID, *cmd.Ready); err != nil {
			sub.SendError(errorCode(err), err.Error(), s.Logger)
		}

	case "chat":
		if err := rm.PostChat(playerID, cmd.Text); err != nil {
			sub.SendError(errorCode(err), err.Error(), s.Logger)
		}

	case "kick":
		target, err := uuid.Parse(cmd.TargetID)
		if err != nil {
			sub.SendError("validation", "kick requires a valid target_id", s.Logger)
			return false
		}
		if err := rm.Kick(playerID, target); err != nil {
			sub.SendError(errorCode(err), err.Error(), s.Logger)
			return false
		}
		s.Sessions.ClearRoom(target, rm.ID)

	case "start":
		gameID, err := rm.Start(playerID)
		if err != nil {
			sub.SendError(errorCode(err), err.Error(), s.Logger)
			return false
		}
		s.Logger.WithFields(logrus.Fields{
			"room_id": rm.ID,
			"game_id": gameID,
		}).Info("room launched into game")
		s.Sessions.ClearRoom(playerID, rm.ID)
		return true

	case "leave_room":
		if err := rm.Leave(playerID); err != nil {
			sub.SendError(errorCode(err), err.Error(), s.Logger)
		}
		s.Sessions.ClearRoom(playerID, rm.ID)
		return true

	default:
		sub.SendError("validation", "unknown command type: "+cmd.Type, s.Logger)
	}
	return false
}

// errorCode maps room errors onto the client-facing taxonomy.
func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrForbidden), errors.Is(err, room.ErrCannotKickSelf):
		return "forbidden"
	case errors.Is(err, room.ErrRoomFull):
		return "room_full"
	case errors.Is(err, room.ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, room.ErrNotMember):
		return "not_member"
	case errors.Is(err, room.ErrHostCannotReady):
		return "host_cannot_ready"
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, room.ErrPlayersNotReady):
		return "players_not_ready"
	case errors.Is(err, room.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, room.ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, room.ErrRoomClosed):
		return "room_closed"
	default:
		return "internal"
	}
}

// writePump forwards room events to the socket and keeps the connection
// alive with periodic pings. Exits when the subscription closes (after
// draining any buffered events) or the context ends.
func writePump(ctx context.Context, c *websocket.Conn, sub *room.Subscriber, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.Close(websocket.StatusGoingAway, "write pump stopping")

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sub.Out:
			if !ok {
				// Subscription closed by the room (leave, kick, launch).
				c.Close(websocket.StatusNormalClosure, "room closed subscription")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal event for player %s: %v", sub.PlayerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debugf("ping failed for player %s, assuming disconnect", sub.PlayerID)
				return
			}
		}
	}
}
