// internal/handlers/handlers_test.go
package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MushroomFleet/lobby-system/internal/auth"
	"github.com/MushroomFleet/lobby-system/internal/game"
	"github.com/MushroomFleet/lobby-system/internal/room"
	"github.com/MushroomFleet/lobby-system/internal/session"
)

func newTestServer(t *testing.T) *LobbyServer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s := &LobbyServer{Logger: logger}
	s.Registry = room.NewRegistry(logger, game.NewLauncher(logger), nil)
	s.Sessions = session.NewManager(time.Minute, s.evictPlayer, logger)
	return s
}

func seatPlayer(t *testing.T, s *LobbyServer, rm *room.Room, name string) (room.PlayerInfo, *room.Subscriber) {
	t.Helper()
	p := room.PlayerInfo{ID: uuid.New(), Username: name, Level: 1, Avatar: "wolf"}
	sub, err := rm.Connect(p)
	require.NoError(t, err)
	s.Sessions.Connect(p.ID)
	s.Sessions.SetRoom(p.ID, rm.ID)
	return p, sub
}

func makeRoom(t *testing.T, s *LobbyServer) (*room.Room, room.PlayerInfo, *room.Subscriber) {
	t.Helper()
	host := room.PlayerInfo{ID: uuid.New(), Username: "host", Level: 1, Avatar: "dragon"}
	rm, err := s.Registry.Create(room.CreateSpec{Name: "Dispatch Test", MaxPlayers: 4}, host)
	require.NoError(t, err)
	sub, err := rm.Connect(host)
	require.NoError(t, err)
	s.Sessions.Connect(host.ID)
	s.Sessions.SetRoom(host.ID, rm.ID)
	return rm, host, sub
}

func drainEvents(sub *room.Subscriber) []room.Event {
	var out []room.Event
	for {
		select {
		case ev, ok := <-sub.Out:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// lastErrorCode returns the code of the last error event in the buffer, or "".
func lastErrorCode(evs []room.Event) string {
	code := ""
	for _, ev := range evs {
		if ev["type"] == "error" {
			code, _ = ev["code"].(string)
		}
	}
	return code
}

func TestDispatchSetReadyRequiresFlag(t *testing.T) {
	s := newTestServer(t)
	rm, _, _ := makeRoom(t, s)
	_, sub := seatPlayer(t, s, rm, "p2")
	drainEvents(sub)

	done := dispatch(s, rm, sub, command{Type: "set_ready"})
	assert.False(t, done)
	assert.Equal(t, "validation", lastErrorCode(drainEvents(sub)))

	// Nothing was broadcast or mutated.
	snap := rm.Snapshot()
	for _, m := range snap.Members {
		if m.ID == sub.PlayerID {
			assert.False(t, m.IsReady)
		}
	}
}

func TestDispatchKickRequiresValidTarget(t *testing.T) {
	s := newTestServer(t)
	rm, _, hostSub := makeRoom(t, s)
	_, p2Sub := seatPlayer(t, s, rm, "p2")
	drainEvents(hostSub)
	drainEvents(p2Sub)

	seqBefore := rm.Snapshot().Seq
	done := dispatch(s, rm, hostSub, command{Type: "kick", TargetID: "not-a-uuid"})
	assert.False(t, done)
	assert.Equal(t, "validation", lastErrorCode(drainEvents(hostSub)))
	assert.Equal(t, seqBefore, rm.Snapshot().Seq, "rejected kick must not emit a delta")
	assert.Empty(t, drainEvents(p2Sub), "validation errors reach only the sender")
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestServer(t)
	rm, _, hostSub := makeRoom(t, s)
	drainEvents(hostSub)

	done := dispatch(s, rm, hostSub, command{Type: "self_destruct"})
	assert.False(t, done)
	assert.Equal(t, "validation", lastErrorCode(drainEvents(hostSub)))
}

func TestDispatchChatErrors(t *testing.T) {
	s := newTestServer(t)
	rm, _, hostSub := makeRoom(t, s)
	drainEvents(hostSub)

	done := dispatch(s, rm, hostSub, command{Type: "chat", Text: "   "})
	assert.False(t, done)
	assert.Equal(t, "empty_message", lastErrorCode(drainEvents(hostSub)))
}

func TestDispatchStartForbiddenForNonHost(t *testing.T) {
	s := newTestServer(t)
	rm, _, _ := makeRoom(t, s)
	_, p2Sub := seatPlayer(t, s, rm, "p2")
	drainEvents(p2Sub)

	done := dispatch(s, rm, p2Sub, command{Type: "start"})
	assert.False(t, done, "a failed start keeps the connection open")
	assert.Equal(t, "forbidden", lastErrorCode(drainEvents(p2Sub)))
	assert.Equal(t, room.StateForming, rm.State())
}

func TestDispatchLeaveRoomEndsConnection(t *testing.T) {
	s := newTestServer(t)
	rm, _, _ := makeRoom(t, s)
	p2, p2Sub := seatPlayer(t, s, rm, "p2")

	done := dispatch(s, rm, p2Sub, command{Type: "leave_room"})
	assert.True(t, done)
	assert.False(t, rm.IsMember(p2.ID))
	_, seated := s.Sessions.CurrentRoom(p2.ID)
	assert.False(t, seated)
}

func TestErrorCodeTaxonomy(t *testing.T) {
	cases := map[error]string{
		room.ErrForbidden:        "forbidden",
		room.ErrCannotKickSelf:   "forbidden",
		room.ErrRoomFull:         "room_full",
		room.ErrAlreadyMember:    "already_member",
		room.ErrNotMember:        "not_member",
		room.ErrHostCannotReady:  "host_cannot_ready",
		room.ErrNotEnoughPlayers: "not_enough_players",
		room.ErrPlayersNotReady:  "players_not_ready",
		room.ErrEmptyMessage:     "empty_message",
		room.ErrAlreadyStarted:   "already_started",
		room.ErrRoomClosed:       "room_closed",
		assert.AnError:           "internal",
	}
	for err, want := range cases {
		assert.Equal(t, want, errorCode(err), "error %v", err)
	}
}

func TestListRoomsHandler(t *testing.T) {
	require.NoError(t, auth.Init())
	s := newTestServer(t)
	makeRoom(t, s)

	token, err := auth.CreateToken(uuid.New().String())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/room/list", nil)
	req.Header.Set("Cookie", "auth_token="+token)
	w := httptest.NewRecorder()
	ListRoomsHandler(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rooms []room.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "Dispatch Test", rooms[0].Name)
}

func TestListRoomsHandlerRequiresAuth(t *testing.T) {
	require.NoError(t, auth.Init())
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/room/list", nil)
	w := httptest.NewRecorder()
	ListRoomsHandler(s).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
