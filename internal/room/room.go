// internal/room/room.go
package room

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle phase of a room. Starting is transient and never
// observable by other commands: Start holds the room lock for the whole
// Forming -> Starting -> InGame transition.
type State string

const (
	StateForming  State = "forming"
	StateStarting State = "starting"
	StateInGame   State = "in_game"
	StateClosed   State = "closed"
)

// GameMode enumerates the supported modes.
type GameMode string

const (
	ModeFFA        GameMode = "ffa"
	ModeTeams      GameMode = "teams"
	ModeCoop       GameMode = "coop"
	ModeTournament GameMode = "tournament"
)

// ValidMode reports whether m is one of the known game modes.
func ValidMode(m GameMode) bool {
	switch m {
	case ModeFFA, ModeTeams, ModeCoop, ModeTournament:
		return true
	}
	return false
}

// Settings holds the match configuration chosen by the host.
type Settings struct {
	Map        string `json:"map"`
	Duration   string `json:"duration"`
	Difficulty string `json:"difficulty"`
}

// DefaultSettings mirrors the defaults offered at room creation.
func DefaultSettings() Settings {
	return Settings{Map: "Random", Duration: "10 min", Difficulty: "Normal"}
}

// PlayerInfo is the lobby-facing identity of a player. Rooms reference
// players by id; the identity itself is owned by the session layer.
type PlayerInfo struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Level    int       `json:"level"`
	Avatar   string    `json:"avatar"`
}

// Member is a player's seat in a room, ordered by join time.
type Member struct {
	PlayerInfo
	JoinedAt time.Time
}

// maxChatLog bounds the in-memory message log per room. Older entries are
// dropped; the chronicler pipeline retains the full stream.
const maxChatLog = 200

// subBuffer is the per-subscriber outgoing event buffer. A subscriber that
// falls this far behind has its events dropped with a warning.
const subBuffer = 32

// EventSink receives a copy of every accepted room mutation, for async
// persistence. It must not block; the server wraps it in a goroutine.
type EventSink func(roomID uuid.UUID, seq int64, actor uuid.UUID, eventType string, payload map[string]interface{})

// Launcher is the external game session collaborator. Launch is invoked
// inside the room's start critical section and must be fast and
// non-blocking; it takes ownership of the member list on success.
type Launcher interface {
	Launch(roomID uuid.UUID, mode GameMode, settings Settings, players []PlayerInfo) (uuid.UUID, error)
}

// Room is the authoritative state of one lobby. All mutating operations
// acquire mu, so commands against a single room are serialized while
// different rooms proceed independently.
type Room struct {
	ID         uuid.UUID
	Code       string
	Name       string
	Private    bool
	Mode       GameMode
	Settings   Settings
	MaxPlayers int
	CreatedAt  time.Time

	// Launcher receives the member list when the host starts the game.
	Launcher Launcher

	// OnEmpty is invoked (outside any broadcast) once the room closes,
	// either because the last member left or the game launched. Wired by
	// the registry to remove the room from its indexes.
	OnEmpty func(roomID uuid.UUID)

	// Sink, when non-nil, receives every emitted delta for chronicling.
	Sink EventSink

	Logger *logrus.Logger

	mu      sync.Mutex
	state   State
	hostID  uuid.UUID
	members []*Member
	ready   map[uuid.UUID]bool
	subs    map[uuid.UUID]*Subscriber
	log     []ChatMessage
	seq     int64
	gameID  uuid.UUID
}

func newRoom(id uuid.UUID, code string, spec CreateSpec, host PlayerInfo) *Room {
	r := &Room{
		ID:         id,
		Code:       code,
		Name:       spec.Name,
		Private:    spec.Private,
		Mode:       spec.Mode,
		Settings:   spec.Settings,
		MaxPlayers: spec.MaxPlayers,
		CreatedAt:  time.Now(),
		state:      StateForming,
		hostID:     host.ID,
		ready:      make(map[uuid.UUID]bool),
		subs:       make(map[uuid.UUID]*Subscriber),
	}
	r.members = append(r.members, &Member{PlayerInfo: host, JoinedAt: r.CreatedAt})
	r.log = append(r.log, SystemMessage("Room created"))
	return r
}

// HostID returns the current host's player id.
func (r *Room) HostID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

// State returns the current lifecycle state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// GameID returns the launched game's id, or uuid.Nil before launch.
func (r *Room) GameID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameID
}

// IsMember reports whether the player currently holds a seat.
func (r *Room) IsMember(playerID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberIndex(playerID) >= 0
}

func (r *Room) memberIndex(playerID uuid.UUID) int {
	for i, m := range r.members {
		if m.ID == playerID {
			return i
		}
	}
	return -1
}

// checkOpen maps terminal states to the error a late command receives.
func (r *Room) checkOpen() error {
	switch r.state {
	case StateInGame:
		return ErrAlreadyStarted
	case StateClosed:
		return ErrRoomClosed
	}
	return nil
}

// Connect seats the player and subscribes them to the room's event stream
// in one critical section: the returned subscriber has already been sent a
// snapshot, and every delta emitted after that snapshot will reach it with
// no gap or duplicate. An existing member reconnecting replaces their old
// subscription and is not re-announced.
func (r *Room) Connect(p PlayerInfo) (*Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	rejoin := r.memberIndex(p.ID) >= 0
	if rejoin {
		// A member with a live subscription joining again is a duplicate
		// command; a member without one is reconnecting within grace.
		if _, live := r.subs[p.ID]; live {
			return nil, ErrAlreadyMember
		}
	} else {
		if len(r.members) >= r.MaxPlayers {
			return nil, ErrRoomFull
		}
		r.members = append(r.members, &Member{PlayerInfo: p, JoinedAt: time.Now()})
		r.ready[p.ID] = false
		r.appendLog(SystemMessage(p.Username + " joined the room"))
	}

	sub := newSubscriber(p.ID)
	r.subs[p.ID] = sub

	if !rejoin {
		// Delta goes to everyone but the joiner; their snapshot below
		// already includes the join at the same sequence number.
		r.emitExcept(p.ID, "member_joined", p.ID, map[string]interface{}{
			"player": p,
			"status": r.statusLocked(),
		})
	}
	sub.send(r.snapshotEventLocked(), r.Logger)
	return sub, nil
}

// Leave removes the player, promoting the earliest-joined remaining member
// to host if the host departs, and closing the room if it empties.
func (r *Room) Leave(playerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(playerID, "left the room", "member_left")
}

// Kick removes target on the host's authority. The target receives a
// room_closed event tagged "kicked" before their subscription closes.
func (r *Room) Kick(requesterID, targetID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return err
	}
	if requesterID != r.hostID {
		return ErrForbidden
	}
	if targetID == requesterID {
		return ErrCannotKickSelf
	}
	if r.memberIndex(targetID) < 0 {
		return ErrNotMember
	}
	if sub, ok := r.subs[targetID]; ok {
		sub.send(closedEvent("kicked"), r.Logger)
	}
	return r.removeLocked(targetID, "was kicked", "member_kicked")
}

// removeLocked is the shared leave/kick path. Assumes lock is held.
func (r *Room) removeLocked(playerID uuid.UUID, notice, reason string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	idx := r.memberIndex(playerID)
	if idx < 0 {
		return ErrNotMember
	}

	name := r.members[idx].Username
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	delete(r.ready, playerID)
	if sub, ok := r.subs[playerID]; ok {
		sub.closeOut()
		delete(r.subs, playerID)
	}

	if len(r.members) == 0 {
		r.closeLocked("empty")
		return nil
	}

	payload := map[string]interface{}{"player_id": playerID.String()}
	if playerID == r.hostID {
		// Earliest-joined remaining member inherits the room.
		r.hostID = r.members[0].ID
		payload["new_host_id"] = r.hostID.String()
		r.appendLog(SystemMessage(r.members[0].Username + " is now the host"))
	}
	r.appendLog(SystemMessage(name + " " + notice))
	payload["status"] = r.statusLocked()
	r.emit(reason, playerID, payload)
	return nil
}

// SetReady records a non-host member's readiness. The host's readiness is
// implicit and attempts to set it are rejected.
func (r *Room) SetReady(playerID uuid.UUID, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return err
	}
	if r.memberIndex(playerID) < 0 {
		return ErrNotMember
	}
	if playerID == r.hostID {
		return ErrHostCannotReady
	}
	if r.ready[playerID] == ready {
		return nil // no change, no delta
	}
	r.ready[playerID] = ready
	r.emit("ready_update", playerID, map[string]interface{}{
		"player_id": playerID.String(),
		"is_ready":  ready,
	})
	return nil
}

// Start transitions the room Forming -> Starting -> InGame in a single
// critical section. On success ownership of the member list passes to the
// launcher, a terminal game_start delta is broadcast, and the room closes.
func (r *Room) Start(requesterID uuid.UUID) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return uuid.Nil, err
	}
	if requesterID != r.hostID {
		return uuid.Nil, ErrForbidden
	}
	if len(r.members) < 2 {
		return uuid.Nil, ErrNotEnoughPlayers
	}
	for _, m := range r.members {
		if m.ID != r.hostID && !r.ready[m.ID] {
			return uuid.Nil, ErrPlayersNotReady
		}
	}

	r.state = StateStarting
	players := make([]PlayerInfo, len(r.members))
	for i, m := range r.members {
		players[i] = m.PlayerInfo
	}
	gameID, err := r.Launcher.Launch(r.ID, r.Mode, r.Settings, players)
	if err != nil {
		// Launch failure aborts the transition; the room stays Forming
		// and no delta is broadcast.
		r.state = StateForming
		return uuid.Nil, err
	}

	r.state = StateInGame
	r.gameID = gameID
	r.appendLog(SystemMessage("Game starting"))
	r.emit("game_start", requesterID, map[string]interface{}{
		"game_id": gameID.String(),
	})
	r.closeLocked("game_start")
	return gameID, nil
}

// PostChat appends a player message and broadcasts it.
func (r *Room) PostChat(playerID uuid.UUID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return err
	}
	idx := r.memberIndex(playerID)
	if idx < 0 {
		return ErrNotMember
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	msg := PlayerMessage(playerID, r.members[idx].Username, text)
	r.appendLog(msg)
	r.emit("chat", playerID, map[string]interface{}{
		"message": msg,
	})
	return nil
}

// Disconnect drops the player's subscription without removing their seat.
// The session manager's grace timer decides whether the seat is vacated.
// A stale sub (already replaced by a reconnect) is left alone.
func (r *Room) Disconnect(playerID uuid.UUID, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.subs[playerID]; ok && cur == sub {
		cur.closeOut()
		delete(r.subs, playerID)
	}
}

// Close shuts the room down explicitly (e.g. host closes it), notifying
// remaining subscribers. Idempotent.
func (r *Room) Close(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.closeLocked(reason)
}

// closeLocked finalizes the room: notifies and drops all subscribers, marks
// the state Closed, and fires OnEmpty. Assumes lock is held. Safe to call
// from InGame (post-launch) as well as Forming.
func (r *Room) closeLocked(reason string) {
	for _, sub := range r.subs {
		sub.send(closedEvent(reason), r.Logger)
		sub.closeOut()
	}
	r.subs = make(map[uuid.UUID]*Subscriber)
	if r.state != StateInGame {
		r.state = StateClosed
	}
	if r.OnEmpty != nil {
		// Registry removal only takes the registry lock, never a room lock,
		// so invoking it here cannot deadlock.
		r.OnEmpty(r.ID)
	}
}

func (r *Room) appendLog(msg ChatMessage) {
	r.log = append(r.log, msg)
	if len(r.log) > maxChatLog {
		r.log = r.log[len(r.log)-maxChatLog:]
	}
}
