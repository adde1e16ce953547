// internal/room/events.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MessageKind discriminates chat log entries.
type MessageKind string

const (
	KindSystem MessageKind = "system"
	KindPlayer MessageKind = "player"
)

// ChatMessage is one entry in a room's append-only log: either a
// system-generated notice or a player-authored message.
type ChatMessage struct {
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text"`
	SenderID   uuid.UUID   `json:"sender_id,omitempty"`
	SenderName string      `json:"sender_name,omitempty"`
	Timestamp  int64       `json:"ts"`
}

// SystemMessage builds a system notice entry.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Kind: KindSystem, Text: text, Timestamp: time.Now().Unix()}
}

// PlayerMessage builds a player-authored entry.
func PlayerMessage(senderID uuid.UUID, senderName, text string) ChatMessage {
	return ChatMessage{
		Kind:       KindPlayer,
		Text:       text,
		SenderID:   senderID,
		SenderName: senderName,
		Timestamp:  time.Now().Unix(),
	}
}

// Event is a wire-ready message for room subscribers. Deltas carry "type",
// "seq" and a payload; snapshots carry the full room status.
type Event map[string]interface{}

// Subscriber is one member's live view of a room's event stream. Events
// arrive on Out in the exact order the room emitted them. Its own mutex
// serializes sends against close: SendError runs on handler goroutines
// without the room lock, while the room closes the channel under it.
type Subscriber struct {
	PlayerID uuid.UUID
	Out      chan Event

	mu     sync.Mutex
	closed bool
}

func newSubscriber(playerID uuid.UUID) *Subscriber {
	return &Subscriber{
		PlayerID: playerID,
		Out:      make(chan Event, subBuffer),
	}
}

// send pushes an event without blocking. A full buffer means the consumer
// is wedged; the event is dropped and logged rather than stalling the room.
// Events sent after closeOut are dropped silently.
func (s *Subscriber) send(ev Event, logger *logrus.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.Out <- ev:
	default:
		if logger != nil {
			logger.Warnf("subscriber %s buffer full, dropped %v event", s.PlayerID, ev["type"])
		}
	}
}

// SendError delivers a command rejection to this subscriber only. Errors
// are not deltas: they carry no sequence number and reach no one else.
func (s *Subscriber) SendError(code, msg string, logger *logrus.Logger) {
	s.send(Event{"type": "error", "code": code, "message": msg}, logger)
}

// closeOut closes the outbound channel. Buffered events are still delivered
// before the consumer sees the close. Idempotent.
func (s *Subscriber) closeOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.Out)
}

// emit assigns the next sequence number, fans the delta out to every
// subscriber, and forwards it to the chronicle sink. Assumes lock is held.
func (r *Room) emit(eventType string, actor uuid.UUID, payload map[string]interface{}) {
	r.emitExcept(uuid.Nil, eventType, actor, payload)
}

// emitExcept is emit minus one recipient, used when the excluded member is
// about to receive a snapshot that already reflects this delta.
func (r *Room) emitExcept(skip uuid.UUID, eventType string, actor uuid.UUID, payload map[string]interface{}) {
	r.seq++
	ev := Event{"type": eventType, "seq": r.seq}
	for k, v := range payload {
		ev[k] = v
	}
	for id, sub := range r.subs {
		if id == skip {
			continue
		}
		sub.send(ev, r.Logger)
	}
	if r.Sink != nil {
		r.Sink(r.ID, r.seq, actor, eventType, payload)
	}
}

func closedEvent(reason string) Event {
	return Event{"type": "room_closed", "reason": reason}
}

// MemberStatus is a member's row in status payloads and listings.
type MemberStatus struct {
	PlayerInfo
	IsHost  bool `json:"is_host"`
	IsReady bool `json:"is_ready"`
}

// statusLocked gathers the per-member roster. Assumes lock is held.
func (r *Room) statusLocked() []MemberStatus {
	out := make([]MemberStatus, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, MemberStatus{
			PlayerInfo: m.PlayerInfo,
			IsHost:     m.ID == r.hostID,
			IsReady:    m.ID == r.hostID || r.ready[m.ID],
		})
	}
	return out
}

// Snapshot is the full client-facing view of one room.
type Snapshot struct {
	ID         uuid.UUID      `json:"id"`
	Code       string         `json:"code"`
	Name       string         `json:"name"`
	HostID     uuid.UUID      `json:"host_id"`
	Private    bool           `json:"private"`
	Mode       GameMode       `json:"game_mode"`
	Settings   Settings       `json:"settings"`
	MaxPlayers int            `json:"max_players"`
	State      State          `json:"state"`
	Members    []MemberStatus `json:"members"`
	Messages   []ChatMessage  `json:"messages"`
	Seq        int64          `json:"seq"`
}

// Snapshot returns a point-in-time copy of the room's state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	msgs := make([]ChatMessage, len(r.log))
	copy(msgs, r.log)
	return Snapshot{
		ID:         r.ID,
		Code:       r.Code,
		Name:       r.Name,
		HostID:     r.hostID,
		Private:    r.Private,
		Mode:       r.Mode,
		Settings:   r.Settings,
		MaxPlayers: r.MaxPlayers,
		State:      r.state,
		Members:    r.statusLocked(),
		Messages:   msgs,
		Seq:        r.seq,
	}
}

func (r *Room) snapshotEventLocked() Event {
	return Event{"type": "room_snapshot", "room": r.snapshotLocked()}
}
