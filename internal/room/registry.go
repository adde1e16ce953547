// internal/room/registry.go
package room

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreateSpec carries the host's room configuration.
type CreateSpec struct {
	Name       string   `json:"name"`
	MaxPlayers int      `json:"max_players"`
	Private    bool     `json:"private"`
	Mode       GameMode `json:"game_mode"`
	Settings   Settings `json:"settings"`
}

// Filter narrows public room listings.
type Filter struct {
	Search string
	Mode   GameMode
}

// Registry is the in-memory index of all active rooms, keyed by id and by
// join code. Its lock covers only whole-room insert/remove and lookups;
// per-room mutation never touches it.
type Registry struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	byCode map[string]*Room

	logger   *logrus.Logger
	launcher Launcher
	sink     EventSink
}

// NewRegistry returns an empty registry. Rooms it creates are wired to the
// given launcher and optional event sink.
func NewRegistry(logger *logrus.Logger, launcher Launcher, sink EventSink) *Registry {
	return &Registry{
		rooms:    make(map[uuid.UUID]*Room),
		byCode:   make(map[string]*Room),
		logger:   logger,
		launcher: launcher,
		sink:     sink,
	}
}

// Create allocates a room with a fresh id and a unique join code, seats the
// creator as sole member and host, and indexes the room.
func (reg *Registry) Create(spec CreateSpec, host PlayerInfo) (*Room, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return nil, ErrNameRequired
	}
	if spec.MaxPlayers < 2 || spec.MaxPlayers > 8 {
		return nil, ErrInvalidCapacity
	}
	if spec.Mode == "" {
		spec.Mode = ModeFFA
	}
	if !ValidMode(spec.Mode) {
		return nil, ErrInvalidGameMode
	}
	if spec.Settings == (Settings{}) {
		spec.Settings = DefaultSettings()
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	var code string
	for {
		code, err = newJoinCode()
		if err != nil {
			return nil, err
		}
		if _, taken := reg.byCode[code]; !taken {
			break
		}
	}

	r := newRoom(id, code, spec, host)
	r.Launcher = reg.launcher
	r.Sink = reg.sink
	r.Logger = reg.logger
	r.OnEmpty = func(roomID uuid.UUID) { reg.Destroy(roomID) }

	reg.rooms[id] = r
	reg.byCode[code] = r
	reg.logger.WithFields(logrus.Fields{
		"room_id": id,
		"code":    code,
		"host_id": host.ID,
	}).Info("room created")
	return r, nil
}

// FindByID looks a room up by its id.
func (reg *Registry) FindByID(id uuid.UUID) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// FindByCode looks a room up by join code (case-insensitive).
func (reg *Registry) FindByCode(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return r, ok
}

// ListPublic returns snapshots of public rooms still forming, filtered by
// name substring and game mode.
func (reg *Registry) ListPublic(f Filter) []Snapshot {
	reg.mu.Lock()
	candidates := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		candidates = append(candidates, r)
	}
	reg.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []Snapshot{}
	for _, r := range candidates {
		snap := r.Snapshot()
		if snap.Private || snap.State != StateForming {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(snap.Name), search) {
			continue
		}
		if f.Mode != "" && snap.Mode != f.Mode {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// Destroy removes a room from both indexes. Idempotent: last-member-leaves
// and host-closes may race to call it.
func (reg *Registry) Destroy(id uuid.UUID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	if !ok {
		return
	}
	delete(reg.rooms, id)
	delete(reg.byCode, r.Code)
	reg.logger.WithField("room_id", id).Info("room destroyed")
}
