// internal/room/registry.go
package room

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	roomCodeLength   = 4
	roomCodeAlphabet = "abcdefghijklmnopqrstuvwxyz"

	// IdleTimeout is how long a room with zero connected players may sit
	// untouched before the sweep reclaims it.
	IdleTimeout = time.Hour

	// SweepInterval is how often the background reclamation runs.
	SweepInterval = 20 * time.Minute
)

// Registry creates rooms with unique codes, looks them up, and reclaims idle
// ones. Its mutex protects membership only; callers receive an owned *Room
// and the registry guard is never held across room-internal operations.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	baseDeck []string
	logger   *logrus.Logger

	// OnRoundResolved is installed on every room the registry creates.
	OnRoundResolved func(RoundRecord)
}

// RoomStats is one room's entry in the operational stats snapshot.
type RoomStats struct {
	ActiveCount int   `json:"active_count"`
	LastAccess  int64 `json:"last_access"`
}

// NewRegistry builds a registry sharing baseDeck read-only across rooms.
func NewRegistry(baseDeck []string, logger *logrus.Logger) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		baseDeck: baseDeck,
		logger:   logger,
	}
}

// CreateRoom generates a room code, retrying until unused, and inserts the
// new room atomically. Generation and insert happen under one lock hold so
// two concurrent creations can never claim the same code.
func (reg *Registry) CreateRoom() *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := generateRoomCode()
	for _, taken := reg.rooms[code]; taken; _, taken = reg.rooms[code] {
		code = generateRoomCode()
	}

	rm := NewRoom(code, reg.baseDeck, reg.logger)
	rm.OnRoundResolved = reg.OnRoundResolved
	reg.rooms[code] = rm

	reg.logger.Infof("created room %s", code)
	return rm
}

// Lookup returns the room for a case-insensitive code, or nil on a miss.
func (reg *Registry) Lookup(code string) *Room {
	code = strings.ToLower(code)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[code]
}

// Stats returns a read-only snapshot for operational visibility.
func (reg *Registry) Stats() map[string]RoomStats {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		rooms = append(rooms, rm)
	}
	reg.mu.Unlock()

	stats := make(map[string]RoomStats, len(rooms))
	for _, rm := range rooms {
		stats[rm.ID] = RoomStats{
			ActiveCount: rm.NumActive(),
			LastAccess:  rm.LastAccess(),
		}
	}
	return stats
}

// ReclaimIdle removes every room with zero attached sessions whose last
// access is older than IdleTimeout, and returns the removed codes. A room
// with no active connections has no session holding it, so removal cannot
// race with in-room work; a late reconnect simply sees an invalid room.
func (reg *Registry) ReclaimIdle(now time.Time) []string {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		rooms = append(rooms, rm)
	}
	reg.mu.Unlock()

	var idle []string
	for _, rm := range rooms {
		if rm.NumActive() == 0 && now.Unix()-rm.LastAccess() > int64(IdleTimeout/time.Second) {
			idle = append(idle, rm.ID)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	reg.mu.Lock()
	removed := idle[:0]
	for _, code := range idle {
		// Re-check under the lock; the room may have been touched since.
		rm := reg.rooms[code]
		if rm != nil && rm.NumActive() == 0 && now.Unix()-rm.LastAccess() > int64(IdleTimeout/time.Second) {
			delete(reg.rooms, code)
			removed = append(removed, code)
		}
	}
	reg.mu.Unlock()

	if len(removed) > 0 {
		reg.logger.Infof("reclaimed %d idle room(s): %v", len(removed), removed)
	}
	return removed
}

// Run executes the reclamation sweep on a fixed interval until ctx is done.
func (reg *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			reg.ReclaimIdle(now)
		}
	}
}

func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}
