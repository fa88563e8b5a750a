// Package museum is the resource site: rooms at fixed distances holding
// a shrinking number of items.
package museum

import (
	"context"
	"log"
	"math/rand"
	"sync"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/protocol"
	"museumheist.ai/internal/sim/tuning"
)

type Room struct {
	ID       int
	Distance int
	Items    int
}

// Layout builds the rooms from cfg: the pinned layout when there is one,
// otherwise distances and item counts drawn from the configured ranges.
func Layout(cfg tuning.Tuning, rng *rand.Rand) []Room {
	if len(cfg.Museum.Layout) > 0 {
		rooms := make([]Room, len(cfg.Museum.Layout))
		for i, r := range cfg.Museum.Layout {
			rooms[i] = Room{ID: i, Distance: r.Distance, Items: r.Items}
		}
		return rooms
	}
	rooms := make([]Room, cfg.Rooms)
	for i := range rooms {
		rooms[i] = Room{
			ID:       i,
			Distance: cfg.RoomDistance.Draw(rng),
			Items:    cfg.RoomItems.Draw(rng),
		}
	}
	return rooms
}

type Site struct {
	rec audit.Recorder

	mu       sync.Mutex
	rooms    []Room
	shutdown bool
	done     chan struct{}
}

// New publishes the layout to the audit log and returns the site.
func New(rooms []Room, sink audit.Sink, logger *log.Logger) *Site {
	s := &Site{
		rec:   audit.NewRecorder(sink, logger),
		rooms: append([]Room(nil), rooms...),
		done:  make(chan struct{}),
	}
	s.rec.Note(audit.Event{Kind: audit.KindRoomsSetup, Rooms: Infos(s.rooms)})
	return s
}

// RoomDistance returns the distance to roomID, or -1 for roomID -1.
func (s *Site) RoomDistance(ctx context.Context, roomID int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if roomID == -1 {
		return -1, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return 0, fault.ErrShutdown
	}
	if roomID < 0 || roomID >= len(s.rooms) {
		return 0, fault.Violation("room_distance", "no room %d", roomID)
	}
	return s.rooms[roomID].Distance, nil
}

// TakeItem removes one item from roomID if any is left and reports
// whether the thief now carries it.
func (s *Site) TakeItem(ctx context.Context, thiefID, roomID, member, cohortID int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false, fault.ErrShutdown
	}
	if roomID < 0 || roomID >= len(s.rooms) {
		return false, fault.Violation("take_item", "no room %d", roomID)
	}
	s.rec.Thief(thiefID, audit.ThiefAtTarget)
	r := &s.rooms[roomID]
	if r.Items <= 0 {
		return false, nil
	}
	r.Items--
	s.rec.Note(audit.Event{
		Kind:   audit.KindItemTaken,
		Thief:  thiefID,
		Cohort: cohortID,
		Member: member,
		Room:   roomID,
		Value:  r.Items,
	})
	return true, nil
}

// Rooms returns a snapshot of every room.
func (s *Site) Rooms(ctx context.Context) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Room(nil), s.rooms...), nil
}

func (s *Site) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}
	s.shutdown = true
	close(s.done)
}

func (s *Site) Done() <-chan struct{} { return s.done }

// Infos converts rooms to their wire form.
func Infos(rooms []Room) []protocol.RoomInfo {
	out := make([]protocol.RoomInfo, len(rooms))
	for i, r := range rooms {
		out[i] = protocol.RoomInfo{ID: r.ID, Distance: r.Distance, Items: r.Items}
	}
	return out
}
