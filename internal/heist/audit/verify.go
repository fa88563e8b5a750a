package audit

import (
	"context"
	"fmt"
	"sync"

	"museumheist.ai/internal/heist/crawl"
)

// Verifier is a Sink that checks the run's invariants as events arrive:
// cohort formation after every move, rooms that only ever lose items, and
// a final tally that matches what was handed over.
type Verifier struct {
	maxSep    int
	partySize int

	mu         sync.Mutex
	targets    map[int]int
	positions  map[int][]int
	rooms      map[int]int
	taken      int
	handed     int
	violations int
}

func NewVerifier(maxSeparation, partySize int) *Verifier {
	return &Verifier{
		maxSep:    maxSeparation,
		partySize: partySize,
		targets:   map[int]int{},
		positions: map[int][]int{},
		rooms:     map[int]int{},
	}
}

func (v *Verifier) Record(_ context.Context, ev Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.check(ev)
	if err != nil {
		v.violations++
	}
	return err
}

// Violations is the number of events that failed a check.
func (v *Verifier) Violations() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.violations
}

func (v *Verifier) check(ev Event) error {
	switch ev.Kind {
	case KindRoomsSetup:
		for _, r := range ev.Rooms {
			v.rooms[r.ID] = r.Items
		}
	case KindCohortRoom:
		v.targets[ev.Cohort] = ev.Value
	case KindPosition:
		pos, ok := v.positions[ev.Cohort]
		if !ok {
			pos = make([]int, v.partySize)
			v.positions[ev.Cohort] = pos
		}
		if ev.Member < 0 || ev.Member >= len(pos) {
			return fmt.Errorf("seq %d: cohort %d has no member %d", ev.Seq, ev.Cohort, ev.Member)
		}
		pos[ev.Member] = ev.Value
		target, ok := v.targets[ev.Cohort]
		if !ok {
			return fmt.Errorf("seq %d: cohort %d moved before a room was assigned", ev.Seq, ev.Cohort)
		}
		if err := crawl.CheckFormation(pos, target, v.maxSep); err != nil {
			return fmt.Errorf("seq %d: cohort %d: %w", ev.Seq, ev.Cohort, err)
		}
	case KindItemTaken:
		v.taken++
		prev, ok := v.rooms[ev.Room]
		if ok && ev.Value != prev-1 {
			v.rooms[ev.Room] = ev.Value
			return fmt.Errorf("seq %d: room %d went from %d to %d items", ev.Seq, ev.Room, prev, ev.Value)
		}
		v.rooms[ev.Room] = ev.Value
	case KindHandoff:
		v.handed += ev.Value
	case KindReport:
		if ev.Value != v.handed || ev.Value != v.taken {
			return fmt.Errorf("seq %d: report of %d items, %d taken, %d handed over", ev.Seq, ev.Value, v.taken, v.handed)
		}
	}
	return nil
}
