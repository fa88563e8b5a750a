// Package dropoff is the collection site. Cohorts wait here between
// excursions, thieves hand their loot to the dispatcher through a single
// slot, and the end of the heist is decided here.
package dropoff

import (
	"context"
	"log"
	"sync"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/heist/audit"
)

// Admission is what a thief learns on arriving at the collection site.
type Admission struct {
	Done         bool
	NeedsNewRoom bool
}

// Handoff is the content of the slot.
type Handoff struct {
	Thief  int
	Room   int
	Items  int
	Member int
	Cohort int
}

type Rendezvous struct {
	cohortSize int
	population int
	rooms      int
	rec        audit.Recorder

	mu sync.Mutex
	// cohort wakes thieves parked in AmINeeded. master wakes the
	// dispatcher (startup, rest, collect). slot wakes producers waiting
	// for a free slot or for their tuple to be drained.
	cohort *sync.Cond
	master *sync.Cond
	slot   *sync.Cond

	waiting   []int
	held      []bool
	needsRoom []bool

	exhausted  []bool
	nExhausted int
	roomsLeft  int

	onSite            int
	populationReached bool
	over              bool

	resting   bool
	restHold  bool
	promised  bool
	pending   *Handoff
	filled    uint64
	drained   uint64
	returning int
	total     int

	shutdown bool
	done     chan struct{}
}

func New(cohorts, cohortSize, rooms int, sink audit.Sink, logger *log.Logger) *Rendezvous {
	r := &Rendezvous{
		cohortSize: cohortSize,
		population: cohorts * cohortSize,
		rooms:      rooms,
		rec:        audit.NewRecorder(sink, logger),
		waiting:    make([]int, cohorts),
		held:       make([]bool, cohorts),
		needsRoom:  make([]bool, cohorts),
		exhausted:  make([]bool, rooms),
		roomsLeft:  rooms,
		done:       make(chan struct{}),
	}
	r.cohort = sync.NewCond(&r.mu)
	r.master = sync.NewCond(&r.mu)
	r.slot = sync.NewCond(&r.mu)
	return r
}

// AmINeeded registers a thief of cohortID at the site and parks it until
// the dispatcher either sends the cohort out again or ends the heist.
// lastRoomID is the cohort's current room, -1 if it has none yet.
func (r *Rendezvous) AmINeeded(ctx context.Context, thiefID, cohortID, lastRoomID int) (Admission, error) {
	if err := ctx.Err(); err != nil {
		return Admission{}, err
	}
	if cohortID < 0 || cohortID >= len(r.waiting) {
		return Admission{}, fault.Violation("am_i_needed", "no cohort %d", cohortID)
	}
	if lastRoomID < -1 || lastRoomID >= r.rooms {
		return Admission{}, fault.Violation("am_i_needed", "no room %d", lastRoomID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return Admission{}, fault.ErrShutdown
	}

	if r.waiting[cohortID] == 0 {
		r.needsRoom[cohortID] = false
		r.held[cohortID] = true
	}
	r.waiting[cohortID]++
	r.onSite++
	if r.returning > 0 {
		r.returning--
	}
	if r.onSite == r.population {
		r.populationReached = true
	}
	r.master.Broadcast()
	if lastRoomID == -1 || r.exhausted[lastRoomID] {
		r.needsRoom[cohortID] = true
	}
	if thiefID >= 0 {
		r.rec.Thief(thiefID, audit.ThiefAtStaging)
	}

	for r.held[cohortID] && !r.over && !r.shutdown {
		r.cohort.Wait()
	}
	r.onSite--
	if r.shutdown && !r.over {
		return Admission{}, fault.ErrShutdown
	}
	if r.over {
		return Admission{Done: true}, nil
	}
	return Admission{NeedsNewRoom: r.needsRoom[cohortID]}, nil
}

// PrepareAssaultParty releases the first complete cohort that can go out.
// A cohort that needs a new room is passed over while no room is left,
// and keeps its waiting count.
func (r *Rendezvous) PrepareAssaultParty(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return false, fault.ErrShutdown
	}
	for c, n := range r.waiting {
		if n != r.cohortSize {
			continue
		}
		if r.needsRoom[c] {
			if r.roomsLeft == 0 {
				continue
			}
			r.roomsLeft--
		}
		r.waiting[c] = 0
		r.held[c] = false
		r.cohort.Broadcast()
		r.rec.Master(audit.MasterDispatching)
		return true, nil
	}
	return false, nil
}

// HandoffItem puts h in the slot once it is free, wakes the dispatcher and
// returns after the dispatcher has drained it.
func (r *Rendezvous) HandoffItem(ctx context.Context, h Handoff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.Room < 0 || h.Room >= r.rooms {
		return fault.Violation("handoff_item", "no room %d", h.Room)
	}
	if h.Items < 0 || h.Items > 1 {
		return fault.Violation("handoff_item", "a thief carries at most one item, got %d", h.Items)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.pending != nil && !r.shutdown {
		r.slot.Wait()
	}
	if r.shutdown {
		return fault.ErrShutdown
	}
	item := h
	r.pending = &item
	r.filled++
	ticket := r.filled
	r.promised = false
	r.restHold = false
	r.master.Broadcast()
	r.rec.Note(audit.Event{
		Kind:   audit.KindHandoff,
		Thief:  h.Thief,
		Cohort: h.Cohort,
		Member: h.Member,
		Room:   h.Room,
		Value:  h.Items,
	})
	for r.drained < ticket && !r.shutdown {
		r.slot.Wait()
	}
	if r.drained < ticket {
		return fault.ErrShutdown
	}
	return nil
}

// CollectItem drains the slot, waiting for a hand-off a thief has been
// cleared to make. It returns once the delivering thief is back at the
// site. Collecting when no hand-off is pending or on its way is a
// violation.
func (r *Rendezvous) CollectItem(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return fault.ErrShutdown
	}
	if r.pending == nil && !r.promised {
		return fault.Violation("collect_item", "hand-off slot is empty")
	}
	for r.pending == nil && !r.shutdown {
		r.master.Wait()
	}
	if r.shutdown {
		return fault.ErrShutdown
	}

	h := *r.pending
	r.pending = nil
	if h.Items > 0 {
		r.total += h.Items
	} else if !r.exhausted[h.Room] {
		r.exhausted[h.Room] = true
		r.nExhausted++
	}
	r.drained++
	r.returning++
	r.slot.Broadcast()

	for r.returning > 0 && !r.shutdown {
		r.master.Wait()
	}
	if r.shutdown {
		return fault.ErrShutdown
	}
	return nil
}

// RestUntilArrival parks the dispatcher until a thief hands something
// over. While it rests, IsDispatcherResting hands out one clearance.
func (r *Rendezvous) RestUntilArrival(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return fault.ErrShutdown
	}
	r.rec.Master(audit.MasterResting)
	if r.pending != nil {
		return nil
	}
	r.resting = true
	r.restHold = true
	for r.restHold && !r.shutdown {
		r.master.Wait()
	}
	r.resting = false
	if r.shutdown {
		return fault.ErrShutdown
	}
	return nil
}

// IsDispatcherResting reports whether the dispatcher is waiting for a
// hand-off. A true answer clears the caller to call HandoffItem and is
// given to one caller per rest.
func (r *Rendezvous) IsDispatcherResting(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return false, fault.ErrShutdown
	}
	if !r.resting {
		return false, nil
	}
	r.resting = false
	r.promised = true
	return true, nil
}

// IsHeistOver is true once every room is exhausted and every thief is
// back at the site. It never turns false again, and the first true
// answer releases every parked cohort.
func (r *Rendezvous) IsHeistOver(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.over {
		return true, nil
	}
	if r.shutdown {
		return false, fault.ErrShutdown
	}
	if r.nExhausted == r.rooms && r.onSite == r.population {
		r.over = true
		r.cohort.Broadcast()
	}
	return r.over, nil
}

// WaitForInitialPopulation parks the dispatcher until every thief has
// shown up once.
func (r *Rendezvous) WaitForInitialPopulation(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return fault.ErrShutdown
	}
	r.rec.Master(audit.MasterPlanning)
	for !r.populationReached && !r.shutdown {
		r.master.Wait()
	}
	if r.shutdown {
		return fault.ErrShutdown
	}
	return nil
}

func (r *Rendezvous) StartOperations(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return fault.ErrShutdown
	}
	r.rec.Master(audit.MasterDeciding)
	return nil
}

// FinalizeAndReport logs the final tally and returns it.
func (r *Rendezvous) FinalizeAndReport(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return 0, fault.ErrShutdown
	}
	if !r.over {
		return 0, fault.Violation("finalize_and_report", "heist is not over")
	}
	r.rec.Master(audit.MasterReporting)
	r.rec.Note(audit.Event{Kind: audit.KindReport, Value: r.total})
	return r.total, nil
}

// State is a point-in-time view for tests and metrics.
type State struct {
	Waiting   []int
	OnSite    int
	RoomsLeft int
	Exhausted int
	Total     int
	Pending   bool
	Over      bool
}

func (r *Rendezvous) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Waiting:   append([]int(nil), r.waiting...),
		OnSite:    r.onSite,
		RoomsLeft: r.roomsLeft,
		Exhausted: r.nExhausted,
		Total:     r.total,
		Pending:   r.pending != nil,
		Over:      r.over,
	}
}

// Shutdown releases every parked caller with fault.ErrShutdown.
func (r *Rendezvous) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return
	}
	r.shutdown = true
	close(r.done)
	r.cohort.Broadcast()
	r.master.Broadcast()
	r.slot.Broadcast()
}

func (r *Rendezvous) Done() <-chan struct{} { return r.done }
