// Package party coordinates one cohort's crawl to a room and back.
//
// The cohort goes through
//
//	AwaitingDeparture -> CrawlingIn -> AwaitingTurn -> CrawlingOut -> AwaitingDeparture
//
// Entry to each crawl is a barrier: nobody steps inward until every
// member has called StepInward once, and nobody steps outward until every
// member has called ReverseDirection.
package party

import (
	"context"
	"log"
	"sync"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/heist/crawl"
)

type Phase int

const (
	AwaitingDeparture Phase = iota
	CrawlingIn
	AwaitingTurn
	CrawlingOut
)

func (p Phase) String() string {
	switch p {
	case AwaitingDeparture:
		return "AWAITING_DEPARTURE"
	case CrawlingIn:
		return "CRAWLING_IN"
	case AwaitingTurn:
		return "AWAITING_TURN"
	case CrawlingOut:
		return "CRAWLING_OUT"
	default:
		return "UNKNOWN"
	}
}

type Coordinator struct {
	id     int
	size   int
	maxSep int
	rec    audit.Recorder
	log    *log.Logger

	mu   sync.Mutex
	hold *sync.Cond

	positions []int
	thieves   []int
	room      int
	distance  int
	phase     Phase

	// departureOpen arms the inward barrier, returnOpen the outward one.
	departureOpen bool
	returnOpen    bool
	arrived       int

	shutdown bool
	done     chan struct{}
}

func New(id, size, maxSeparation int, sink audit.Sink, logger *log.Logger) *Coordinator {
	c := &Coordinator{
		id:            id,
		size:          size,
		maxSep:        maxSeparation,
		rec:           audit.NewRecorder(sink, logger),
		log:           logger,
		positions:     make([]int, size),
		thieves:       make([]int, size),
		room:          -1,
		distance:      -1,
		departureOpen: true,
		done:          make(chan struct{}),
	}
	for m := range c.thieves {
		c.thieves[m] = -1
	}
	c.hold = sync.NewCond(&c.mu)
	return c
}

// StepInward moves member one call's worth toward the room. The first
// call of each excursion is the departure barrier. It returns false once
// the member stands in the room; a true return with no movement means the
// member is boxed in and must call again.
func (c *Coordinator) StepInward(ctx context.Context, agility, member, thiefID int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := c.checkMove("step_inward", agility, member); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return false, fault.ErrShutdown
	}
	if c.distance < 1 {
		return false, fault.Violation("step_inward", "cohort %d has no room assigned", c.id)
	}

	if c.departureOpen {
		c.thieves[member] = thiefID
		c.rec.Thief(thiefID, audit.ThiefCrawlingIn)
		c.arrived++
		if c.arrived == c.size {
			c.arrived = 0
			c.departureOpen = false
			c.returnOpen = true
			c.phase = CrawlingIn
			c.hold.Broadcast()
		} else {
			for c.departureOpen && !c.shutdown {
				c.hold.Wait()
			}
			if c.shutdown {
				return false, fault.ErrShutdown
			}
		}
	}

	if c.positions[member] == c.distance {
		return false, nil
	}
	mv := crawl.Step(c.positions, member, agility, c.distance, c.maxSep, crawl.Inward)
	c.apply(member, mv)
	if crawl.Arrived(c.positions, c.distance, crawl.Inward) {
		c.phase = AwaitingTurn
	}
	return true, nil
}

// ReverseDirection is the outward barrier. The last member to call it
// opens the way out and re-arms the departure barrier for the next
// excursion.
func (c *Coordinator) ReverseDirection(ctx context.Context, thiefID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return fault.ErrShutdown
	}
	c.rec.Thief(thiefID, audit.ThiefCrawlingOut)
	if !c.returnOpen {
		return nil
	}
	c.arrived++
	if c.arrived == c.size {
		c.arrived = 0
		c.returnOpen = false
		c.departureOpen = true
		c.phase = CrawlingOut
		c.hold.Broadcast()
		return nil
	}
	for c.returnOpen && !c.shutdown {
		c.hold.Wait()
	}
	if c.shutdown {
		return fault.ErrShutdown
	}
	return nil
}

// StepOutward moves member one call's worth back toward the staging area.
// It keeps returning true until the whole cohort is back.
func (c *Coordinator) StepOutward(ctx context.Context, agility, member int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := c.checkMove("step_outward", agility, member); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return false, fault.ErrShutdown
	}
	if c.returnOpen {
		return false, fault.Violation("step_outward", "cohort %d has not reversed direction", c.id)
	}
	if crawl.Arrived(c.positions, c.distance, crawl.Outward) {
		c.phase = AwaitingDeparture
		return false, nil
	}
	if c.positions[member] != 0 {
		mv := crawl.Step(c.positions, member, agility, c.distance, c.maxSep, crawl.Outward)
		c.apply(member, mv)
	}
	return true, nil
}

func (c *Coordinator) apply(member int, mv crawl.Move) {
	if !mv.Moved() {
		return
	}
	c.positions[member] = mv.To
	c.rec.Note(audit.Event{
		Kind:   audit.KindPosition,
		Cohort: c.id,
		Member: member,
		Thief:  c.thieves[member],
		Value:  mv.To,
		State:  mv.Situation.String(),
	})
}

func (c *Coordinator) checkMove(op string, agility, member int) error {
	if member < 0 || member >= c.size {
		return fault.Violation(op, "cohort %d has no member %d", c.id, member)
	}
	if agility < 1 {
		return fault.Violation(op, "agility %d below 1", agility)
	}
	return nil
}

func (c *Coordinator) Size(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.size, nil
}

func (c *Coordinator) CohortID(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.id, nil
}

func (c *Coordinator) AssignedRoom(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, nil
}

// SetAssignedRoom points the cohort at roomID. A roomID of -1 keeps the
// current room. Only allowed while the cohort is at the staging area.
func (c *Coordinator) SetAssignedRoom(ctx context.Context, roomID, distance int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if roomID == -1 {
		return nil
	}
	if roomID < 0 || distance < 1 {
		return fault.Violation("set_assigned_room", "room %d at distance %d", roomID, distance)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return fault.ErrShutdown
	}
	if !crawl.Arrived(c.positions, c.distance, crawl.Outward) {
		return fault.Violation("set_assigned_room", "cohort %d is out on a crawl", c.id)
	}
	if c.room == roomID && c.distance == distance {
		return nil
	}
	c.room, c.distance = roomID, distance
	c.rec.Note(audit.Event{Kind: audit.KindCohortRoom, Cohort: c.id, Room: roomID, Value: distance})
	return nil
}

// MarkAtControlPoint only tells the audit log the thief reached the
// drop-off point.
func (c *Coordinator) MarkAtControlPoint(ctx context.Context, thiefID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.rec.Thief(thiefID, audit.ThiefAtDropoff)
	return nil
}

// Positions returns a copy of the member positions.
func (c *Coordinator) Positions() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.positions...)
}

func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Shutdown releases every parked caller with fault.ErrShutdown.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	c.shutdown = true
	close(c.done)
	c.hold.Broadcast()
}

func (c *Coordinator) Done() <-chan struct{} { return c.done }
