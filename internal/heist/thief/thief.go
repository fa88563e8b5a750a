// Package thief runs one thief: an explicit state, a pure transition
// function, and a loop that does the remote calls of each state.
package thief

import (
	"context"
	"fmt"
	"log"
	"time"

	"museumheist.ai/internal/heist/dropoff"
)

type State int

const (
	AtStaging State = iota
	CrawlingIn
	AtTarget
	CrawlingOut
	AtDropoff
	Finished
)

func (s State) String() string {
	switch s {
	case AtStaging:
		return "AT_STAGING"
	case CrawlingIn:
		return "CRAWLING_IN"
	case AtTarget:
		return "AT_TARGET"
	case CrawlingOut:
		return "CRAWLING_OUT"
	case AtDropoff:
		return "AT_DROPOFF"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what a state's calls produced.
type Outcome struct {
	// Done: the collection site ended the heist.
	Done bool
	// Continue: the crawl call asked to be called again.
	Continue bool
	// HandedOff: the loot went to the dispatcher.
	HandedOff bool
}

// Transition is the thief's state machine.
func Transition(s State, o Outcome) State {
	switch s {
	case AtStaging:
		if o.Done {
			return Finished
		}
		return CrawlingIn
	case CrawlingIn:
		if o.Continue {
			return CrawlingIn
		}
		return AtTarget
	case AtTarget:
		return CrawlingOut
	case CrawlingOut:
		if o.Continue {
			return CrawlingOut
		}
		return AtDropoff
	case AtDropoff:
		if o.HandedOff {
			return AtStaging
		}
		return AtDropoff
	default:
		return Finished
	}
}

type Party interface {
	StepInward(ctx context.Context, agility, member, thiefID int) (bool, error)
	ReverseDirection(ctx context.Context, thiefID int) error
	StepOutward(ctx context.Context, agility, member int) (bool, error)
	AssignedRoom(ctx context.Context) (int, error)
	SetAssignedRoom(ctx context.Context, roomID, distance int) error
	MarkAtControlPoint(ctx context.Context, thiefID int) error
}

type Staging interface {
	PrepareExcursion(ctx context.Context, needsRoom bool) (int, error)
}

type Dropoff interface {
	AmINeeded(ctx context.Context, thiefID, cohortID, lastRoomID int) (dropoff.Admission, error)
	IsDispatcherResting(ctx context.Context) (bool, error)
	HandoffItem(ctx context.Context, h dropoff.Handoff) error
}

type Museum interface {
	RoomDistance(ctx context.Context, roomID int) (int, error)
	TakeItem(ctx context.Context, thiefID, roomID, member, cohortID int) (bool, error)
}

type Config struct {
	ID      int
	Cohort  int
	Member  int
	Agility int
	// HandoffRetry is the pause between two clearance checks at the
	// collection site.
	HandoffRetry time.Duration
}

type Thief struct {
	cfg     Config
	party   Party
	staging Staging
	dropoff Dropoff
	museum  Museum
	log     *log.Logger

	state     State
	room      int
	carrying  bool
	announced bool
	handoffs  int
}

func New(cfg Config, party Party, staging Staging, drop Dropoff, museum Museum, logger *log.Logger) *Thief {
	return &Thief{
		cfg:     cfg,
		party:   party,
		staging: staging,
		dropoff: drop,
		museum:  museum,
		log:     logger,
		state:   AtStaging,
		room:    -1,
	}
}

func (t *Thief) State() State { return t.state }

// Handoffs is how many times the thief reached the dispatcher.
func (t *Thief) Handoffs() int { return t.handoffs }

// Run drives the thief until the heist is over or a call fails.
func (t *Thief) Run(ctx context.Context) error {
	for t.state != Finished {
		o, err := t.act(ctx)
		if err != nil {
			return fmt.Errorf("thief %d %s: %w", t.cfg.ID, t.state, err)
		}
		t.state = Transition(t.state, o)
	}
	return nil
}

func (t *Thief) act(ctx context.Context) (Outcome, error) {
	switch t.state {
	case AtStaging:
		return t.atStaging(ctx)
	case CrawlingIn:
		more, err := t.party.StepInward(ctx, t.cfg.Agility, t.cfg.Member, t.cfg.ID)
		return Outcome{Continue: more}, err
	case AtTarget:
		return t.atTarget(ctx)
	case CrawlingOut:
		more, err := t.party.StepOutward(ctx, t.cfg.Agility, t.cfg.Member)
		return Outcome{Continue: more}, err
	case AtDropoff:
		return t.atDropoff(ctx)
	}
	return Outcome{}, nil
}

func (t *Thief) atStaging(ctx context.Context) (Outcome, error) {
	room, err := t.party.AssignedRoom(ctx)
	if err != nil {
		return Outcome{}, err
	}
	adm, err := t.dropoff.AmINeeded(ctx, t.cfg.ID, t.cfg.Cohort, room)
	if err != nil {
		return Outcome{}, err
	}
	if adm.Done {
		return Outcome{Done: true}, nil
	}
	next, err := t.staging.PrepareExcursion(ctx, adm.NeedsNewRoom)
	if err != nil {
		return Outcome{}, err
	}
	if next != -1 {
		dist, err := t.museum.RoomDistance(ctx, next)
		if err != nil {
			return Outcome{}, err
		}
		if err := t.party.SetAssignedRoom(ctx, next, dist); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{}, nil
}

func (t *Thief) atTarget(ctx context.Context) (Outcome, error) {
	room, err := t.party.AssignedRoom(ctx)
	if err != nil {
		return Outcome{}, err
	}
	t.room = room
	got, err := t.museum.TakeItem(ctx, t.cfg.ID, room, t.cfg.Member, t.cfg.Cohort)
	if err != nil {
		return Outcome{}, err
	}
	t.carrying = got
	t.announced = false
	return Outcome{}, t.party.ReverseDirection(ctx, t.cfg.ID)
}

// atDropoff hands the loot over only while the dispatcher is resting.
// Otherwise the thief waits a little and asks again.
func (t *Thief) atDropoff(ctx context.Context) (Outcome, error) {
	if !t.announced {
		if err := t.party.MarkAtControlPoint(ctx, t.cfg.ID); err != nil {
			return Outcome{}, err
		}
		t.announced = true
	}
	resting, err := t.dropoff.IsDispatcherResting(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !resting {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-time.After(t.cfg.HandoffRetry):
		}
		return Outcome{}, nil
	}
	items := 0
	if t.carrying {
		items = 1
	}
	err = t.dropoff.HandoffItem(ctx, dropoff.Handoff{
		Thief:  t.cfg.ID,
		Room:   t.room,
		Items:  items,
		Member: t.cfg.Member,
		Cohort: t.cfg.Cohort,
	})
	if err != nil {
		return Outcome{}, err
	}
	t.carrying = false
	t.handoffs++
	return Outcome{HandedOff: true}, nil
}
