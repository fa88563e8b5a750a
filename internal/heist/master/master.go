// Package master runs the dispatcher: it decides which cohort leaves
// next, collects the loot and calls the heist off when nothing is left.
package master

import (
	"context"
	"fmt"
	"log"
)

type State int

const (
	Planning State = iota
	Deciding
	Dispatching
	Resting
	Reporting
	Finished
)

func (s State) String() string {
	switch s {
	case Planning:
		return "PLANNING"
	case Deciding:
		return "DECIDING"
	case Dispatching:
		return "DISPATCHING"
	case Resting:
		return "RESTING"
	case Reporting:
		return "REPORTING"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what the DECIDING calls found out.
type Outcome struct {
	Over       bool
	Dispatched bool
}

func Transition(s State, o Outcome) State {
	switch s {
	case Planning:
		return Deciding
	case Deciding:
		switch {
		case o.Over:
			return Reporting
		case o.Dispatched:
			return Dispatching
		default:
			return Resting
		}
	case Dispatching, Resting:
		return Deciding
	default:
		return Finished
	}
}

type Dropoff interface {
	WaitForInitialPopulation(ctx context.Context) error
	StartOperations(ctx context.Context) error
	IsHeistOver(ctx context.Context) (bool, error)
	PrepareAssaultParty(ctx context.Context) (bool, error)
	RestUntilArrival(ctx context.Context) error
	CollectItem(ctx context.Context) error
	FinalizeAndReport(ctx context.Context) (int, error)
}

type Staging interface {
	DispatchCohort(ctx context.Context) error
}

type Master struct {
	dropoff Dropoff
	staging Staging
	log     *log.Logger

	state      State
	dispatched int
	collected  int
	total      int
}

func New(drop Dropoff, staging Staging, logger *log.Logger) *Master {
	return &Master{dropoff: drop, staging: staging, log: logger, state: Planning}
}

func (m *Master) State() State { return m.state }

// Stats are the dispatcher's own counters.
type Stats struct {
	Dispatched int
	Collected  int
	Total      int
}

func (m *Master) Stats() Stats {
	return Stats{Dispatched: m.dispatched, Collected: m.collected, Total: m.total}
}

// Run drives the dispatcher to the end of the heist and returns the
// final tally.
func (m *Master) Run(ctx context.Context) (int, error) {
	for m.state != Finished {
		o, err := m.act(ctx)
		if err != nil {
			return 0, fmt.Errorf("master %s: %w", m.state, err)
		}
		m.state = Transition(m.state, o)
	}
	if m.log != nil {
		m.log.Printf("heist over: %d items in %d dispatches", m.total, m.dispatched)
	}
	return m.total, nil
}

func (m *Master) act(ctx context.Context) (Outcome, error) {
	switch m.state {
	case Planning:
		if err := m.dropoff.WaitForInitialPopulation(ctx); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, m.dropoff.StartOperations(ctx)
	case Deciding:
		over, err := m.dropoff.IsHeistOver(ctx)
		if err != nil || over {
			return Outcome{Over: over}, err
		}
		ok, err := m.dropoff.PrepareAssaultParty(ctx)
		return Outcome{Dispatched: ok}, err
	case Dispatching:
		if err := m.staging.DispatchCohort(ctx); err != nil {
			return Outcome{}, err
		}
		m.dispatched++
		return Outcome{}, nil
	case Resting:
		if err := m.dropoff.RestUntilArrival(ctx); err != nil {
			return Outcome{}, err
		}
		if err := m.dropoff.CollectItem(ctx); err != nil {
			return Outcome{}, err
		}
		m.collected++
		return Outcome{}, nil
	case Reporting:
		total, err := m.dropoff.FinalizeAndReport(ctx)
		if err != nil {
			return Outcome{}, err
		}
		m.total = total
		return Outcome{}, nil
	}
	return Outcome{}, nil
}
