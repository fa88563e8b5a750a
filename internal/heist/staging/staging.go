// Package staging is the concentration site: cohorts assemble here and
// the dispatcher sends them off one full batch at a time.
package staging

import (
	"context"
	"log"
	"sync"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/heist/audit"
)

type Barrier struct {
	cohortSize int
	rec        audit.Recorder

	mu sync.Mutex
	// gate wakes thieves waiting for the dispatcher to open the round,
	// batch wakes the dispatcher, first holds the batch's first member
	// until the dispatcher has closed the round.
	gate  *sync.Cond
	batch *sync.Cond
	first *sync.Cond

	open      bool
	ready     int
	batchDone bool
	holdFirst bool
	nextRoom  int

	shutdown bool
	done     chan struct{}
}

func New(cohortSize int, sink audit.Sink, logger *log.Logger) *Barrier {
	b := &Barrier{
		cohortSize: cohortSize,
		rec:        audit.NewRecorder(sink, logger),
		done:       make(chan struct{}),
	}
	b.gate = sync.NewCond(&b.mu)
	b.batch = sync.NewCond(&b.mu)
	b.first = sync.NewCond(&b.mu)
	return b
}

// PrepareExcursion parks the caller until the dispatcher opens a round,
// then counts it into the batch. When the cohort needs a room every
// member gets the same freshly allocated room id; otherwise -1.
func (b *Barrier) PrepareExcursion(ctx context.Context, needsRoom bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.open && !b.shutdown {
		b.gate.Wait()
	}
	if b.shutdown {
		return 0, fault.ErrShutdown
	}

	b.ready++
	if b.ready == b.cohortSize {
		b.ready = 0
		b.batchDone = true
		b.batch.Signal()
		if needsRoom {
			id := b.nextRoom
			b.nextRoom++
			return id, nil
		}
		return -1, nil
	}
	if needsRoom {
		return b.nextRoom, nil
	}
	if b.ready == 1 {
		for b.holdFirst && !b.shutdown {
			b.first.Wait()
		}
		if b.shutdown {
			return 0, fault.ErrShutdown
		}
	}
	return -1, nil
}

// DispatchCohort opens one round, waits for a full batch, then closes the
// round and releases the batch's first member.
func (b *Barrier) DispatchCohort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return fault.ErrShutdown
	}
	b.open = true
	b.holdFirst = true
	b.gate.Broadcast()
	for !b.batchDone && !b.shutdown {
		b.batch.Wait()
	}
	if b.shutdown {
		return fault.ErrShutdown
	}
	b.batchDone = false
	b.open = false
	b.holdFirst = false
	b.first.Broadcast()
	b.rec.Master(audit.MasterDeciding)
	return nil
}

// RoomsAllocated is the number of room ids handed out so far.
func (b *Barrier) RoomsAllocated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextRoom
}

func (b *Barrier) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return
	}
	b.shutdown = true
	close(b.done)
	b.gate.Broadcast()
	b.batch.Broadcast()
	b.first.Broadcast()
}

func (b *Barrier) Done() <-chan struct{} { return b.done }
