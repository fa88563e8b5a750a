package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"museumheist.ai/internal/sim/tuning"
)

// LineWriter receives rendered status lines.
type LineWriter interface {
	WriteLine(line string) error
}

// EventWriter receives stamped events.
type EventWriter interface {
	WriteEvent(ev Event) error
}

type Options struct {
	RunID  string
	Lines  LineWriter
	Events []EventWriter
	Logger *log.Logger

	// OnReport runs after the REPORT event has been written, outside the
	// board lock.
	OnReport func(st Status, ev Event)
}

// Board is the AuditLog: it stamps events, keeps the Status, renders one
// line per event and fans everything out to the configured writers and
// observers. It also runs a Verifier and logs any violation it finds.
type Board struct {
	cfg  tuning.Tuning
	opts Options

	verifier *Verifier

	mu        sync.Mutex
	seq       uint64
	status    Status
	headerOut bool
	subs      map[int]chan string
	nextSub   int
}

func NewBoard(cfg tuning.Tuning, opts Options) *Board {
	return &Board{
		cfg:      cfg,
		opts:     opts,
		verifier: NewVerifier(cfg.MaxSeparation, cfg.PartySize),
		status:   NewStatus(cfg),
		subs:     map[int]chan string{},
	}
}

func (b *Board) Record(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq
	ev.RunID = b.opts.RunID
	ev.At = time.Now().UTC().Format(time.RFC3339Nano)

	if !b.status.Apply(ev) {
		b.logf("audit: dropped out-of-range %s event (seq %d)", ev.Kind, ev.Seq)
	}
	if err := b.verifier.Record(ctx, ev); err != nil {
		b.logf("audit: invariant violated: %v", err)
	}

	var lines []string
	if !b.headerOut {
		b.headerOut = true
		lines = append(lines, Header(b.status, b.cfg.Log.ColumnGap, b.cfg.Log.BreakLines)...)
	}
	lines = append(lines, Line(b.status, b.cfg.Log.ColumnGap, b.cfg.Log.BreakLines))
	if ev.Kind == KindReport {
		lines = append(lines, FinalLine(ev.Value))
	}

	first := b.write(ev, lines)
	for _, l := range lines {
		b.publishLocked(l)
	}
	var snap Status
	if ev.Kind == KindReport {
		snap = b.status.Clone()
	}
	b.mu.Unlock()

	if ev.Kind == KindReport && b.opts.OnReport != nil {
		b.opts.OnReport(snap, ev)
	}
	return first
}

func (b *Board) write(ev Event, lines []string) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if b.opts.Lines != nil {
		for _, l := range lines {
			keep(b.opts.Lines.WriteLine(l))
		}
	}
	for _, w := range b.opts.Events {
		keep(w.WriteEvent(ev))
	}
	return first
}

// Snapshot returns a copy of the current status.
func (b *Board) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status.Clone()
}

func (b *Board) RunID() string { return b.opts.RunID }

// HeaderLines renders the table header for the current status.
func (b *Board) HeaderLines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Header(b.status, b.cfg.Log.ColumnGap, b.cfg.Log.BreakLines)
}

// Violations reports how many events failed an invariant check.
func (b *Board) Violations() int { return b.verifier.Violations() }

// Seq is the number of events recorded so far.
func (b *Board) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Subscribe streams rendered lines to the returned channel. A subscriber
// that falls behind loses lines rather than stalling the board.
func (b *Board) Subscribe(buf int) (int, <-chan string) {
	if buf <= 0 {
		buf = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	ch := make(chan string, buf)
	b.subs[b.nextSub] = ch
	return b.nextSub, ch
}

func (b *Board) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Board) publishLocked(line string) {
	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

func (b *Board) logf(format string, args ...any) {
	if b.opts.Logger != nil {
		b.opts.Logger.Printf(format, args...)
	}
}
