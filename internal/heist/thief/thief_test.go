package thief

import (
	"context"
	"sync"
	"testing"
	"time"

	"museumheist.ai/internal/heist/dropoff"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from State
		o    Outcome
		want State
	}{
		{AtStaging, Outcome{}, CrawlingIn},
		{AtStaging, Outcome{Done: true}, Finished},
		{CrawlingIn, Outcome{Continue: true}, CrawlingIn},
		{CrawlingIn, Outcome{}, AtTarget},
		{AtTarget, Outcome{}, CrawlingOut},
		{CrawlingOut, Outcome{Continue: true}, CrawlingOut},
		{CrawlingOut, Outcome{}, AtDropoff},
		{AtDropoff, Outcome{}, AtDropoff},
		{AtDropoff, Outcome{HandedOff: true}, AtStaging},
		{Finished, Outcome{}, Finished},
	}
	for _, c := range cases {
		if got := Transition(c.from, c.o); got != c.want {
			t.Fatalf("Transition(%s, %+v) = %s, want %s", c.from, c.o, got, c.want)
		}
	}
}

type fakeParty struct {
	mu       sync.Mutex
	room     int
	inward   int
	outward  int
	reversed int
	marked   int
}

func (p *fakeParty) StepInward(ctx context.Context, agility, member, thiefID int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inward++
	return p.inward%3 != 0, nil
}

func (p *fakeParty) ReverseDirection(ctx context.Context, thiefID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reversed++
	return nil
}

func (p *fakeParty) StepOutward(ctx context.Context, agility, member int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outward++
	return p.outward%2 != 0, nil
}

func (p *fakeParty) AssignedRoom(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room, nil
}

func (p *fakeParty) SetAssignedRoom(ctx context.Context, roomID, distance int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.room = roomID
	return nil
}

func (p *fakeParty) MarkAtControlPoint(ctx context.Context, thiefID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marked++
	return nil
}

type fakeStaging struct{ next int }

func (s *fakeStaging) PrepareExcursion(ctx context.Context, needsRoom bool) (int, error) {
	if !needsRoom {
		return -1, nil
	}
	id := s.next
	s.next++
	return id, nil
}

type fakeMuseum struct{ taken []int }

func (m *fakeMuseum) RoomDistance(ctx context.Context, roomID int) (int, error) { return 4, nil }

func (m *fakeMuseum) TakeItem(ctx context.Context, thiefID, roomID, member, cohortID int) (bool, error) {
	m.taken = append(m.taken, roomID)
	return true, nil
}

// fakeDropoff lets the thief out once, then turns the dispatcher to its
// resting phase only on the third clearance check.
type fakeDropoff struct {
	mu       sync.Mutex
	arrivals []int
	checks   int
	resting  bool
	handoffs []dropoff.Handoff
	offPhase int
}

func (d *fakeDropoff) AmINeeded(ctx context.Context, thiefID, cohortID, lastRoomID int) (dropoff.Admission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.arrivals = append(d.arrivals, lastRoomID)
	if len(d.arrivals) == 1 {
		return dropoff.Admission{NeedsNewRoom: true}, nil
	}
	return dropoff.Admission{Done: true}, nil
}

func (d *fakeDropoff) IsDispatcherResting(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	d.resting = d.checks >= 3
	return d.resting, nil
}

func (d *fakeDropoff) HandoffItem(ctx context.Context, h dropoff.Handoff) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.resting {
		d.offPhase++
	}
	d.handoffs = append(d.handoffs, h)
	d.resting = false
	return nil
}

func TestRun_HandsOffOnlyWhileDispatcherRests(t *testing.T) {
	p := &fakeParty{room: -1}
	s := &fakeStaging{}
	m := &fakeMuseum{}
	d := &fakeDropoff{}
	th := New(Config{ID: 4, Cohort: 1, Member: 2, Agility: 3, HandoffRetry: time.Millisecond}, p, s, d, m, nil)

	if err := th.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if th.State() != Finished {
		t.Fatalf("state=%s", th.State())
	}
	if d.offPhase != 0 {
		t.Fatalf("%d hand-offs outside the resting phase", d.offPhase)
	}
	if d.checks != 3 {
		t.Fatalf("clearance checks=%d want 3", d.checks)
	}
	if len(d.handoffs) != 1 {
		t.Fatalf("hand-offs=%d want 1", len(d.handoffs))
	}
	want := dropoff.Handoff{Thief: 4, Room: 0, Items: 1, Member: 2, Cohort: 1}
	if d.handoffs[0] != want {
		t.Fatalf("hand-off %+v want %+v", d.handoffs[0], want)
	}
	if p.marked != 1 {
		t.Fatalf("control point marked %d times", p.marked)
	}
	if p.inward != 3 || p.outward != 2 || p.reversed != 1 {
		t.Fatalf("crawl calls in=%d out=%d reversed=%d", p.inward, p.outward, p.reversed)
	}
	if len(d.arrivals) != 2 || d.arrivals[0] != -1 || d.arrivals[1] != 0 {
		t.Fatalf("arrivals %v", d.arrivals)
	}
	if th.Handoffs() != 1 {
		t.Fatalf("Handoffs()=%d", th.Handoffs())
	}
}

func TestRun_CancelledWhileWaitingForClearance(t *testing.T) {
	p := &fakeParty{room: 0}
	d := &neverResting{}
	th := New(Config{ID: 0, Agility: 2, HandoffRetry: 5 * time.Millisecond}, p, &fakeStaging{}, d, &fakeMuseum{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := th.Run(ctx); err == nil {
		t.Fatalf("expected an error after cancellation")
	}
	if th.State() != AtDropoff {
		t.Fatalf("state=%s want AT_DROPOFF", th.State())
	}
}

type neverResting struct{ fakeDropoff }

func (d *neverResting) AmINeeded(ctx context.Context, thiefID, cohortID, lastRoomID int) (dropoff.Admission, error) {
	return dropoff.Admission{}, nil
}

func (d *neverResting) IsDispatcherResting(ctx context.Context) (bool, error) { return false, nil }
