package dropoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"museumheist.ai/internal/fault"
)

type admission struct {
	adm Admission
	err error
}

func arrive(r *Rendezvous, thief, cohort, lastRoom int) <-chan admission {
	ch := make(chan admission, 1)
	go func() {
		a, err := r.AmINeeded(context.Background(), thief, cohort, lastRoom)
		ch <- admission{adm: a, err: err}
	}()
	return ch
}

func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func must(t *testing.T, ch <-chan error, what string) {
	t.Helper()
	select {
	case err := <-ch:
		if err != nil {
			t.Fatalf("%s: %v", what, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not return", what)
	}
}

func admitted(t *testing.T, ch <-chan admission) Admission {
	t.Helper()
	select {
	case a := <-ch:
		if a.err != nil {
			t.Fatalf("AmINeeded: %v", a.err)
		}
		return a.adm
	case <-time.After(2 * time.Second):
		t.Fatalf("AmINeeded did not return")
	}
	return Admission{}
}

func quiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("%s returned early: %v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// deliver runs one full rest, clearance, hand-off and collect cycle and
// leaves the thief parked back at the site.
func deliver(t *testing.T, r *Rendezvous, h Handoff) <-chan admission {
	t.Helper()
	ctx := context.Background()
	rest := async(func() error { return r.RestUntilArrival(ctx) })
	waitFor(t, "clearance", func() bool {
		ok, err := r.IsDispatcherResting(ctx)
		return err == nil && ok
	})
	handed := async(func() error { return r.HandoffItem(ctx, h) })
	must(t, rest, "RestUntilArrival")
	collected := async(func() error { return r.CollectItem(ctx) })
	must(t, handed, "HandoffItem")
	quiet(t, collected, "CollectItem before the thief is back")
	back := arrive(r, h.Thief, h.Cohort, h.Room)
	must(t, collected, "CollectItem")
	return back
}

func over(t *testing.T, r *Rendezvous) bool {
	t.Helper()
	v, err := r.IsHeistOver(context.Background())
	if err != nil {
		t.Fatalf("IsHeistOver: %v", err)
	}
	return v
}

func TestPrepareAssaultParty_NoRoomLeftKeepsCohortWaiting(t *testing.T) {
	ctx := context.Background()
	r := New(2, 1, 1, nil, nil)
	a := arrive(r, 0, 0, -1)
	b := arrive(r, 1, 1, -1)
	must(t, async(func() error { return r.WaitForInitialPopulation(ctx) }), "WaitForInitialPopulation")

	ok, err := r.PrepareAssaultParty(ctx)
	if err != nil || !ok {
		t.Fatalf("first dispatch: ok=%v err=%v", ok, err)
	}
	if adm := admitted(t, a); adm.Done || !adm.NeedsNewRoom {
		t.Fatalf("cohort 0 admission %+v", adm)
	}

	ok, err = r.PrepareAssaultParty(ctx)
	if err != nil || ok {
		t.Fatalf("second dispatch: ok=%v err=%v", ok, err)
	}
	st := r.State()
	if st.Waiting[1] != 1 || st.RoomsLeft != 0 {
		t.Fatalf("state after refused dispatch: %+v", st)
	}
	quiet(t, b, "cohort without a room")
	r.Shutdown()
}

func TestPrepareAssaultParty_OnlyFullCohorts(t *testing.T) {
	ctx := context.Background()
	r := New(1, 2, 1, nil, nil)
	a := arrive(r, 0, 0, -1)
	waitFor(t, "first thief", func() bool { return r.State().OnSite == 1 })
	if ok, _ := r.PrepareAssaultParty(ctx); ok {
		t.Fatalf("dispatched a cohort with 1 of 2 members")
	}
	b := arrive(r, 1, 0, -1)
	waitFor(t, "second thief", func() bool { return r.State().OnSite == 2 })
	if ok, _ := r.PrepareAssaultParty(ctx); !ok {
		t.Fatalf("full cohort not dispatched")
	}
	admitted(t, a)
	admitted(t, b)
	if st := r.State(); st.Waiting[0] != 0 || st.OnSite != 0 {
		t.Fatalf("state after dispatch: %+v", st)
	}
}

func TestHandoff_SingleSlot(t *testing.T) {
	ctx := context.Background()
	r := New(1, 2, 1, nil, nil)

	first := async(func() error { return r.HandoffItem(ctx, Handoff{Thief: 0, Room: 0, Items: 1, Member: 0}) })
	waitFor(t, "first tuple", func() bool { return r.State().Pending })
	second := async(func() error { return r.HandoffItem(ctx, Handoff{Thief: 1, Room: 0, Items: 1, Member: 1}) })
	quiet(t, second, "second producer while the slot is full")
	quiet(t, first, "producer before drain")

	must(t, async(func() error { return r.RestUntilArrival(ctx) }), "RestUntilArrival with a full slot")
	collected := async(func() error { return r.CollectItem(ctx) })
	must(t, first, "first HandoffItem")
	back := arrive(r, 0, 0, 0)
	must(t, collected, "first CollectItem")

	waitFor(t, "second tuple", func() bool { return r.State().Pending })
	collected = async(func() error { return r.CollectItem(ctx) })
	must(t, second, "second HandoffItem")
	back2 := arrive(r, 1, 0, 0)
	must(t, collected, "second CollectItem")

	if st := r.State(); st.Total != 2 || st.Pending {
		t.Fatalf("state after two hand-offs: %+v", st)
	}
	r.Shutdown()
	<-back
	<-back2
}

func TestCollectItem_EmptySlotIsViolation(t *testing.T) {
	r := New(1, 1, 1, nil, nil)
	err := r.CollectItem(context.Background())
	if !fault.IsViolation(err) {
		t.Fatalf("expected violation, got %v", err)
	}
}

func TestIsDispatcherResting_OneClearancePerRest(t *testing.T) {
	ctx := context.Background()
	r := New(1, 1, 1, nil, nil)
	if ok, _ := r.IsDispatcherResting(ctx); ok {
		t.Fatalf("resting before any rest")
	}
	rest := async(func() error { return r.RestUntilArrival(ctx) })
	waitFor(t, "clearance", func() bool {
		ok, _ := r.IsDispatcherResting(ctx)
		return ok
	})
	if ok, _ := r.IsDispatcherResting(ctx); ok {
		t.Fatalf("second clearance in the same rest")
	}
	quiet(t, rest, "rest without a hand-off")
	handed := async(func() error { return r.HandoffItem(ctx, Handoff{Room: 0, Items: 0}) })
	must(t, rest, "RestUntilArrival")
	r.Shutdown()
	<-handed
}

// Two rooms with one item each, one cohort of two.
func TestIsHeistOver_TwoRoomsOneCohort(t *testing.T) {
	ctx := context.Background()
	r := New(1, 2, 2, nil, nil)
	a := arrive(r, 0, 0, -1)
	b := arrive(r, 1, 0, -1)
	must(t, async(func() error { return r.WaitForInitialPopulation(ctx) }), "WaitForInitialPopulation")

	for room := 0; room < 2; room++ {
		if over(t, r) {
			t.Fatalf("over before room %d", room)
		}
		if ok, err := r.PrepareAssaultParty(ctx); err != nil || !ok {
			t.Fatalf("dispatch to room %d: ok=%v err=%v", room, ok, err)
		}
		if adm := admitted(t, a); adm.Done || !adm.NeedsNewRoom {
			t.Fatalf("room %d admission %+v", room, adm)
		}
		admitted(t, b)

		a = deliver(t, r, Handoff{Thief: 0, Room: room, Items: 1, Member: 0})
		if over(t, r) {
			t.Fatalf("over with thief 1 still out")
		}
		b = deliver(t, r, Handoff{Thief: 1, Room: room, Items: 0, Member: 1})
	}

	if !over(t, r) {
		t.Fatalf("heist not over after both rooms emptied")
	}
	if adm := admitted(t, a); !adm.Done {
		t.Fatalf("thief 0 admission %+v", adm)
	}
	if adm := admitted(t, b); !adm.Done {
		t.Fatalf("thief 1 admission %+v", adm)
	}
	if !over(t, r) {
		t.Fatalf("termination did not latch")
	}
	total, err := r.FinalizeAndReport(ctx)
	if err != nil || total != 2 {
		t.Fatalf("FinalizeAndReport = %d, %v", total, err)
	}
}

func TestFinalizeAndReport_BeforeEndIsViolation(t *testing.T) {
	r := New(1, 1, 1, nil, nil)
	if _, err := r.FinalizeAndReport(context.Background()); !fault.IsViolation(err) {
		t.Fatalf("expected violation, got %v", err)
	}
}

func TestShutdown_ReleasesParkedThieves(t *testing.T) {
	r := New(1, 2, 1, nil, nil)
	a := arrive(r, 0, 0, -1)
	waitFor(t, "thief", func() bool { return r.State().OnSite == 1 })
	r.Shutdown()
	select {
	case got := <-a:
		if !errors.Is(got.err, fault.ErrShutdown) {
			t.Fatalf("expected ErrShutdown, got %v", got.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("thief not released")
	}
	<-r.Done()
}
