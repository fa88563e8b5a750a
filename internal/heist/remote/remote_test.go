package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/heist/dropoff"
	"museumheist.ai/internal/heist/master"
	"museumheist.ai/internal/heist/museum"
	"museumheist.ai/internal/heist/party"
	"museumheist.ai/internal/heist/staging"
	"museumheist.ai/internal/heist/thief"
	"museumheist.ai/internal/transport/rpc"
)

func host(t *testing.T, s *rpc.Server) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rpc", s.Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/rpc"
}

func connect(t *testing.T, url, name string) *rpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.Dial(ctx, url, name)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// One cohort of two raids two rooms over websocket, every service hosted
// on the same rpc server.
func TestHeistOverRPC(t *testing.T) {
	const size, maxSep = 2, 2
	verifier := audit.NewVerifier(maxSep, size)

	site := museum.New([]museum.Room{{ID: 0, Distance: 5, Items: 1}, {ID: 1, Distance: 3, Items: 2}}, verifier, nil)
	coord := party.New(0, size, maxSep, verifier, nil)
	barrier := staging.New(size, verifier, nil)
	drop := dropoff.New(1, size, 2, verifier, nil)

	srv := rpc.NewServer("heist", nil)
	ServeMuseum(srv, site)
	ServeParty(srv, coord)
	ServeStaging(srv, barrier)
	ServeDropoff(srv, drop)
	url := host(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var g errgroup.Group
	for m := 0; m < size; m++ {
		c := connect(t, url, "thief")
		th := thief.New(
			thief.Config{ID: m, Cohort: 0, Member: m, Agility: 2 + m, HandoffRetry: time.Millisecond},
			Party{C: c}, Staging{C: c}, Dropoff{C: c}, Museum{C: c}, nil,
		)
		g.Go(func() error { return th.Run(ctx) })
	}
	mc := connect(t, url, "master")
	boss := master.New(Dropoff{C: mc}, Staging{C: mc}, nil)
	var total int
	g.Go(func() error {
		var err error
		total, err = boss.Run(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("heist: %v", err)
	}

	if total != 3 {
		t.Fatalf("total=%d want 3", total)
	}
	if n := verifier.Violations(); n != 0 {
		t.Fatalf("%d invariant violations", n)
	}
	rooms, err := Museum{C: mc}.Rooms(ctx)
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	for _, r := range rooms {
		if r.Items != 0 {
			t.Fatalf("room %d still holds %d items", r.ID, r.Items)
		}
	}
}

func TestRemoteViolationKeepsItsKind(t *testing.T) {
	drop := dropoff.New(1, 1, 1, nil, nil)
	srv := rpc.NewServer("dropoff", nil)
	ServeDropoff(srv, drop)
	c := connect(t, host(t, srv), "test")

	err := Dropoff{C: c}.CollectItem(context.Background())
	if !fault.IsViolation(err) {
		t.Fatalf("expected violation, got %v", err)
	}
}

func TestShutdownMethod(t *testing.T) {
	coord := party.New(0, 2, 2, nil, nil)
	srv := rpc.NewServer("party", nil)
	ServeParty(srv, coord)
	c := connect(t, host(t, srv), "test")
	p := Party{C: c}

	if n, err := p.Size(context.Background()); err != nil || n != 2 {
		t.Fatalf("Size = %d, %v", n, err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("coordinator not shut down")
	}
	if _, err := p.AssignedRoom(context.Background()); err != nil {
		t.Fatalf("AssignedRoom after shutdown: %v", err)
	}
	if err := p.ReverseDirection(context.Background(), 0); !errors.Is(err, fault.ErrShutdown) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
}

func TestAuditRecord(t *testing.T) {
	verifier := audit.NewVerifier(2, 2)
	stopped := make(chan struct{})
	srv := rpc.NewServer("audit", nil)
	ServeAudit(srv, verifier, func() { close(stopped) })
	a := Audit{C: connect(t, host(t, srv), "test")}

	ctx := context.Background()
	if err := a.Record(ctx, audit.Event{Kind: audit.KindCohortRoom, Cohort: 0, Room: 0, Value: 4}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := a.Record(ctx, audit.Event{Kind: audit.KindPosition, Cohort: 0, Member: 0, Value: 3}); err == nil {
		t.Fatalf("expected a formation error for a gap of 3")
	}
	if verifier.Violations() != 1 {
		t.Fatalf("violations=%d want 1", verifier.Violations())
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	<-stopped
}
