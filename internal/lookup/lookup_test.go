package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/transport/rpc"
)

func TestTable_RegisterFindUnbind(t *testing.T) {
	ctx := context.Background()
	tab := NewTable()

	if err := tab.Register(ctx, StagingName, "ws://h:1/v1/rpc"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := tab.Register(ctx, StagingName, "ws://h:1/v1/rpc"); err != nil {
		t.Fatalf("re-Register same addr: %v", err)
	}
	if err := tab.Register(ctx, StagingName, "ws://h:2/v1/rpc"); !errors.Is(err, fault.ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
	addr, err := tab.Find(ctx, StagingName)
	if err != nil || addr != "ws://h:1/v1/rpc" {
		t.Fatalf("Find: %q %v", addr, err)
	}
	if err := tab.Unbind(ctx, StagingName); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if _, err := tab.Find(ctx, StagingName); !errors.Is(err, fault.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
	if err := tab.Unbind(ctx, StagingName); !errors.Is(err, fault.ErrNotBound) {
		t.Fatalf("expected ErrNotBound on double unbind, got %v", err)
	}
}

func TestPartyNameAndEndpoint(t *testing.T) {
	if got := PartyName(1); got != "party/1" {
		t.Fatalf("PartyName=%q", got)
	}
	if got := Endpoint("127.0.0.1", 22001); got != "ws://127.0.0.1:22001/v1/rpc" {
		t.Fatalf("Endpoint=%q", got)
	}
}

func TestResolve_WaitsForLateBinding(t *testing.T) {
	ctx := context.Background()
	tab := NewTable()
	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = tab.Register(ctx, DropoffName, "ws://late/v1/rpc")
	}()
	addr, err := Resolve(ctx, tab, DropoffName, 3*time.Second)
	if err != nil || addr != "ws://late/v1/rpc" {
		t.Fatalf("Resolve: %q %v", addr, err)
	}
}

func TestResolve_TimesOutAsConnectivity(t *testing.T) {
	_, err := Resolve(context.Background(), NewTable(), MuseumName, 0)
	if !fault.IsConnectivity(err) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if !errors.Is(err, fault.ErrNotBound) {
		t.Fatalf("expected wrapped ErrNotBound, got %v", err)
	}
}

func TestClient_OverRPC(t *testing.T) {
	s := rpc.NewServer("registry", nil)
	Serve(s, NewTable())
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rpc", s.Handler())
	ts := httptest.NewServer(mux)
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	port, _ := strconv.Atoi(u.Port())
	ctx := context.Background()
	c, err := Dial(ctx, u.Hostname(), port, "test")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Register(ctx, PartyName(0), "ws://p0/v1/rpc"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register(ctx, PartyName(0), "ws://other/v1/rpc"); !errors.Is(err, fault.ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound over rpc, got %v", err)
	}
	addr, err := c.Find(ctx, PartyName(0))
	if err != nil || addr != "ws://p0/v1/rpc" {
		t.Fatalf("Find: %q %v", addr, err)
	}
	names, err := c.List(ctx)
	if err != nil || len(names) != 1 || names[0] != "party/0" {
		t.Fatalf("List: %v %v", names, err)
	}
	if err := c.Unbind(ctx, PartyName(0)); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if _, err := c.Find(ctx, PartyName(0)); !errors.Is(err, fault.ErrNotBound) {
		t.Fatalf("expected ErrNotBound over rpc, got %v", err)
	}
}
