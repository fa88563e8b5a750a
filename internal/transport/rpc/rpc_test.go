package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/protocol"
)

type addParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rpc", s.Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/rpc"
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, "test")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCall_RoundTrip(t *testing.T) {
	s := NewServer("calc", nil)
	Bind(s, "calc.add", func(_ context.Context, p addParams) (protocol.IntResult, error) {
		return protocol.IntResult{Value: p.A + p.B}, nil
	})
	c := dial(t, startServer(t, s))
	if c.Service() != "calc" {
		t.Fatalf("service=%q", c.Service())
	}

	var out protocol.IntResult
	if err := c.Call(context.Background(), "calc.add", addParams{A: 2, B: 40}, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Value != 42 {
		t.Fatalf("value=%d want 42", out.Value)
	}
	if st := s.Stats(); st.Calls != 1 || st.Failures != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestCall_ErrorMapping(t *testing.T) {
	s := NewServer("svc", nil)
	Bind(s, "svc.down", func(context.Context, protocol.Empty) (protocol.Empty, error) {
		return protocol.Empty{}, fault.ErrShutdown
	})
	Bind(s, "svc.broken", func(context.Context, protocol.Empty) (protocol.Empty, error) {
		return protocol.Empty{}, fault.Violation("collect", "slot empty")
	})
	c := dial(t, startServer(t, s))
	ctx := context.Background()

	if err := c.Call(ctx, "svc.down", nil, nil); !errors.Is(err, fault.ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got %v", err)
	}
	if err := c.Call(ctx, "svc.broken", nil, nil); !fault.IsViolation(err) {
		t.Fatalf("expected violation, got %v", err)
	}
	err := c.Call(ctx, "svc.missing", nil, nil)
	var re *fault.RemoteError
	if !errors.As(err, &re) || re.Code != protocol.ErrUnknownMethod {
		t.Fatalf("expected unknown method, got %v", err)
	}
	if err := c.Call(ctx, "svc.down", "not an object", nil); err == nil {
		t.Fatalf("expected decode failure")
	}
}

func TestCall_ParkedCallDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	s := NewServer("svc", nil)
	Bind(s, "svc.wait", func(context.Context, protocol.Empty) (protocol.BoolResult, error) {
		<-release
		return protocol.BoolResult{Value: true}, nil
	})
	Bind(s, "svc.ping", func(context.Context, protocol.Empty) (protocol.BoolResult, error) {
		return protocol.BoolResult{Value: true}, nil
	})
	c := dial(t, startServer(t, s))

	parked := make(chan error, 1)
	go func() {
		var out protocol.BoolResult
		parked <- c.Call(context.Background(), "svc.wait", nil, &out)
	}()

	var out protocol.BoolResult
	if err := c.Call(context.Background(), "svc.ping", nil, &out); err != nil || !out.Value {
		t.Fatalf("ping: %v %+v", err, out)
	}
	select {
	case err := <-parked:
		t.Fatalf("parked call returned early: %v", err)
	default:
	}

	close(release)
	select {
	case err := <-parked:
		if err != nil {
			t.Fatalf("parked call: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("parked call never returned")
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	s := NewServer("svc", nil)
	block := make(chan struct{})
	defer close(block)
	Bind(s, "svc.wait", func(context.Context, protocol.Empty) (protocol.Empty, error) {
		<-block
		return protocol.Empty{}, nil
	})
	c := dial(t, startServer(t, s))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, "svc.wait", nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestDial_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/rpc"
	ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, url, "test")
	if !fault.IsConnectivity(err) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}

func TestClose_DeliversInFlightResult(t *testing.T) {
	s := NewServer("svc", nil)
	started := make(chan struct{})
	finish := make(chan struct{})
	Bind(s, "svc.slow", func(context.Context, protocol.Empty) (protocol.IntResult, error) {
		close(started)
		<-finish
		return protocol.IntResult{Value: 7}, nil
	})
	c := dial(t, startServer(t, s))

	got := make(chan error, 1)
	go func() {
		var out protocol.IntResult
		err := c.Call(context.Background(), "svc.slow", nil, &out)
		if err == nil && out.Value != 7 {
			err = errors.New("wrong value")
		}
		got <- err
	}()
	<-started

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closed <- s.Close(ctx)
	}()
	close(finish)

	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("in-flight call: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("in-flight call lost")
	}
}
