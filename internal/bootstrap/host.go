package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/transport/rpc"
)

// Gauge is one extra line on /metrics.
type Gauge struct {
	Name  string
	Help  string
	Value func() int64
}

// Service is what a process hosts: one rpc server, the names it is bound
// under and the channel that closes when the service has shut down.
type Service struct {
	RPC    *rpc.Server
	Names  []string
	Done   <-chan struct{}
	Gauges []Gauge
	// Routes are mounted next to /v1/rpc.
	Routes map[string]http.Handler
}

// Mux serves /v1/rpc, /healthz, /metrics and the service's own routes.
func (s Service) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rpc", s.RPC.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.writeMetrics(rw)
	})
	paths := make([]string, 0, len(s.Routes))
	for p := range s.Routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		mux.Handle(p, s.Routes[p])
	}
	return mux
}

func (s Service) writeMetrics(w io.Writer) {
	name := s.RPC.Name()
	st := s.RPC.Stats()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(w, "# HELP heist_rpc_calls_total Calls served.\n")
	fmt.Fprintf(w, "# TYPE heist_rpc_calls_total counter\n")
	fmt.Fprintf(w, "heist_rpc_calls_total{service=%q} %d\n", name, st.Calls)

	fmt.Fprintf(w, "# HELP heist_rpc_failures_total Calls that returned an error.\n")
	fmt.Fprintf(w, "# TYPE heist_rpc_failures_total counter\n")
	fmt.Fprintf(w, "heist_rpc_failures_total{service=%q} %d\n", name, st.Failures)

	fmt.Fprintf(w, "# HELP heist_rpc_in_flight Calls running or parked.\n")
	fmt.Fprintf(w, "# TYPE heist_rpc_in_flight gauge\n")
	fmt.Fprintf(w, "heist_rpc_in_flight{service=%q} %d\n", name, st.InFlight)

	fmt.Fprintf(w, "# HELP heist_rpc_sessions Connected clients.\n")
	fmt.Fprintf(w, "# TYPE heist_rpc_sessions gauge\n")
	fmt.Fprintf(w, "heist_rpc_sessions{service=%q} %d\n", name, st.Sessions)

	for _, g := range s.Gauges {
		fmt.Fprintf(w, "# HELP heist_%s %s\n", g.Name, g.Help)
		fmt.Fprintf(w, "# TYPE heist_%s gauge\n", g.Name)
		fmt.Fprintf(w, "heist_%s{service=%q} %d\n", g.Name, name, g.Value())
	}
}

// DialRegistry connects to the registry, retrying until timeout passes.
func DialRegistry(ctx context.Context, args Args, clientName string, timeout time.Duration) (*lookup.Client, error) {
	deadline := time.Now().Add(timeout)
	for {
		c, err := lookup.Dial(ctx, args.RegistryHost, args.RegistryPort, clientName)
		if err == nil {
			return c, nil
		}
		if !fault.IsConnectivity(err) || !time.Now().Before(deadline) {
			return nil, err
		}
		t := time.NewTimer(100 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Run hosts svc on args.Host:args.Port, binds its names in the registry
// and blocks until the service shuts down or ctx is cancelled. On the
// way out it unbinds the names and drains in-flight calls.
func Run(ctx context.Context, args Args, svc Service, timeout time.Duration, logger *log.Logger) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(args.Host, strconv.Itoa(args.Port)))
	if err != nil {
		return fault.Configf("port", "listen: %v", err)
	}
	hs := &http.Server{Handler: svc.Mux(), ReadHeaderTimeout: 5 * time.Second}
	served := make(chan error, 1)
	go func() { served <- hs.Serve(ln) }()

	var reg *lookup.Client
	if len(svc.Names) > 0 {
		reg, err = DialRegistry(ctx, args, svc.RPC.Name(), timeout)
		if err != nil {
			closeHost(hs, svc.RPC)
			return fmt.Errorf("registry: %w", err)
		}
		defer reg.Close()
		endpoint := lookup.Endpoint(args.Host, args.Port)
		for _, name := range svc.Names {
			if err := reg.Register(ctx, name, endpoint); err != nil {
				closeHost(hs, svc.RPC)
				return fmt.Errorf("register %s: %w", name, err)
			}
		}
	}
	logf(logger, "listening on %s as %v", ln.Addr(), svc.Names)

	var runErr error
	select {
	case <-svc.Done:
		logf(logger, "shut down")
	case <-ctx.Done():
		logf(logger, "signal received")
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	if reg != nil {
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		for _, name := range svc.Names {
			if err := reg.Unbind(uctx, name); err != nil {
				logf(logger, "unbind %s: %v", name, err)
			}
		}
		cancel()
	}
	closeHost(hs, svc.RPC)
	return runErr
}

func closeHost(hs *http.Server, srv *rpc.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Close(ctx)
	_ = hs.Shutdown(ctx)
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
