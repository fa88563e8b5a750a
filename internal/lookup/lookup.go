// Package lookup is the naming service processes use to find each other.
// A handle is the websocket URL of the named service's rpc endpoint.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"museumheist.ai/internal/fault"
)

// Registry is what every process needs from the naming service.
type Registry interface {
	Register(ctx context.Context, name, addr string) error
	Find(ctx context.Context, name string) (string, error)
	Unbind(ctx context.Context, name string) error
}

// Well-known service names.
const (
	AuditName   = "audit"
	MuseumName  = "museum"
	StagingName = "staging"
	DropoffName = "dropoff"
)

func PartyName(id int) string { return fmt.Sprintf("party/%d", id) }

// Endpoint is the rpc handle a service listening on host:port registers.
func Endpoint(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/v1/rpc"
}

// Table is the in-memory registry kept by the registry process.
type Table struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewTable() *Table {
	return &Table{names: map[string]string{}}
}

// Register binds name to addr. Re-registering the same pair is a no-op;
// binding a taken name to a different addr fails with ErrAlreadyBound.
func (t *Table) Register(ctx context.Context, name, addr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || addr == "" {
		return fault.Configf("register", "empty name or addr")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.names[name]; ok && cur != addr {
		return fmt.Errorf("%w: %s -> %s", fault.ErrAlreadyBound, name, cur)
	}
	t.names[name] = addr
	return nil
}

func (t *Table) Find(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.names[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", fault.ErrNotBound, name)
	}
	return addr, nil
}

func (t *Table) Unbind(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.names[name]; !ok {
		return fmt.Errorf("%w: %s", fault.ErrNotBound, name)
	}
	delete(t.names, name)
	return nil
}

func (t *Table) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.names))
	for n := range t.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Resolve keeps asking reg for name until it is bound or timeout passes.
// Peers start in any order, so a missing name is retried, as is a
// transient connectivity failure. On expiry the last failure is returned
// as a *fault.ConnectivityError.
func Resolve(ctx context.Context, reg Registry, name string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		addr, err := reg.Find(ctx, name)
		if err == nil {
			return addr, nil
		}
		if !errors.Is(err, fault.ErrNotBound) && !fault.IsConnectivity(err) {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", fault.Unreachable(name, err)
		}
		t := time.NewTimer(100 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}
