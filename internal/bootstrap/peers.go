package bootstrap

import (
	"context"
	"time"

	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/transport/rpc"
)

// DialPeers resolves every name through the registry and dials it. The
// clients come back in the order of names.
func DialPeers(ctx context.Context, args Args, clientName string, timeout time.Duration, names ...string) ([]*rpc.Client, error) {
	reg, err := DialRegistry(ctx, args, clientName, timeout)
	if err != nil {
		return nil, err
	}
	defer reg.Close()

	out := make([]*rpc.Client, 0, len(names))
	for _, name := range names {
		c, err := remote.Connect(ctx, reg, name, timeout, clientName)
		if err != nil {
			for _, open := range out {
				_ = open.Close()
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
