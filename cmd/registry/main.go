package main

import (
	"context"

	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/transport/rpc"
)

func main() {
	args, cfg, logger := bootstrap.Setup("registry", bootstrap.DefaultRegistryPort)
	// The registry serves on its own registry port.
	args.Port = args.RegistryPort

	table := lookup.NewTable()
	srv := rpc.NewServer("registry", logger)
	lookup.Serve(srv, table)

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()
	svc := bootstrap.Service{
		RPC: srv,
		Gauges: []bootstrap.Gauge{{
			Name: "registry_names",
			Help: "Names currently bound.",
			Value: func() int64 {
				names, _ := table.List(context.Background())
				return int64(len(names))
			},
		}},
	}
	if err := bootstrap.Run(ctx, *args, svc, cfg.ConnectTimeout(), logger); err != nil {
		logger.Fatalf("registry: %v", err)
	}
}
