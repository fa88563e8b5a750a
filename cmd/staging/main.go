package main

import (
	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/heist/staging"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/transport/rpc"
)

func main() {
	args, cfg, logger := bootstrap.Setup("staging", 22303)
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	peers, err := bootstrap.DialPeers(ctx, *args, lookup.StagingName, cfg.ConnectTimeout(), lookup.AuditName)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer peers[0].Close()

	barrier := staging.New(cfg.PartySize, remote.Audit{C: peers[0]}, logger)
	srv := rpc.NewServer(lookup.StagingName, logger)
	remote.ServeStaging(srv, barrier)
	svc := bootstrap.Service{
		RPC:   srv,
		Names: []string{lookup.StagingName},
		Done:  barrier.Done(),
		Gauges: []bootstrap.Gauge{{
			Name:  "staging_rooms_allocated",
			Help:  "Excursions that were handed a room.",
			Value: func() int64 { return int64(barrier.RoomsAllocated()) },
		}},
	}
	if err := bootstrap.Run(ctx, *args, svc, cfg.ConnectTimeout(), logger); err != nil {
		logger.Fatalf("staging: %v", err)
	}
}
