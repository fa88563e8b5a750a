package main

import (
	"context"

	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/museum"
	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/heist/sim"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/transport/rpc"
)

func main() {
	args, cfg, logger := bootstrap.Setup("museum", 22302)
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	peers, err := bootstrap.DialPeers(ctx, *args, lookup.MuseumName, cfg.ConnectTimeout(), lookup.AuditName)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer peers[0].Close()

	rooms, _ := sim.Draw(cfg)
	site := museum.New(rooms, remote.Audit{C: peers[0]}, logger)
	for _, r := range rooms {
		logger.Printf("room %d: distance %d, %d items", r.ID, r.Distance, r.Items)
	}

	srv := rpc.NewServer(lookup.MuseumName, logger)
	remote.ServeMuseum(srv, site)
	svc := bootstrap.Service{
		RPC:   srv,
		Names: []string{lookup.MuseumName},
		Done:  site.Done(),
		Gauges: []bootstrap.Gauge{{
			Name: "museum_items_left",
			Help: "Items still on the walls.",
			Value: func() int64 {
				rs, _ := site.Rooms(context.Background())
				var n int64
				for _, r := range rs {
					n += int64(r.Items)
				}
				return n
			},
		}},
	}
	if err := bootstrap.Run(ctx, *args, svc, cfg.ConnectTimeout(), logger); err != nil {
		logger.Fatalf("museum: %v", err)
	}
}
