package main

import (
	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/dropoff"
	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/transport/rpc"
)

func main() {
	args, cfg, logger := bootstrap.Setup("dropoff", 22304)
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	peers, err := bootstrap.DialPeers(ctx, *args, lookup.DropoffName, cfg.ConnectTimeout(), lookup.AuditName)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer peers[0].Close()

	drop := dropoff.New(cfg.Parties, cfg.PartySize, cfg.Rooms, remote.Audit{C: peers[0]}, logger)
	srv := rpc.NewServer(lookup.DropoffName, logger)
	remote.ServeDropoff(srv, drop)
	svc := bootstrap.Service{
		RPC:   srv,
		Names: []string{lookup.DropoffName},
		Done:  drop.Done(),
		Gauges: []bootstrap.Gauge{
			{Name: "dropoff_on_site", Help: "Thieves inside the drop-off rendezvous.", Value: func() int64 { return int64(drop.State().OnSite) }},
			{Name: "dropoff_rooms_left", Help: "Rooms not yet known to be empty.", Value: func() int64 { return int64(drop.State().RoomsLeft) }},
			{Name: "dropoff_total", Help: "Items collected so far.", Value: func() int64 { return int64(drop.State().Total) }},
		},
	}
	if err := bootstrap.Run(ctx, *args, svc, cfg.ConnectTimeout(), logger); err != nil {
		logger.Fatalf("dropoff: %v", err)
	}
}
