package main

import (
	"flag"

	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/party"
	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/transport/rpc"
)

const basePort = 22310

func main() {
	id := flag.Int("party", 0, "cohort id this coordinator serves")
	args, cfg, logger := bootstrap.Setup("party", basePort)
	if *id < 0 || *id >= cfg.Parties {
		logger.Fatalf("-party %d: configured parties are 0..%d", *id, cfg.Parties-1)
	}
	portSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "port" {
			portSet = true
		}
	})
	if !portSet {
		args.Port = basePort + *id
	}

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()
	name := lookup.PartyName(*id)
	peers, err := bootstrap.DialPeers(ctx, *args, name, cfg.ConnectTimeout(), lookup.AuditName)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer peers[0].Close()

	coord := party.New(*id, cfg.PartySize, cfg.MaxSeparation, remote.Audit{C: peers[0]}, logger)
	srv := rpc.NewServer(name, logger)
	remote.ServeParty(srv, coord)
	svc := bootstrap.Service{
		RPC:   srv,
		Names: []string{name},
		Done:  coord.Done(),
		Gauges: []bootstrap.Gauge{{
			Name:  "party_phase",
			Help:  "Crawl phase of the cohort.",
			Value: func() int64 { return int64(coord.Phase()) },
		}},
	}
	if err := bootstrap.Run(ctx, *args, svc, cfg.ConnectTimeout(), logger); err != nil {
		logger.Fatalf("party %d: %v", *id, err)
	}
}
