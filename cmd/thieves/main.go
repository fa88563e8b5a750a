package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/heist/sim"
	"museumheist.ai/internal/heist/thief"
	"museumheist.ai/internal/lookup"
)

func main() {
	args, cfg, logger := bootstrap.Setup("thieves", 0)
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	names := []string{lookup.AuditName, lookup.MuseumName, lookup.StagingName, lookup.DropoffName}
	for c := 0; c < cfg.Parties; c++ {
		names = append(names, lookup.PartyName(c))
	}
	peers, err := bootstrap.DialPeers(ctx, *args, "thieves", cfg.ConnectTimeout(), names...)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer func() {
		for _, c := range peers {
			_ = c.Close()
		}
	}()
	sink := remote.Audit{C: peers[0]}
	site := remote.Museum{C: peers[1]}
	barrier := remote.Staging{C: peers[2]}
	drop := remote.Dropoff{C: peers[3]}
	parties := make([]remote.Party, cfg.Parties)
	for c := range parties {
		parties[c] = remote.Party{C: peers[4+c]}
	}

	rec := audit.NewRecorder(sink, logger)
	_, agility := sim.Draw(cfg)
	g, gctx := errgroup.WithContext(ctx)
	for id, a := range agility {
		tc := sim.CreateThief(cfg, id, a, rec)
		t := thief.New(tc, parties[tc.Cohort], barrier, drop, site, logger)
		g.Go(func() error { return t.Run(gctx) })
	}
	runErr := g.Wait()
	if runErr != nil {
		logger.Printf("thieves: %v", runErr)
	} else {
		logger.Printf("all %d thieves are done", len(agility))
	}

	// Parties and the museum are ours to close once every thief is out.
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	for c, p := range parties {
		if err := p.Shutdown(sctx); err != nil {
			logger.Printf("shutdown party %d: %v", c, err)
		}
	}
	if err := site.Shutdown(sctx); err != nil {
		logger.Printf("shutdown museum: %v", err)
	}
	if runErr != nil {
		logger.Fatalf("heist failed")
	}
}
