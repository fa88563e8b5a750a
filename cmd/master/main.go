package main

import (
	"context"
	"time"

	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/master"
	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/lookup"
)

func main() {
	args, cfg, logger := bootstrap.Setup("master", 0)
	ctx, cancel := bootstrap.SignalContext()
	defer cancel()

	peers, err := bootstrap.DialPeers(ctx, *args, "master", cfg.ConnectTimeout(),
		lookup.DropoffName, lookup.StagingName, lookup.AuditName)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer func() {
		for _, c := range peers {
			_ = c.Close()
		}
	}()
	drop := remote.Dropoff{C: peers[0]}
	barrier := remote.Staging{C: peers[1]}
	sink := remote.Audit{C: peers[2]}

	boss := master.New(drop, barrier, logger)
	total, runErr := boss.Run(ctx)
	if runErr != nil {
		logger.Printf("master: %v", runErr)
	} else {
		st := boss.Stats()
		logger.Printf("tonight's effort produced %d priceless paintings (%d dispatches)", total, st.Dispatched)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := barrier.Shutdown(sctx); err != nil {
		logger.Printf("shutdown staging: %v", err)
	}
	if err := drop.Shutdown(sctx); err != nil {
		logger.Printf("shutdown dropoff: %v", err)
	}
	if err := sink.Shutdown(sctx); err != nil {
		logger.Printf("shutdown audit: %v", err)
	}
	if runErr != nil {
		logger.Fatalf("heist failed")
	}
}
