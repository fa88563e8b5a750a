package main

import (
	"flag"
	"net"
	"net/http"
	"time"

	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/journal"
	"museumheist.ai/internal/heist/sim"
	"museumheist.ai/internal/transport/observer"
)

func main() {
	var (
		runID     = flag.String("run_id", "", "run id stamped on every event (default: random)")
		disableDB = flag.Bool("disable_db", false, "disable the SQLite event index")
		archiveOn = flag.Bool("archive", true, "archive the report of a clean run under <data>/archives")
		observe   = flag.String("observe", "", "serve the observer stream on this address while the run lasts (e.g. 127.0.0.1:22309)")
	)
	args, cfg, logger := bootstrap.Setup("heist", 0)

	id := *runID
	if id == "" {
		id = sim.NewRunID()
	}
	j, err := journal.Open(cfg, journal.Options{DataDir: args.Data, RunID: id, DisableDB: *disableDB, Archive: *archiveOn, Logger: logger})
	if err != nil {
		logger.Fatalf("open journal: %v", err)
	}
	h := sim.New(cfg, id, j.Board, logger)

	if *observe != "" {
		obs := observer.NewServer(j.Board, logger)
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/observe", obs.WSHandler())
		mux.HandleFunc("/v1/observe/bootstrap", obs.BootstrapHandler())
		ln, err := net.Listen("tcp", *observe)
		if err != nil {
			logger.Fatalf("observe: %v", err)
		}
		hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() { _ = hs.Serve(ln) }()
		defer hs.Close()
		logger.Printf("observer on http://%s/v1/observe", ln.Addr())
	}

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()
	logger.Printf("run %s: %d parties of %d, %d rooms, seed %d", h.RunID, cfg.Parties, cfg.PartySize, cfg.Rooms, cfg.Seed)
	res, runErr := h.Run(ctx)
	if err := j.Close(); err != nil {
		logger.Printf("close journal: %v", err)
	}
	if runErr != nil {
		logger.Fatalf("heist: %v", runErr)
	}
	logger.Printf("done: %d items, %d dispatches, %d violations", res.Total, res.Master.Dispatched, j.Board.Violations())
}
