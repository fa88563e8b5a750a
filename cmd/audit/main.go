package main

import (
	"flag"
	"net/http"
	"sync"

	"museumheist.ai/internal/bootstrap"
	"museumheist.ai/internal/heist/journal"
	"museumheist.ai/internal/heist/remote"
	"museumheist.ai/internal/heist/sim"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/transport/observer"
	"museumheist.ai/internal/transport/rpc"
)

func main() {
	var (
		runID     = flag.String("run_id", "", "run id stamped on every event (default: random)")
		disableDB = flag.Bool("disable_db", false, "disable the SQLite event index")
		archiveOn = flag.Bool("archive", true, "archive the report of a clean run under <data>/archives")
	)
	args, cfg, logger := bootstrap.Setup("audit", 22301)

	id := *runID
	if id == "" {
		id = sim.NewRunID()
	}
	j, err := journal.Open(cfg, journal.Options{DataDir: args.Data, RunID: id, DisableDB: *disableDB, Archive: *archiveOn, Logger: logger})
	if err != nil {
		logger.Fatalf("open journal: %v", err)
	}
	defer j.Close()
	logger.Printf("run %s: status log %s", id, cfg.Log.Path)

	done := make(chan struct{})
	var once sync.Once
	srv := rpc.NewServer(lookup.AuditName, logger)
	remote.ServeAudit(srv, j.Board, func() { once.Do(func() { close(done) }) })

	obs := observer.NewServer(j.Board, logger)
	svc := bootstrap.Service{
		RPC:   srv,
		Names: []string{lookup.AuditName},
		Done:  done,
		Gauges: []bootstrap.Gauge{
			{Name: "audit_events", Help: "Events recorded this run.", Value: func() int64 { return int64(j.Board.Seq()) }},
			{Name: "audit_violations", Help: "Events that failed an invariant check.", Value: func() int64 { return int64(j.Board.Violations()) }},
			{Name: "index_queue_depth", Help: "Index writer backlog.", Value: func() int64 { return int64(j.Index().Stats().QueueDepth) }},
		},
		Routes: map[string]http.Handler{
			"/v1/observe":           obs.WSHandler(),
			"/v1/observe/bootstrap": obs.BootstrapHandler(),
		},
	}

	ctx, cancel := bootstrap.SignalContext()
	defer cancel()
	if err := bootstrap.Run(ctx, *args, svc, cfg.ConnectTimeout(), logger); err != nil {
		logger.Printf("audit: %v", err)
	}
}
