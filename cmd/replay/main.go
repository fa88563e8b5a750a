package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"museumheist.ai/internal/heist/audit"
	persistlog "museumheist.ai/internal/persistence/log"
	"museumheist.ai/internal/sim/tuning"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (default: <data>/events)")
		tuningPath = flag.String("tuning", "", "path to heist.yaml the run used (default: built-in defaults)")
		runID      = flag.String("run", "", "only replay events of this run")
		lines      = flag.Bool("lines", false, "print the status line after every event")
	)
	flag.Parse()

	cfg, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(2)
	}
	dir := *eventsDir
	if dir == "" {
		dir = filepath.Join(*dataDir, "events")
	}
	files, err := persistlog.EventFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", dir)
		os.Exit(1)
	}

	runs := map[string]*run{}
	var order []string
	for _, path := range files {
		err := persistlog.ReadEvents(path, func(ev audit.Event) error {
			if *runID != "" && ev.RunID != *runID {
				return nil
			}
			r, ok := runs[ev.RunID]
			if !ok {
				r = &run{verifier: audit.NewVerifier(cfg.MaxSeparation, cfg.PartySize), status: audit.NewStatus(cfg)}
				runs[ev.RunID] = r
				order = append(order, ev.RunID)
			}
			r.events++
			r.status.Apply(ev)
			if err := r.verifier.Record(context.Background(), ev); err != nil {
				fmt.Printf("%s: violation: %v\n", ev.RunID, err)
			}
			if *lines {
				fmt.Println(audit.Line(r.status, cfg.Log.ColumnGap, cfg.Log.BreakLines))
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	failed := false
	for _, id := range order {
		r := runs[id]
		fmt.Printf("run %s: events=%d done=%v total=%d violations=%d\n", id, r.events, r.status.Done, r.status.Total, r.verifier.Violations())
		if r.verifier.Violations() > 0 {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	fmt.Printf("replay ok: %d runs\n", len(order))
}

type run struct {
	verifier *audit.Verifier
	status   audit.Status
	events   int
}
