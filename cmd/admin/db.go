package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"museumheist.ai/internal/heist/journal"
	"museumheist.ai/internal/persistence/indexdb"
)

// dbCmd queries the SQLite index: runs, events or report.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/heist.sqlite)")
	runID := fs.String("run", "", "run id (required for events and report)")
	kind := fs.String("kind", "", "event kind filter (events)")
	thief := fs.Int("thief", -1, "thief id filter (events)")
	limit := fs.Int("limit", 100, "result limit (events)")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = journal.IndexPath(*dataDir)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	if q != "runs" && strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}

	switch q {
	case "runs":
		runs, err := idx.Runs(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range runs {
			printJSON(struct {
				RunID     string `json:"run_id"`
				StartedAt string `json:"started_at"`
				Digest    string `json:"config_digest"`
			}{r.RunID, r.StartedAt, r.Digest})
		}

	case "events":
		eq := indexdb.EventQuery{RunID: *runID, Kind: strings.ToUpper(*kind), Limit: *limit}
		if *thief >= 0 {
			eq.Thief = thief
		}
		rows, err := idx.Events(ctx, eq)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "report":
		r, ok, err := idx.Report(ctx, *runID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no report for run", *runID)
			os.Exit(1)
		}
		printJSON(r)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want runs, events or report)")
		os.Exit(2)
	}
}
