package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent, event: audit.Event{RunID: "r", Seq: 1}}

	_ = s.WriteEvent(audit.Event{RunID: "r", Seq: 2})
	s.RecordReport(ReportRow{RunID: "r", Total: 3})
	s.RecordReport(ReportRow{})

	st := s.Stats()
	if st.DropEventTotal != 1 {
		t.Fatalf("DropEventTotal=%d want=1", st.DropEventTotal)
	}
	if st.DropReportTotal != 1 {
		t.Fatalf("DropReportTotal=%d want=1", st.DropReportTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_EventsAndReports(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.RecordRun(ctx, "run-1", tuning.Defaults()); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	evs := []audit.Event{
		{RunID: "run-1", Seq: 1, Kind: audit.KindCohortRoom, Cohort: 0, Room: 2, Value: 20},
		{RunID: "run-1", Seq: 2, Kind: audit.KindPosition, Thief: 1, Cohort: 0, Member: 1, Value: 3, State: "FRONT"},
		{RunID: "run-1", Seq: 3, Kind: audit.KindItemTaken, Thief: 1, Cohort: 0, Member: 1, Room: 2, Value: 7},
		{RunID: "run-1", Seq: 4, Kind: audit.KindReport, Value: 1},
		{Seq: 5, Kind: audit.KindReport, Value: 1},
	}
	for _, ev := range evs {
		_ = idx.WriteEvent(ev)
	}
	idx.RecordReport(ReportRow{RunID: "run-1", Total: 1, Events: 4, Path: "reports/run-1.report.zst"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.WriteEvent(evs[0]); err != nil {
		t.Fatalf("WriteEvent after close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	runs, err := idx.Runs(ctx)
	if err != nil || len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].Digest == "" {
		t.Fatalf("Runs = %+v, %v", runs, err)
	}

	all, err := idx.Events(ctx, EventQuery{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("indexed %d events want 4", len(all))
	}
	thief := 1
	mine, err := idx.Events(ctx, EventQuery{RunID: "run-1", Thief: &thief})
	if err != nil || len(mine) != 2 {
		t.Fatalf("thief events = %+v, %v", mine, err)
	}
	taken, err := idx.Events(ctx, EventQuery{RunID: "run-1", Kind: string(audit.KindItemTaken)})
	if err != nil || len(taken) != 1 || taken[0].Value != 7 || taken[0].Room != 2 {
		t.Fatalf("ITEM_TAKEN events = %+v, %v", taken, err)
	}

	rep, ok, err := idx.Report(ctx, "run-1")
	if err != nil || !ok || rep.Total != 1 || rep.Events != 4 {
		t.Fatalf("Report = %+v, %v, %v", rep, ok, err)
	}
	if _, ok, err := idx.Report(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing report: ok=%v err=%v", ok, err)
	}
}
