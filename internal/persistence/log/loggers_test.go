package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"museumheist.ai/internal/heist/audit"
)

func TestEventLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	want := []audit.Event{
		{Seq: 1, Kind: audit.KindCohortRoom, Cohort: 1, Room: 2, Value: 17},
		{Seq: 2, Kind: audit.KindItemTaken, Thief: 4, Cohort: 1, Member: 1, Room: 2, Value: 9},
		{Seq: 3, Kind: audit.KindReport, Value: 1},
	}
	for _, ev := range want {
		if err := l.WriteEvent(ev); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := EventFiles(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("EventFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	var got []audit.Event
	if err := ReadEvents(files[0], func(ev audit.Event) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d events want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Seq != want[i].Seq || got[i].Kind != want[i].Kind || got[i].Value != want[i].Value {
			t.Fatalf("event %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "events")
	at := time.Date(2024, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }
	if err := w.Write(audit.Event{Seq: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(audit.Event{Seq: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	files, err := EventFiles(dir)
	if err != nil {
		t.Fatalf("EventFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}
	if !strings.HasSuffix(files[0], "events-2024-03-01-10.jsonl.zst") || !strings.HasSuffix(files[1], "events-2024-03-01-11.jsonl.zst") {
		t.Fatalf("files=%v", files)
	}
}

func TestTextLog_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "log.txt")
	l, err := OpenTextLog(path)
	if err != nil {
		t.Fatalf("OpenTextLog: %v", err)
	}
	_ = l.WriteLine("first")
	_ = l.Close()

	l, err = OpenTextLog(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = l.WriteLine("second")
	_ = l.Close()
	if err := l.WriteLine("late"); err == nil {
		t.Fatalf("write after close succeeded")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "first\nsecond\n" {
		t.Fatalf("log=%q", b)
	}
}
