package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"museumheist.ai/internal/protocol"
	"museumheist.ai/internal/sim/tuning"
)

type capture struct {
	mu     sync.Mutex
	lines  []string
	events []Event
}

func (c *capture) WriteLine(l string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, l)
	return nil
}

func (c *capture) WriteEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func smallConfig() tuning.Tuning {
	cfg := tuning.Defaults()
	cfg.Parties, cfg.PartySize, cfg.Rooms, cfg.MaxSeparation = 1, 2, 1, 2
	return cfg
}

// A tiny run: one cohort of two, one room with one item.
func script() []Event {
	return []Event{
		{Kind: KindRoomsSetup, Rooms: []protocol.RoomInfo{{ID: 0, Distance: 3, Items: 1}}},
		{Kind: KindThiefCreated, Thief: 0, Cohort: 0, Member: 0, Value: 2},
		{Kind: KindThiefCreated, Thief: 1, Cohort: 0, Member: 1, Value: 3},
		{Kind: KindMasterState, State: MasterDeciding},
		{Kind: KindCohortRoom, Cohort: 0, Room: 0, Value: 3},
		{Kind: KindThiefState, Thief: 0, State: ThiefCrawlingIn},
		{Kind: KindPosition, Thief: 1, Cohort: 0, Member: 1, Value: 2},
		{Kind: KindPosition, Thief: 0, Cohort: 0, Member: 0, Value: 1},
		{Kind: KindPosition, Thief: 1, Cohort: 0, Member: 1, Value: 3},
		{Kind: KindPosition, Thief: 0, Cohort: 0, Member: 0, Value: 3},
		{Kind: KindItemTaken, Thief: 0, Cohort: 0, Member: 0, Room: 0, Value: 0},
		{Kind: KindPosition, Thief: 0, Cohort: 0, Member: 0, Value: 1},
		{Kind: KindPosition, Thief: 1, Cohort: 0, Member: 1, Value: 0},
		{Kind: KindPosition, Thief: 0, Cohort: 0, Member: 0, Value: 0},
		{Kind: KindHandoff, Thief: 0, Cohort: 0, Member: 0, Room: 0, Value: 1},
		{Kind: KindHandoff, Thief: 1, Cohort: 0, Member: 1, Room: 0, Value: 0},
		{Kind: KindMasterState, State: MasterReporting},
		{Kind: KindReport, Value: 1},
	}
}

func TestBoard_RecordsAndRenders(t *testing.T) {
	out := &capture{}
	var reported Status
	calls := 0
	b := NewBoard(smallConfig(), Options{
		RunID:  "run-1",
		Lines:  out,
		Events: []EventWriter{out},
		OnReport: func(st Status, ev Event) {
			calls++
			reported = st
		},
	})
	evs := script()
	for _, ev := range evs {
		if err := b.Record(context.Background(), ev); err != nil {
			t.Fatalf("Record %s: %v", ev.Kind, err)
		}
	}

	if b.Violations() != 0 {
		t.Fatalf("violations=%d", b.Violations())
	}
	if b.Seq() != uint64(len(evs)) {
		t.Fatalf("seq=%d want %d", b.Seq(), len(evs))
	}
	for i, ev := range out.events {
		if ev.Seq != uint64(i+1) || ev.RunID != "run-1" || ev.At == "" {
			t.Fatalf("event %d not stamped: %+v", i, ev)
		}
	}

	header := b.HeaderLines()
	if len(out.lines) != len(header)+len(evs)+1 {
		t.Fatalf("lines=%d want %d", len(out.lines), len(header)+len(evs)+1)
	}
	for i := range header {
		if out.lines[i] != header[i] {
			t.Fatalf("header line %d = %q", i, out.lines[i])
		}
	}
	if last := out.lines[len(out.lines)-1]; last != "My friends, tonight's effort produced 1 priceless paintings!" {
		t.Fatalf("final line %q", last)
	}
	if !strings.HasPrefix(out.lines[len(header)], "PLAN") {
		t.Fatalf("first status line %q", out.lines[len(header)])
	}

	if calls != 1 || !reported.Done || reported.Total != 1 || reported.Master != MasterReporting {
		t.Fatalf("OnReport calls=%d status=%+v", calls, reported)
	}
	st := b.Snapshot()
	if st.Thieves[1].Agility != 3 || st.Rooms[0].Items != 0 || st.Cohorts[0].Room != 0 {
		t.Fatalf("status %+v", st)
	}
}

func TestBoard_DropsOutOfRangeEvents(t *testing.T) {
	var buf bytes.Buffer
	b := NewBoard(smallConfig(), Options{Logger: log.New(&buf, "", 0)})
	_ = b.Record(context.Background(), Event{Kind: KindThiefState, Thief: 9, State: ThiefAtTarget})
	if !strings.Contains(buf.String(), "dropped out-of-range THIEF_STATE") {
		t.Fatalf("log %q", buf.String())
	}
}

func TestBoard_Subscribe(t *testing.T) {
	b := NewBoard(smallConfig(), Options{})
	id, ch := b.Subscribe(1)
	_ = b.Record(context.Background(), Event{Kind: KindMasterState, State: MasterDeciding})
	if line := <-ch; line == "" {
		t.Fatalf("empty line")
	}
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("lines beyond the buffer should have been dropped")
	}
}

func TestVerifier(t *testing.T) {
	ctx := context.Background()

	v := NewVerifier(2, 2)
	for _, ev := range script() {
		if err := v.Record(ctx, ev); err != nil {
			t.Fatalf("clean run flagged: %v", err)
		}
	}

	cases := []struct {
		name string
		evs  []Event
	}{
		{"move before room", []Event{
			{Kind: KindPosition, Cohort: 0, Member: 0, Value: 1},
		}},
		{"gap too wide", []Event{
			{Kind: KindCohortRoom, Cohort: 0, Value: 9},
			{Kind: KindPosition, Cohort: 0, Member: 0, Value: 3},
		}},
		{"overlap mid-crawl", []Event{
			{Kind: KindCohortRoom, Cohort: 0, Value: 9},
			{Kind: KindPosition, Cohort: 0, Member: 0, Value: 2},
			{Kind: KindPosition, Cohort: 0, Member: 1, Value: 2},
		}},
		{"room grew", []Event{
			{Kind: KindRoomsSetup, Rooms: []protocol.RoomInfo{{ID: 0, Distance: 3, Items: 4}}},
			{Kind: KindItemTaken, Room: 0, Value: 4},
		}},
		{"report mismatch", []Event{
			{Kind: KindHandoff, Value: 1},
			{Kind: KindReport, Value: 2},
		}},
	}
	for _, c := range cases {
		v := NewVerifier(2, 2)
		var last error
		for _, ev := range c.evs {
			last = v.Record(ctx, ev)
		}
		if last == nil || v.Violations() != 1 {
			t.Fatalf("%s: err=%v violations=%d", c.name, last, v.Violations())
		}
	}
}

type failing struct{}

func (failing) Record(context.Context, Event) error { return errors.New("disk full") }

func TestRecorder_LogsAndSwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(failing{}, log.New(&buf, "", 0))
	r.Master(MasterResting)
	if !strings.Contains(buf.String(), "audit MASTER_STATE: disk full") {
		t.Fatalf("log %q", buf.String())
	}
	NewRecorder(nil, nil).Thief(0, ThiefAtStaging)
}

func TestEventSchema(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "event.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out := &capture{}
	b := NewBoard(smallConfig(), Options{RunID: "run-2", Events: []EventWriter{out}})
	for _, ev := range script() {
		_ = b.Record(context.Background(), ev)
	}
	for _, ev := range out.events {
		raw, _ := json.Marshal(ev)
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"seq":1,"kind":"NAP"}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}
