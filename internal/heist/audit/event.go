// Package audit records every coordination event of a heist run. It has
// no say in coordination: services hand events to a Sink and move on.
package audit

import (
	"context"
	"log"

	"museumheist.ai/internal/protocol"
)

type Kind string

const (
	KindMasterState  Kind = "MASTER_STATE"
	KindThiefState   Kind = "THIEF_STATE"
	KindThiefCreated Kind = "THIEF_CREATED"
	KindRoomsSetup   Kind = "ROOMS_SETUP"
	KindCohortRoom   Kind = "COHORT_ROOM"
	KindPosition     Kind = "POSITION"
	KindItemTaken    Kind = "ITEM_TAKEN"
	KindHandoff      Kind = "HANDOFF"
	KindReport       Kind = "REPORT"
)

// Master states as they appear in the log.
const (
	MasterPlanning    = "PLANNING"
	MasterDeciding    = "DECIDING"
	MasterDispatching = "DISPATCHING"
	MasterResting     = "RESTING"
	MasterReporting   = "REPORTING"
)

// Thief states as they appear in the log.
const (
	ThiefAtStaging   = "AT_STAGING"
	ThiefCrawlingIn  = "CRAWLING_IN"
	ThiefAtTarget    = "AT_TARGET"
	ThiefCrawlingOut = "CRAWLING_OUT"
	ThiefAtDropoff   = "AT_DROPOFF"
)

// Event is one coordination fact. Which fields matter depends on Kind:
//
//	THIEF_CREATED  Thief, Cohort, Member, Value=agility
//	COHORT_ROOM    Cohort, Room, Value=distance
//	POSITION       Cohort, Member, Thief, Value=position
//	ITEM_TAKEN     Thief, Cohort, Member, Room, Value=items left in room
//	HANDOFF        Thief, Cohort, Member, Room, Value=items handed over
//	REPORT         Value=total items
//
// Seq, At and RunID are stamped by the Board.
type Event struct {
	RunID string `json:"run_id,omitempty"`
	Seq   uint64 `json:"seq"`
	At    string `json:"at,omitempty"`

	Kind   Kind                `json:"kind"`
	Thief  int                 `json:"thief"`
	Cohort int                 `json:"cohort"`
	Member int                 `json:"member"`
	Room   int                 `json:"room"`
	Value  int                 `json:"value"`
	State  string              `json:"state,omitempty"`
	Rooms  []protocol.RoomInfo `json:"rooms,omitempty"`
}

// Sink accepts events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }

// Recorder is what services hold: audit failures are logged and
// otherwise ignored.
type Recorder struct {
	sink Sink
	log  *log.Logger
}

func NewRecorder(sink Sink, logger *log.Logger) Recorder {
	if sink == nil {
		sink = Discard
	}
	return Recorder{sink: sink, log: logger}
}

func (r Recorder) Note(ev Event) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Record(context.Background(), ev); err != nil && r.log != nil {
		r.log.Printf("audit %s: %v", ev.Kind, err)
	}
}

func (r Recorder) Master(state string) {
	r.Note(Event{Kind: KindMasterState, State: state})
}

func (r Recorder) Thief(id int, state string) {
	r.Note(Event{Kind: KindThiefState, Thief: id, State: state})
}
