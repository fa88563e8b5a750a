package audit

import "museumheist.ai/internal/sim/tuning"

// Status is the whole picture the status line is rendered from.
type Status struct {
	Master  string
	Thieves []ThiefStatus
	Cohorts []CohortStatus
	Rooms   []RoomStatus
	Total   int
	Done    bool
}

type ThiefStatus struct {
	State   string
	Cohort  int
	Member  int
	Agility int
	// InParty is true between leaving the staging area and reaching the
	// drop-off point.
	InParty bool
}

type CohortStatus struct {
	Room    int
	Members []MemberStatus
}

type MemberStatus struct {
	Thief    int
	Pos      int
	Carrying bool
}

type RoomStatus struct {
	Distance int
	Items    int
}

func NewStatus(cfg tuning.Tuning) Status {
	st := Status{
		Master:  MasterPlanning,
		Thieves: make([]ThiefStatus, cfg.Thieves()),
		Cohorts: make([]CohortStatus, cfg.Parties),
		Rooms:   make([]RoomStatus, cfg.Rooms),
	}
	for id := range st.Thieves {
		c, m := cfg.Membership(id)
		st.Thieves[id] = ThiefStatus{State: ThiefAtStaging, Cohort: c, Member: m}
	}
	for c := range st.Cohorts {
		st.Cohorts[c].Room = -1
		st.Cohorts[c].Members = make([]MemberStatus, cfg.PartySize)
		for m := range st.Cohorts[c].Members {
			st.Cohorts[c].Members[m].Thief = c*cfg.PartySize + m
		}
	}
	return st
}

// Apply folds ev into the status. Events that point outside the
// configured population are ignored and reported as false.
func (st *Status) Apply(ev Event) bool {
	switch ev.Kind {
	case KindMasterState:
		st.Master = ev.State
	case KindThiefState:
		if !st.hasThief(ev.Thief) {
			return false
		}
		t := &st.Thieves[ev.Thief]
		t.State = ev.State
		t.InParty = ev.State == ThiefCrawlingIn || ev.State == ThiefAtTarget || ev.State == ThiefCrawlingOut
	case KindThiefCreated:
		if !st.hasThief(ev.Thief) || !st.hasMember(ev.Cohort, ev.Member) {
			return false
		}
		t := &st.Thieves[ev.Thief]
		t.Cohort, t.Member, t.Agility = ev.Cohort, ev.Member, ev.Value
		st.Cohorts[ev.Cohort].Members[ev.Member].Thief = ev.Thief
	case KindRoomsSetup:
		for _, r := range ev.Rooms {
			if r.ID < 0 || r.ID >= len(st.Rooms) {
				return false
			}
			st.Rooms[r.ID] = RoomStatus{Distance: r.Distance, Items: r.Items}
		}
	case KindCohortRoom:
		if ev.Cohort < 0 || ev.Cohort >= len(st.Cohorts) {
			return false
		}
		st.Cohorts[ev.Cohort].Room = ev.Room
	case KindPosition:
		if !st.hasMember(ev.Cohort, ev.Member) {
			return false
		}
		m := &st.Cohorts[ev.Cohort].Members[ev.Member]
		m.Pos, m.Thief = ev.Value, ev.Thief
	case KindItemTaken:
		if !st.hasMember(ev.Cohort, ev.Member) || ev.Room < 0 || ev.Room >= len(st.Rooms) {
			return false
		}
		st.Rooms[ev.Room].Items = ev.Value
		st.Cohorts[ev.Cohort].Members[ev.Member].Carrying = true
	case KindHandoff:
		if !st.hasMember(ev.Cohort, ev.Member) {
			return false
		}
		st.Cohorts[ev.Cohort].Members[ev.Member].Carrying = false
		st.Total += ev.Value
	case KindReport:
		st.Total = ev.Value
		st.Done = true
	default:
		return false
	}
	return true
}

func (st *Status) hasThief(id int) bool { return id >= 0 && id < len(st.Thieves) }

func (st *Status) hasMember(cohort, member int) bool {
	return cohort >= 0 && cohort < len(st.Cohorts) && member >= 0 && member < len(st.Cohorts[cohort].Members)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (st Status) Clone() Status {
	out := st
	out.Thieves = append([]ThiefStatus(nil), st.Thieves...)
	out.Rooms = append([]RoomStatus(nil), st.Rooms...)
	out.Cohorts = make([]CohortStatus, len(st.Cohorts))
	for i, c := range st.Cohorts {
		out.Cohorts[i] = CohortStatus{Room: c.Room, Members: append([]MemberStatus(nil), c.Members...)}
	}
	return out
}
