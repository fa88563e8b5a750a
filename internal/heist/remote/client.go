package remote

import (
	"context"
	"time"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/heist/dropoff"
	"museumheist.ai/internal/heist/museum"
	"museumheist.ai/internal/lookup"
	"museumheist.ai/internal/protocol"
	"museumheist.ai/internal/transport/rpc"
)

// Connect resolves name through reg and dials it.
func Connect(ctx context.Context, reg lookup.Registry, name string, timeout time.Duration, clientName string) (*rpc.Client, error) {
	addr, err := lookup.Resolve(ctx, reg, name, timeout)
	if err != nil {
		return nil, err
	}
	return rpc.Dial(ctx, addr, clientName)
}

func shutdown(ctx context.Context, c *rpc.Client, service string) error {
	return c.Call(ctx, protocol.ShutdownMethod(service), nil, nil)
}

func callBool(ctx context.Context, c *rpc.Client, method string, params any) (bool, error) {
	var out protocol.BoolResult
	err := c.Call(ctx, method, params, &out)
	return out.Value, err
}

func callInt(ctx context.Context, c *rpc.Client, method string, params any) (int, error) {
	var out protocol.IntResult
	err := c.Call(ctx, method, params, &out)
	return out.Value, err
}

// Audit is an audit.Sink backed by the audit process.
type Audit struct{ C *rpc.Client }

func (a Audit) Record(ctx context.Context, ev audit.Event) error {
	return a.C.Call(ctx, protocol.MethodRecord, ev, nil)
}

func (a Audit) Shutdown(ctx context.Context) error { return shutdown(ctx, a.C, AuditService) }

type Museum struct{ C *rpc.Client }

func (m Museum) RoomDistance(ctx context.Context, roomID int) (int, error) {
	return callInt(ctx, m.C, protocol.MethodRoomDistance, protocol.RoomParams{RoomID: roomID})
}

func (m Museum) TakeItem(ctx context.Context, thiefID, roomID, member, cohortID int) (bool, error) {
	return callBool(ctx, m.C, protocol.MethodTakeItem, protocol.TakeItemParams{
		ThiefID:  thiefID,
		RoomID:   roomID,
		Member:   member,
		CohortID: cohortID,
	})
}

func (m Museum) Rooms(ctx context.Context) ([]museum.Room, error) {
	var out protocol.RoomsResult
	if err := m.C.Call(ctx, protocol.MethodRooms, nil, &out); err != nil {
		return nil, err
	}
	rooms := make([]museum.Room, len(out.Rooms))
	for i, r := range out.Rooms {
		rooms[i] = museum.Room{ID: r.ID, Distance: r.Distance, Items: r.Items}
	}
	return rooms, nil
}

func (m Museum) Shutdown(ctx context.Context) error { return shutdown(ctx, m.C, MuseumService) }

type Party struct{ C *rpc.Client }

func (p Party) StepInward(ctx context.Context, agility, member, thiefID int) (bool, error) {
	return callBool(ctx, p.C, protocol.MethodStepInward, protocol.StepInwardParams{Agility: agility, Member: member, ThiefID: thiefID})
}

func (p Party) ReverseDirection(ctx context.Context, thiefID int) error {
	return p.C.Call(ctx, protocol.MethodReverseDirection, protocol.ThiefParams{ThiefID: thiefID}, nil)
}

func (p Party) StepOutward(ctx context.Context, agility, member int) (bool, error) {
	return callBool(ctx, p.C, protocol.MethodStepOutward, protocol.StepOutwardParams{Agility: agility, Member: member})
}

func (p Party) Size(ctx context.Context) (int, error) {
	return callInt(ctx, p.C, protocol.MethodSize, nil)
}

func (p Party) CohortID(ctx context.Context) (int, error) {
	return callInt(ctx, p.C, protocol.MethodCohortID, nil)
}

func (p Party) AssignedRoom(ctx context.Context) (int, error) {
	return callInt(ctx, p.C, protocol.MethodAssignedRoom, nil)
}

func (p Party) SetAssignedRoom(ctx context.Context, roomID, distance int) error {
	return p.C.Call(ctx, protocol.MethodSetAssignedRoom, protocol.AssignRoomParams{RoomID: roomID, Distance: distance}, nil)
}

func (p Party) MarkAtControlPoint(ctx context.Context, thiefID int) error {
	return p.C.Call(ctx, protocol.MethodMarkAtControlPoint, protocol.ThiefParams{ThiefID: thiefID}, nil)
}

func (p Party) Shutdown(ctx context.Context) error { return shutdown(ctx, p.C, PartyService) }

type Staging struct{ C *rpc.Client }

func (s Staging) PrepareExcursion(ctx context.Context, needsRoom bool) (int, error) {
	return callInt(ctx, s.C, protocol.MethodPrepareExcursion, protocol.PrepareExcursionParams{NeedsRoom: needsRoom})
}

func (s Staging) DispatchCohort(ctx context.Context) error {
	return s.C.Call(ctx, protocol.MethodDispatchCohort, nil, nil)
}

func (s Staging) Shutdown(ctx context.Context) error { return shutdown(ctx, s.C, StagingService) }

type Dropoff struct{ C *rpc.Client }

func (d Dropoff) AmINeeded(ctx context.Context, thiefID, cohortID, lastRoomID int) (dropoff.Admission, error) {
	var out protocol.AdmissionResult
	err := d.C.Call(ctx, protocol.MethodAmINeeded, protocol.AdmissionParams{
		ThiefID:    thiefID,
		CohortID:   cohortID,
		LastRoomID: lastRoomID,
	}, &out)
	return dropoff.Admission{Done: out.Done, NeedsNewRoom: out.NeedsNewRoom}, err
}

func (d Dropoff) PrepareAssaultParty(ctx context.Context) (bool, error) {
	return callBool(ctx, d.C, protocol.MethodPrepareAssaultParty, nil)
}

func (d Dropoff) HandoffItem(ctx context.Context, h dropoff.Handoff) error {
	return d.C.Call(ctx, protocol.MethodHandoffItem, protocol.HandoffParams{
		ThiefID:  h.Thief,
		RoomID:   h.Room,
		Items:    h.Items,
		Member:   h.Member,
		CohortID: h.Cohort,
	}, nil)
}

func (d Dropoff) CollectItem(ctx context.Context) error {
	return d.C.Call(ctx, protocol.MethodCollectItem, nil, nil)
}

func (d Dropoff) RestUntilArrival(ctx context.Context) error {
	return d.C.Call(ctx, protocol.MethodRestUntilArrival, nil, nil)
}

func (d Dropoff) IsDispatcherResting(ctx context.Context) (bool, error) {
	return callBool(ctx, d.C, protocol.MethodIsDispatcherResting, nil)
}

func (d Dropoff) IsHeistOver(ctx context.Context) (bool, error) {
	return callBool(ctx, d.C, protocol.MethodIsHeistOver, nil)
}

func (d Dropoff) WaitForInitialPopulation(ctx context.Context) error {
	return d.C.Call(ctx, protocol.MethodWaitForInitialPopulation, nil, nil)
}

func (d Dropoff) StartOperations(ctx context.Context) error {
	return d.C.Call(ctx, protocol.MethodStartOperations, nil, nil)
}

func (d Dropoff) FinalizeAndReport(ctx context.Context) (int, error) {
	return callInt(ctx, d.C, protocol.MethodFinalizeAndReport, nil)
}

func (d Dropoff) Shutdown(ctx context.Context) error { return shutdown(ctx, d.C, DropoffService) }
