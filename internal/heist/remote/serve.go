// Package remote puts the heist services on the rpc transport and gives
// the actors client stubs with the same methods as the in-process
// services.
package remote

import (
	"context"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/heist/dropoff"
	"museumheist.ai/internal/heist/museum"
	"museumheist.ai/internal/heist/party"
	"museumheist.ai/internal/heist/staging"
	"museumheist.ai/internal/protocol"
	"museumheist.ai/internal/transport/rpc"
)

// Service names used for <service>.shutdown.
const (
	AuditService   = "audit"
	MuseumService  = "museum"
	PartyService   = "party"
	StagingService = "staging"
	DropoffService = "dropoff"
)

type empty = protocol.Empty

func bindShutdown(s *rpc.Server, service string, shutdown func()) {
	rpc.Bind(s, protocol.ShutdownMethod(service), func(context.Context, empty) (empty, error) {
		shutdown()
		return empty{}, nil
	})
}

// ServeAudit exposes sink. shutdown runs on audit.shutdown.
func ServeAudit(s *rpc.Server, sink audit.Sink, shutdown func()) {
	rpc.Bind(s, protocol.MethodRecord, func(ctx context.Context, ev audit.Event) (empty, error) {
		return empty{}, sink.Record(ctx, ev)
	})
	bindShutdown(s, AuditService, shutdown)
}

func ServeMuseum(s *rpc.Server, m *museum.Site) {
	rpc.Bind(s, protocol.MethodRoomDistance, func(ctx context.Context, p protocol.RoomParams) (protocol.IntResult, error) {
		d, err := m.RoomDistance(ctx, p.RoomID)
		return protocol.IntResult{Value: d}, err
	})
	rpc.Bind(s, protocol.MethodTakeItem, func(ctx context.Context, p protocol.TakeItemParams) (protocol.BoolResult, error) {
		ok, err := m.TakeItem(ctx, p.ThiefID, p.RoomID, p.Member, p.CohortID)
		return protocol.BoolResult{Value: ok}, err
	})
	rpc.Bind(s, protocol.MethodRooms, func(ctx context.Context, _ empty) (protocol.RoomsResult, error) {
		rooms, err := m.Rooms(ctx)
		return protocol.RoomsResult{Rooms: museum.Infos(rooms)}, err
	})
	bindShutdown(s, MuseumService, m.Shutdown)
}

func ServeParty(s *rpc.Server, c *party.Coordinator) {
	rpc.Bind(s, protocol.MethodStepInward, func(ctx context.Context, p protocol.StepInwardParams) (protocol.BoolResult, error) {
		more, err := c.StepInward(ctx, p.Agility, p.Member, p.ThiefID)
		return protocol.BoolResult{Value: more}, err
	})
	rpc.Bind(s, protocol.MethodReverseDirection, func(ctx context.Context, p protocol.ThiefParams) (empty, error) {
		return empty{}, c.ReverseDirection(ctx, p.ThiefID)
	})
	rpc.Bind(s, protocol.MethodStepOutward, func(ctx context.Context, p protocol.StepOutwardParams) (protocol.BoolResult, error) {
		more, err := c.StepOutward(ctx, p.Agility, p.Member)
		return protocol.BoolResult{Value: more}, err
	})
	rpc.Bind(s, protocol.MethodSize, func(ctx context.Context, _ empty) (protocol.IntResult, error) {
		n, err := c.Size(ctx)
		return protocol.IntResult{Value: n}, err
	})
	rpc.Bind(s, protocol.MethodCohortID, func(ctx context.Context, _ empty) (protocol.IntResult, error) {
		id, err := c.CohortID(ctx)
		return protocol.IntResult{Value: id}, err
	})
	rpc.Bind(s, protocol.MethodAssignedRoom, func(ctx context.Context, _ empty) (protocol.IntResult, error) {
		room, err := c.AssignedRoom(ctx)
		return protocol.IntResult{Value: room}, err
	})
	rpc.Bind(s, protocol.MethodSetAssignedRoom, func(ctx context.Context, p protocol.AssignRoomParams) (empty, error) {
		return empty{}, c.SetAssignedRoom(ctx, p.RoomID, p.Distance)
	})
	rpc.Bind(s, protocol.MethodMarkAtControlPoint, func(ctx context.Context, p protocol.ThiefParams) (empty, error) {
		return empty{}, c.MarkAtControlPoint(ctx, p.ThiefID)
	})
	bindShutdown(s, PartyService, c.Shutdown)
}

func ServeStaging(s *rpc.Server, b *staging.Barrier) {
	rpc.Bind(s, protocol.MethodPrepareExcursion, func(ctx context.Context, p protocol.PrepareExcursionParams) (protocol.IntResult, error) {
		room, err := b.PrepareExcursion(ctx, p.NeedsRoom)
		return protocol.IntResult{Value: room}, err
	})
	rpc.Bind(s, protocol.MethodDispatchCohort, func(ctx context.Context, _ empty) (empty, error) {
		return empty{}, b.DispatchCohort(ctx)
	})
	bindShutdown(s, StagingService, b.Shutdown)
}

func ServeDropoff(s *rpc.Server, r *dropoff.Rendezvous) {
	rpc.Bind(s, protocol.MethodAmINeeded, func(ctx context.Context, p protocol.AdmissionParams) (protocol.AdmissionResult, error) {
		adm, err := r.AmINeeded(ctx, p.ThiefID, p.CohortID, p.LastRoomID)
		return protocol.AdmissionResult{Done: adm.Done, NeedsNewRoom: adm.NeedsNewRoom}, err
	})
	rpc.Bind(s, protocol.MethodPrepareAssaultParty, func(ctx context.Context, _ empty) (protocol.BoolResult, error) {
		ok, err := r.PrepareAssaultParty(ctx)
		return protocol.BoolResult{Value: ok}, err
	})
	rpc.Bind(s, protocol.MethodHandoffItem, func(ctx context.Context, p protocol.HandoffParams) (empty, error) {
		return empty{}, r.HandoffItem(ctx, dropoff.Handoff{
			Thief:  p.ThiefID,
			Room:   p.RoomID,
			Items:  p.Items,
			Member: p.Member,
			Cohort: p.CohortID,
		})
	})
	rpc.Bind(s, protocol.MethodCollectItem, func(ctx context.Context, _ empty) (empty, error) {
		return empty{}, r.CollectItem(ctx)
	})
	rpc.Bind(s, protocol.MethodRestUntilArrival, func(ctx context.Context, _ empty) (empty, error) {
		return empty{}, r.RestUntilArrival(ctx)
	})
	rpc.Bind(s, protocol.MethodIsDispatcherResting, func(ctx context.Context, _ empty) (protocol.BoolResult, error) {
		ok, err := r.IsDispatcherResting(ctx)
		return protocol.BoolResult{Value: ok}, err
	})
	rpc.Bind(s, protocol.MethodIsHeistOver, func(ctx context.Context, _ empty) (protocol.BoolResult, error) {
		ok, err := r.IsHeistOver(ctx)
		return protocol.BoolResult{Value: ok}, err
	})
	rpc.Bind(s, protocol.MethodWaitForInitialPopulation, func(ctx context.Context, _ empty) (empty, error) {
		return empty{}, r.WaitForInitialPopulation(ctx)
	})
	rpc.Bind(s, protocol.MethodStartOperations, func(ctx context.Context, _ empty) (empty, error) {
		return empty{}, r.StartOperations(ctx)
	})
	rpc.Bind(s, protocol.MethodFinalizeAndReport, func(ctx context.Context, _ empty) (protocol.IntResult, error) {
		total, err := r.FinalizeAndReport(ctx)
		return protocol.IntResult{Value: total}, err
	})
	bindShutdown(s, DropoffService, r.Shutdown)
}
