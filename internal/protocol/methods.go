package protocol

// Remote method names, grouped by the service that answers them.
const (
	MethodRegister = "lookup.register"
	MethodFind     = "lookup.find"
	MethodUnbind   = "lookup.unbind"
	MethodList     = "lookup.list"

	MethodRecord = "audit.record"

	MethodRoomDistance = "museum.room_distance"
	MethodTakeItem     = "museum.take_item"
	MethodRooms        = "museum.rooms"

	MethodStepInward         = "party.step_inward"
	MethodReverseDirection   = "party.reverse_direction"
	MethodStepOutward        = "party.step_outward"
	MethodSize               = "party.size"
	MethodAssignedRoom       = "party.assigned_room"
	MethodSetAssignedRoom    = "party.set_assigned_room"
	MethodCohortID           = "party.cohort_id"
	MethodMarkAtControlPoint = "party.mark_at_control_point"

	MethodPrepareExcursion = "staging.prepare_excursion"
	MethodDispatchCohort   = "staging.dispatch_cohort"

	MethodAmINeeded                = "dropoff.am_i_needed"
	MethodPrepareAssaultParty      = "dropoff.prepare_assault_party"
	MethodHandoffItem              = "dropoff.handoff_item"
	MethodCollectItem              = "dropoff.collect_item"
	MethodRestUntilArrival         = "dropoff.rest_until_arrival"
	MethodIsDispatcherResting      = "dropoff.is_dispatcher_resting"
	MethodIsHeistOver              = "dropoff.is_heist_over"
	MethodWaitForInitialPopulation = "dropoff.wait_for_initial_population"
	MethodStartOperations          = "dropoff.start_operations"
	MethodFinalizeAndReport        = "dropoff.finalize_and_report"
)

// ShutdownMethod names the out-of-band shutdown call of a service.
func ShutdownMethod(service string) string { return service + ".shutdown" }

type Empty struct{}

type BoolResult struct {
	Value bool `json:"value"`
}

type IntResult struct {
	Value int `json:"value"`
}

// Lookup.

type RegisterParams struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

type NameParams struct {
	Name string `json:"name"`
}

type FindResult struct {
	Addr string `json:"addr"`
}

type ListResult struct {
	Names []string `json:"names"`
}

// Museum.

type RoomParams struct {
	RoomID int `json:"room_id"`
}

type TakeItemParams struct {
	ThiefID  int `json:"thief_id"`
	RoomID   int `json:"room_id"`
	Member   int `json:"member"`
	CohortID int `json:"cohort_id"`
}

type RoomInfo struct {
	ID       int `json:"id"`
	Distance int `json:"distance"`
	Items    int `json:"items"`
}

type RoomsResult struct {
	Rooms []RoomInfo `json:"rooms"`
}

// Party.

type StepInwardParams struct {
	Agility int `json:"agility"`
	Member  int `json:"member"`
	ThiefID int `json:"thief_id"`
}

type StepOutwardParams struct {
	Agility int `json:"agility"`
	Member  int `json:"member"`
}

type ThiefParams struct {
	ThiefID int `json:"thief_id"`
}

type AssignRoomParams struct {
	RoomID   int `json:"room_id"`
	Distance int `json:"distance"`
}

// Staging.

type PrepareExcursionParams struct {
	NeedsRoom bool `json:"needs_room"`
}

// Drop-off.

type AdmissionParams struct {
	ThiefID    int `json:"thief_id"`
	CohortID   int `json:"cohort_id"`
	LastRoomID int `json:"last_room_id"`
}

type AdmissionResult struct {
	Done         bool `json:"done"`
	NeedsNewRoom bool `json:"needs_new_room"`
}

type HandoffParams struct {
	ThiefID  int `json:"thief_id"`
	RoomID   int `json:"room_id"`
	Items    int `json:"items"`
	Member   int `json:"member"`
	CohortID int `json:"cohort_id"`
}
