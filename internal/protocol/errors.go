package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrUnknownMethod   = "E_UNKNOWN_METHOD"

	// Lookup.
	ErrNotBound     = "E_NOT_BOUND"
	ErrAlreadyBound = "E_ALREADY_BOUND"

	// Service layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrViolation   = "E_PROTOCOL_VIOLATION"
	ErrShutdown    = "E_SHUTDOWN"
	ErrUnreachable = "E_UNREACHABLE"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnknownMethod:   {},
	ErrNotBound:        {},
	ErrAlreadyBound:    {},
	ErrBadRequest:      {},
	ErrViolation:       {},
	ErrShutdown:        {},
	ErrUnreachable:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
