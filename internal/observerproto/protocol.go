package observerproto

// Version is the observer protocol version (separate from the rpc protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeLine      = "LINE"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// WithHeader asks for the table header before the first line.
	WithHeader bool `json:"with_header,omitempty"`
}

// HTTP response for GET /v1/observe/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Seq             uint64       `json:"seq"`
	Master          string       `json:"master"`
	Total           int          `json:"total"`
	Done            bool         `json:"done"`
	Thieves         []ThiefState `json:"thieves"`
	Rooms           []RoomState  `json:"rooms"`
	Header          []string     `json:"header"`
}

type ThiefState struct {
	ID      int    `json:"id"`
	State   string `json:"state"`
	Cohort  int    `json:"cohort"`
	Member  int    `json:"member"`
	Agility int    `json:"agility"`
}

type RoomState struct {
	ID       int `json:"id"`
	Distance int `json:"distance"`
	Items    int `json:"items"`
}

// Server -> Client. One rendered status line.
type LineMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Line            string `json:"line"`
}
