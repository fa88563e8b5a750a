package observer

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/observerproto"
)

// Feed is the part of the audit board the observer reads.
type Feed interface {
	RunID() string
	Seq() uint64
	Snapshot() audit.Status
	HeaderLines() []string
	Subscribe(buf int) (int, <-chan string)
	Unsubscribe(id int)
}

type Server struct {
	feed Feed
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(feed Feed, logger *log.Logger) *Server {
	return &Server{
		feed: feed,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		st := s.feed.Snapshot()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           s.feed.RunID(),
			Seq:             s.feed.Seq(),
			Master:          st.Master,
			Total:           st.Total,
			Done:            st.Done,
			Thieves:         make([]observerproto.ThiefState, len(st.Thieves)),
			Rooms:           make([]observerproto.RoomState, len(st.Rooms)),
			Header:          s.feed.HeaderLines(),
		}
		for i, th := range st.Thieves {
			resp.Thieves[i] = observerproto.ThiefState{ID: i, State: th.State, Cohort: th.Cohort, Member: th.Member, Agility: th.Agility}
		}
		for i, rm := range st.Rooms {
			resp.Rooms[i] = observerproto.RoomState{ID: i, Distance: rm.Distance, Items: rm.Items}
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// WSHandler streams every status line rendered after the subscription.
// Slow observers lose lines; they never hold up the board.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		id, lines := s.feed.Subscribe(256)
		defer s.feed.Unsubscribe(id)

		send := func(line string) error {
			b, _ := json.Marshal(observerproto.LineMsg{
				Type:            observerproto.TypeLine,
				ProtocolVersion: observerproto.Version,
				Line:            line,
			})
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			return conn.WriteMessage(websocket.TextMessage, b)
		}
		if sub.WithHeader {
			for _, l := range s.feed.HeaderLines() {
				if err := send(l); err != nil {
					return
				}
			}
		}

		// Reader goroutine: only notices the client going away.
		_ = conn.SetReadDeadline(time.Time{})
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case line, ok := <-lines:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
					return
				}
				if err := send(line); err != nil {
					if s.log != nil {
						s.log.Printf("observer write: %v", err)
					}
					return
				}
			}
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
