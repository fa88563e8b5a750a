package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/protocol"
)

// HandlerFunc answers one remote method. It may block for as long as the
// underlying service keeps the caller parked.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type Server struct {
	name string
	log  *log.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	methods  map[string]HandlerFunc
	sessions map[*session]struct{}
	closing  bool

	inflight  sync.WaitGroup
	nextID    atomic.Uint64
	calls     atomic.Uint64
	failures  atomic.Uint64
	active    atomic.Int64
	connected atomic.Int64
}

type Stats struct {
	Calls    uint64
	Failures uint64
	InFlight int64
	Sessions int64
}

func NewServer(name string, logger *log.Logger) *Server {
	return &Server{
		name:     name,
		log:      logger,
		methods:  map[string]HandlerFunc{},
		sessions: map[*session]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Name() string { return s.name }

func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = h
}

// Bind registers a typed handler. Params are decoded into P (a missing
// params object leaves P at its zero value) and the R result is encoded
// into the RESULT message.
func Bind[P, R any](s *Server, method string, fn func(context.Context, P) (R, error)) {
	s.Handle(method, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fault.Configf("params", "%s: %v", method, err)
			}
		}
		return fn(ctx, p)
	})
}

func (s *Server) Stats() Stats {
	return Stats{
		Calls:    s.calls.Load(),
		Failures: s.failures.Load(),
		InFlight: s.active.Load(),
		Sessions: s.connected.Load(),
	}
}

type session struct {
	id   string
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (ss *session) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ss.wmu.Lock()
	defer ss.wmu.Unlock()
	_ = ss.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ss.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ss := s.handshake(conn)
		if ss == nil {
			return
		}
		if !s.track(ss) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer s.untrack(ss)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Reader loop. Callers may stay parked for a long time, so there is
		// no read deadline once the session is established.
		_ = conn.SetReadDeadline(time.Time{})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCall {
				continue
			}
			var call protocol.CallMsg
			if err := json.Unmarshal(msg, &call); err != nil {
				continue
			}
			s.dispatch(ctx, ss, call)
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	ss := &session{
		id:   fmt.Sprintf("S%d", s.nextID.Add(1)),
		conn: conn,
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Service:         s.name,
		SessionID:       ss.id,
	}
	if err := ss.write(welcome); err != nil {
		return nil
	}
	if s.log != nil && hello.ClientName != "" {
		s.log.Printf("session %s: %s connected", ss.id, hello.ClientName)
	}
	return ss
}

func (s *Server) track(ss *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[ss] = struct{}{}
	s.connected.Add(1)
	return true
}

func (s *Server) untrack(ss *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[ss]; ok {
		delete(s.sessions, ss)
		s.connected.Add(-1)
	}
}

func (s *Server) dispatch(ctx context.Context, ss *session, call protocol.CallMsg) {
	s.mu.Lock()
	h, ok := s.methods[call.Method]
	s.mu.Unlock()

	s.inflight.Add(1)
	s.active.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.active.Add(-1)

		res := protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			ID:              call.ID,
		}
		switch {
		case call.ProtocolVersion != protocol.Version:
			res.Error = &protocol.ErrorInfo{Code: protocol.ErrProtoBadRequest, Message: "bad protocol_version"}
		case !ok:
			res.Error = &protocol.ErrorInfo{Code: protocol.ErrUnknownMethod, Message: call.Method}
		default:
			res.Result, res.Error = s.invoke(ctx, h, call)
		}
		s.calls.Add(1)
		if res.Error != nil {
			s.failures.Add(1)
		}
		if err := ss.write(res); err != nil && !errors.Is(err, websocket.ErrCloseSent) && s.log != nil {
			s.log.Printf("session %s: write %s result: %v", ss.id, call.Method, err)
		}
	}()
}

func (s *Server) invoke(ctx context.Context, h HandlerFunc, call protocol.CallMsg) (json.RawMessage, *protocol.ErrorInfo) {
	out, err := h(ctx, call.Params)
	if err != nil {
		return nil, &protocol.ErrorInfo{Code: fault.Code(err), Message: err.Error()}
	}
	if out == nil {
		return nil, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, &protocol.ErrorInfo{Code: protocol.ErrInternal, Message: err.Error()}
	}
	return b, nil
}

// Close stops accepting sessions, waits for in-flight calls to write their
// results, then closes every session. Calls still parked when ctx expires
// are abandoned.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()
	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ss := range s.sessions {
		ss.wmu.Lock()
		_ = ss.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		ss.wmu.Unlock()
		_ = ss.conn.Close()
	}
	return err
}
