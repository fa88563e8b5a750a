package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/protocol"
)

// Client is one websocket session to a service. It is safe for concurrent
// use: every Call gets its own id and waits for the matching RESULT.
type Client struct {
	addr    string
	service string
	conn    *websocket.Conn

	wmu    sync.Mutex
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan protocol.ResultMsg
	err     error
	closed  chan struct{}
}

// Dial opens a session and completes the HELLO/WELCOME handshake.
// Failures come back as *fault.ConnectivityError.
func Dial(ctx context.Context, addr, clientName string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fault.Unreachable(addr, err)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      clientName,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fault.Unreachable(addr, fmt.Errorf("send HELLO: %w", err))
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fault.Unreachable(addr, fmt.Errorf("read WELCOME: %w", err))
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, fault.Unreachable(addr, errors.New("expected WELCOME"))
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		addr:    addr,
		service: welcome.Service,
		conn:    conn,
		pending: map[uint64]chan protocol.ResultMsg{},
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Addr() string    { return c.addr }
func (c *Client) Service() string { return c.service }

// Done is closed once the session is gone.
func (c *Client) Done() <-chan struct{} { return c.closed }

func (c *Client) Close() error {
	c.fail(errors.New("client closed"))
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}

// Call invokes method with params and decodes the result into out (which
// may be nil). Remote errors are mapped back to fault kinds. If ctx ends
// first, Call returns ctx.Err() but the remote side may still complete.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encode params: %w", method, err)
		}
		raw = b
	}

	id := c.nextID.Add(1)
	ch := make(chan protocol.ResultMsg, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fault.Unreachable(c.addr, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	call := protocol.CallMsg{
		Type:            protocol.TypeCall,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Method:          method,
		Params:          raw,
	}
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := c.conn.WriteJSON(call)
	c.wmu.Unlock()
	if err != nil {
		c.forget(id)
		return fault.Unreachable(c.addr, fmt.Errorf("%s: %w", method, err))
	}

	select {
	case res := <-ch:
		return decodeResult(method, res, out)
	case <-c.closed:
		select {
		case res := <-ch:
			return decodeResult(method, res, out)
		default:
		}
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		return fault.Unreachable(c.addr, fmt.Errorf("%s: %w", method, err))
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func decodeResult(method string, res protocol.ResultMsg, out any) error {
	if res.Error != nil {
		return fault.FromCode(res.Error.Code, res.Error.Message)
	}
	if out == nil || len(res.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeResult {
			continue
		}
		var res protocol.ResultMsg
		if err := json.Unmarshal(msg, &res); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		delete(c.pending, res.ID)
		c.mu.Unlock()
		if ok {
			ch <- res
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.closed)
}
