package lookup

import (
	"context"

	"museumheist.ai/internal/protocol"
	"museumheist.ai/internal/transport/rpc"
)

// Serve exposes t on s.
func Serve(s *rpc.Server, t *Table) {
	rpc.Bind(s, protocol.MethodRegister, func(ctx context.Context, p protocol.RegisterParams) (protocol.Empty, error) {
		return protocol.Empty{}, t.Register(ctx, p.Name, p.Addr)
	})
	rpc.Bind(s, protocol.MethodFind, func(ctx context.Context, p protocol.NameParams) (protocol.FindResult, error) {
		addr, err := t.Find(ctx, p.Name)
		return protocol.FindResult{Addr: addr}, err
	})
	rpc.Bind(s, protocol.MethodUnbind, func(ctx context.Context, p protocol.NameParams) (protocol.Empty, error) {
		return protocol.Empty{}, t.Unbind(ctx, p.Name)
	})
	rpc.Bind(s, protocol.MethodList, func(ctx context.Context, _ protocol.Empty) (protocol.ListResult, error) {
		names, err := t.List(ctx)
		return protocol.ListResult{Names: names}, err
	})
}

// Client talks to a registry process.
type Client struct {
	c *rpc.Client
}

// Dial connects to the registry listening on host:port.
func Dial(ctx context.Context, host string, port int, clientName string) (*Client, error) {
	c, err := rpc.Dial(ctx, Endpoint(host, port), clientName)
	if err != nil {
		return nil, err
	}
	return &Client{c: c}, nil
}

func (c *Client) Close() error { return c.c.Close() }

func (c *Client) Register(ctx context.Context, name, addr string) error {
	return c.c.Call(ctx, protocol.MethodRegister, protocol.RegisterParams{Name: name, Addr: addr}, nil)
}

func (c *Client) Find(ctx context.Context, name string) (string, error) {
	var out protocol.FindResult
	err := c.c.Call(ctx, protocol.MethodFind, protocol.NameParams{Name: name}, &out)
	return out.Addr, err
}

func (c *Client) Unbind(ctx context.Context, name string) error {
	return c.c.Call(ctx, protocol.MethodUnbind, protocol.NameParams{Name: name}, nil)
}

func (c *Client) List(ctx context.Context) ([]string, error) {
	var out protocol.ListResult
	err := c.c.Call(ctx, protocol.MethodList, nil, &out)
	return out.Names, err
}
