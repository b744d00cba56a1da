package operations

import (
	"context"
	"sync"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
)

// ClientPool builds one chiarpc.Client per service on first use and reuses it.
// A failed construction is not cached, so fixing config.yaml takes effect on the next call.
type ClientPool struct {
	opts []chiarpc.Option

	mu      sync.Mutex
	clients map[string]*chiarpc.Client
}

func NewClientPool(opts ...chiarpc.Option) *ClientPool {
	return &ClientPool{
		opts:    opts,
		clients: make(map[string]*chiarpc.Client),
	}
}

func (p *ClientPool) Client(service string) (*chiarpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[service]; ok {
		return c, nil
	}
	c, err := chiarpc.New(service, p.opts...)
	if err != nil {
		return nil, err
	}
	p.clients[service] = c
	return c, nil
}

func (p *ClientPool) Dispatch(ctx context.Context, service, endpoint string, body map[string]any) (chiarpc.Result, error) {
	c, err := p.Client(service)
	if err != nil {
		return chiarpc.Result{}, err
	}
	return c.Call(ctx, endpoint, body), nil
}
