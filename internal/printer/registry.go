package printer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// Reachability is one result of ValidateReachability.
type Reachability struct {
	ID        Identity
	Reachable bool
}

// Registry owns every printer Connection, at most one per identity, and the
// legacy "selected printer" used for commands without an explicit target.
type Registry struct {
	opts Options

	mu       sync.Mutex
	conns    map[Identity]*Connection
	dialing  map[Identity]chan struct{}
	selected Identity
}

// NewRegistry creates an empty Registry. opts applies to every connection.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:    opts.withDefaults(),
		conns:   make(map[Identity]*Connection),
		dialing: make(map[Identity]chan struct{}),
	}
}

// ConnectTo returns CONNECTED at once if a live connection exists for ep,
// otherwise opens and registers a new one. Concurrent calls for the same
// identity wait for the first dial; other printers are not blocked by it.
func (r *Registry) ConnectTo(ctx context.Context, ep Endpoint) (State, error) {
	for {
		r.mu.Lock()
		if wait, ok := r.dialing[ep.ID]; ok {
			r.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return StateFailed, ctx.Err()
			}
		}
		c, ok := r.conns[ep.ID]
		if ok && c.Addr() == ep.Addr() && c.IsConnected() {
			r.mu.Unlock()
			return StateConnected, nil
		}
		done := make(chan struct{})
		r.dialing[ep.ID] = done
		r.mu.Unlock()

		err := r.connect(ctx, ep, c)

		r.mu.Lock()
		delete(r.dialing, ep.ID)
		r.mu.Unlock()
		close(done)
		if err != nil {
			return StateFailed, err
		}
		return StateConnected, nil
	}
}

// connect dials ep without the registry lock. old is the connection
// currently registered for ep, if any.
func (r *Registry) connect(ctx context.Context, ep Endpoint, old *Connection) error {
	if old != nil && old.Addr() == ep.Addr() {
		// Same printer, same address: a fresh connect keeps subscribers.
		return old.Connect(ctx)
	}
	if old != nil {
		r.mu.Lock()
		if r.conns[ep.ID] == old {
			delete(r.conns, ep.ID)
		}
		r.mu.Unlock()
		old.Close()
	}

	c := NewConnection(ep.Host, ep.Port, r.opts)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.conns[ep.ID] = c
	r.mu.Unlock()
	slog.Info("printer connected", "printer", ep.Name, "id", ep.ID, "addr", ep.Addr())
	return nil
}

// Connection returns the connection registered for id.
func (r *Registry) Connection(id Identity) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Remove closes and forgets the connection for id.
func (r *Registry) Remove(id Identity) {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	if r.selected == id {
		r.selected = ""
	}
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Select sets the printer used by Send when no identity is given.
func (r *Registry) Select(id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return ErrPrinterNotFound
	}
	r.selected = id
	return nil
}

// Selected returns the selected printer, or "" when none is selected.
func (r *Registry) Selected() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Send routes data to the printer with identity id, or to the selected
// printer when id is empty. With neither, it logs and returns ErrNoRoute.
func (r *Registry) Send(ctx context.Context, id Identity, data []byte) error {
	c, err := r.Route(id)
	if err != nil {
		slog.Warn("command not routed", "id", id, "bytes", len(data), "err", err)
		return err
	}
	return c.Send(ctx, data)
}

// Route returns the connection for id, or for the selected printer when id is
// empty.
func (r *Registry) Route(id Identity) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		if r.selected == "" {
			return nil, ErrNoRoute
		}
		id = r.selected
	}
	c, ok := r.conns[id]
	if !ok {
		return nil, ErrPrinterNotFound
	}
	return c, nil
}

// Track starts status polling for id and returns a status subscription.
// Without a connection the channel yields a single unavailable status.
func (r *Registry) Track(id Identity, interval, initialDelay time.Duration) (<-chan dymo.Status, func()) {
	c, ok := r.Connection(id)
	if !ok || c.State() == StateUninitialized {
		ch := make(chan dymo.Status, 1)
		ch <- dymo.StatusUnavailable
		close(ch)
		return ch, func() {}
	}
	ch, cancel := c.Subscribe()
	if err := c.StartPolling(interval, initialDelay); err != nil {
		slog.Warn("status polling not started", "id", id, "err", err)
	}
	return ch, cancel
}

// StopTracking stops status polling for id.
func (r *Registry) StopTracking(id Identity) {
	if c, ok := r.Connection(id); ok {
		c.StopPolling()
	}
}

// Status returns the last known status for id, unavailable without a
// connection.
func (r *Registry) Status(id Identity) dymo.Status {
	c, ok := r.Connection(id)
	if !ok {
		return dymo.StatusUnavailable
	}
	return c.LastStatus()
}

// ValidateReachability probes each endpoint with a connect-and-close and
// streams one result per endpoint. A failing endpoint does not stop the
// rest. The channel is closed when every endpoint has been probed.
func (r *Registry) ValidateReachability(ctx context.Context, eps []Endpoint) <-chan Reachability {
	out := make(chan Reachability, len(eps))
	go func() {
		defer close(out)
		for _, ep := range eps {
			ok := r.Probe(ctx, ep.Host, ep.Port)
			if !ok {
				slog.Info("printer unreachable", "printer", ep.Name, "addr", ep.Addr())
			}
			select {
			case out <- Reachability{ID: ep.ID, Reachable: ok}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Probe reports whether host:port accepts a TCP connection.
func (r *Registry) Probe(ctx context.Context, host string, port int) bool {
	c := NewConnection(host, port, r.opts)
	if err := c.Connect(ctx); err != nil {
		slog.Debug("probe failed", "addr", c.Addr(), "err", err)
		return false
	}
	c.Close()
	return true
}

// Teardown closes every connection. Close failures are logged only.
func (r *Registry) Teardown() {
	r.mu.Lock()
	for len(r.dialing) > 0 {
		var wait chan struct{}
		for _, wait = range r.dialing {
			break
		}
		r.mu.Unlock()
		<-wait
		r.mu.Lock()
	}
	conns := r.conns
	r.conns = make(map[Identity]*Connection)
	r.selected = ""
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, c := range conns {
		if c.IsClosed() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Close(); err != nil {
				slog.Warn("connection close failed", "id", id, "err", err)
			}
		}()
	}
	wg.Wait()
	slog.Info("printer connections closed", "count", len(conns))
}
