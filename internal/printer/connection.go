package printer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateTracking
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateConnected:
		return "CONNECTED"
	case StateTracking:
		return "TRACKING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DialFunc opens the transport to a printer.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options tunes socket behaviour. Zero values select defaults.
type Options struct {
	DialTimeout  time.Duration // default 5s
	IOTimeout    time.Duration // default 10s, per write or status read
	ProbeTimeout time.Duration // default 500ms, diagnostic status read
	Dial         DialFunc      // default net.Dialer
}

func (o Options) withDefaults() Options {
	if o.DialTimeout == 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.IOTimeout == 0 {
		o.IOTimeout = 10 * time.Second
	}
	if o.ProbeTimeout == 0 {
		o.ProbeTimeout = 500 * time.Millisecond
	}
	if o.Dial == nil {
		d := &net.Dialer{Timeout: o.DialTimeout, KeepAlive: 30 * time.Second}
		o.Dial = d.DialContext
	}
	return o
}

// drainWindow bounds how long a send waits for stale bytes or a remote close
// before writing.
const drainWindow = 2 * time.Millisecond

var pastDeadline = time.Unix(1, 0)

// Connection owns the TCP stream to one printer. Every exchange on the wire
// holds mu, so a status request and its 32-byte answer are never interleaved
// with other commands.
//
// A send on a transport that is not open (closed locally, closed by the
// printer, or failed) reconnects once to the last known address before
// writing. This happens silently; callers only see an error if that single
// reconnect or the retried write fails.
type Connection struct {
	addr string
	opts Options

	state   atomic.Int32
	polling atomic.Bool
	live    atomic.Pointer[net.Conn]

	mu   sync.Mutex
	conn net.Conn

	pollMu sync.Mutex
	poller *poller

	subMu sync.Mutex
	subs  map[chan dymo.Status]struct{}
	last  dymo.Status
}

// NewConnection creates an unconnected Connection for host:port.
func NewConnection(host string, port int, opts Options) *Connection {
	return &Connection{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		opts: opts.withDefaults(),
		subs: make(map[chan dymo.Status]struct{}),
		last: dymo.StatusUnavailable,
	}
}

// Addr returns the printer's host:port.
func (c *Connection) Addr() string { return c.addr }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// IsConnected reports whether the transport is open.
func (c *Connection) IsConnected() bool {
	s := c.State()
	return (s == StateConnected || s == StateTracking) && c.live.Load() != nil
}

// IsClosed reports whether Close has been called since the last connect.
func (c *Connection) IsClosed() bool { return c.State() == StateClosed }

// Connect opens the transport, replacing any previous one.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeTransportLocked()
	return c.dialLocked(ctx)
}

func (c *Connection) dialLocked(ctx context.Context) error {
	slog.Debug("printer connecting", "addr", c.addr)
	conn, err := c.opts.Dial(ctx, "tcp", c.addr)
	if err != nil {
		// A failed dial is FAILED even after Close; only a fresh connect recovers.
		c.closeTransportLocked()
		c.state.Store(int32(StateFailed))
		return newTransportError("connect", c.addr, err)
	}
	c.conn = conn
	c.live.Store(&conn)
	if c.polling.Load() {
		c.state.Store(int32(StateTracking))
	} else {
		c.state.Store(int32(StateConnected))
	}
	slog.Debug("printer connected", "addr", c.addr)
	return nil
}

func (c *Connection) closeTransportLocked() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.live.Store(nil)
}

func (c *Connection) setFailedLocked() {
	c.closeTransportLocked()
	if c.State() != StateClosed {
		c.state.Store(int32(StateFailed))
	}
}

// Send writes data as one command.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(ctx, data)
}

// ReadStatusOnce requests a status frame and blocks until all 32 bytes
// arrive, the transport fails, or ctx is done.
func (c *Connection) ReadStatusOnce(ctx context.Context) (dymo.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(ctx, c.opts.IOTimeout)
}

// Exclusive runs fn with the wire held, so nothing else (including status
// polling) can write to the printer until fn returns.
func (c *Connection) Exclusive(ctx context.Context, fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(&Tx{c: c, ctx: ctx})
}

// Tx is the wire handle passed to Exclusive.
type Tx struct {
	c   *Connection
	ctx context.Context
}

// Send writes data as one command.
func (t *Tx) Send(data []byte) error { return t.c.sendLocked(t.ctx, data) }

// ReadStatus requests and reads one status frame.
func (t *Tx) ReadStatus() (dymo.Status, error) {
	return t.c.statusLocked(t.ctx, t.c.opts.IOTimeout)
}

// Probe requests a status frame and waits briefly for it. A missing answer
// is not an error for the caller's purposes; the frame is only logged.
func (t *Tx) Probe() {
	st, err := t.c.statusLocked(t.ctx, t.c.opts.ProbeTimeout)
	if err != nil {
		slog.Debug("status probe unanswered", "addr", t.c.addr, "err", err)
		return
	}
	slog.Debug("status probe", "addr", t.c.addr, "status", st)
}

func (c *Connection) sendLocked(ctx context.Context, data []byte) error {
	if c.State() == StateUninitialized {
		return &InvalidStateError{Op: "send", State: StateUninitialized}
	}
	reconnected := false
	if c.conn == nil || !c.drainLocked() {
		slog.Debug("transport not open, reconnecting", "addr", c.addr, "state", c.State())
		c.closeTransportLocked()
		if err := c.dialLocked(ctx); err != nil {
			return err
		}
		reconnected = true
	}
	err := c.writeLocked(ctx, data)
	if err == nil {
		return nil
	}
	if reconnected || ctx.Err() != nil || c.State() == StateClosed {
		c.setFailedLocked()
		return newTransportError("write", c.addr, err)
	}
	slog.Debug("write failed, reconnecting", "addr", c.addr, "err", err)
	c.closeTransportLocked()
	if err := c.dialLocked(ctx); err != nil {
		return err
	}
	if err := c.writeLocked(ctx, data); err != nil {
		c.setFailedLocked()
		return newTransportError("write", c.addr, err)
	}
	return nil
}

func (c *Connection) writeLocked(ctx context.Context, data []byte) error {
	nc := c.conn
	stop := context.AfterFunc(ctx, func() { nc.SetWriteDeadline(pastDeadline) })
	defer stop()
	nc.SetWriteDeadline(time.Now().Add(c.opts.IOTimeout))
	if len(data) <= 64 {
		slog.Debug("printer send", "addr", c.addr, "bytes", len(data), "hex", hex.EncodeToString(data))
	} else {
		slog.Debug("printer send", "addr", c.addr, "bytes", len(data))
	}
	_, err := nc.Write(data)
	return err
}

// drainLocked discards bytes the printer sent unprompted (typically the
// answer to an earlier diagnostic status request) and reports whether the
// transport is still open.
func (c *Connection) drainLocked() bool {
	nc := c.conn
	nc.SetReadDeadline(time.Now().Add(drainWindow))
	defer nc.SetReadDeadline(time.Time{})
	buf := make([]byte, 64)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			slog.Debug("discarded stale bytes", "addr", c.addr, "bytes", n)
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return true
			}
			slog.Debug("transport closed by printer", "addr", c.addr, "err", err)
			return false
		}
	}
}

func (c *Connection) statusLocked(ctx context.Context, timeout time.Duration) (dymo.Status, error) {
	if err := c.sendLocked(ctx, dymo.RequestStatus()); err != nil {
		return dymo.StatusUnavailable, err
	}
	frame, err := c.readFrameLocked(ctx, timeout)
	if err != nil {
		return dymo.StatusUnavailable, err
	}
	st, err := dymo.DecodeStatus(frame)
	if err != nil {
		return dymo.StatusUnavailable, err
	}
	c.publish(st)
	return st, nil
}

func (c *Connection) readFrameLocked(ctx context.Context, timeout time.Duration) ([]byte, error) {
	nc := c.conn
	stop := context.AfterFunc(ctx, func() { nc.SetReadDeadline(pastDeadline) })
	defer stop()
	nc.SetReadDeadline(time.Now().Add(timeout))
	defer nc.SetReadDeadline(time.Time{})

	frame := make([]byte, dymo.StatusFrameSize)
	if _, err := io.ReadFull(nc, frame); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && ctx.Err() == nil {
			// Leave the transport open; a late frame is drained by the next send.
			return nil, newTransportError("read status", c.addr, err)
		}
		c.setFailedLocked()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read status %s: %w", c.addr, ctx.Err())
		}
		return nil, newTransportError("read status", c.addr, err)
	}
	slog.Debug("printer status frame", "addr", c.addr, "hex", hex.EncodeToString(frame))
	return frame, nil
}

// Subscribe returns a channel receiving every decoded status. The channel
// holds only the newest status if the reader falls behind. Call cancel to
// unsubscribe.
func (c *Connection) Subscribe() (<-chan dymo.Status, func()) {
	ch := make(chan dymo.Status, 1)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
		})
	}
}

// LastStatus returns the most recently decoded status, or unavailable when
// the transport is not open.
func (c *Connection) LastStatus() dymo.Status {
	if !c.IsConnected() {
		return dymo.StatusUnavailable
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.last
}

func (c *Connection) publish(st dymo.Status) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.last = st
	for ch := range c.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

// Close releases the transport and stops status polling. It is idempotent;
// only the call that closes an open transport can return an error.
func (c *Connection) Close() error {
	c.state.Store(int32(StateClosed))
	// Unblock any in-flight read before waiting for the wire.
	var err error
	if p := c.live.Swap(nil); p != nil {
		if cerr := (*p).Close(); cerr != nil {
			err = newTransportError("close", c.addr, cerr)
		}
	}
	c.StopPolling()
	c.mu.Lock()
	c.closeTransportLocked()
	c.mu.Unlock()
	c.state.Store(int32(StateClosed))
	return err
}
