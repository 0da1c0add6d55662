package printer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// Default status polling schedule.
const (
	DefaultPollInterval     = 5 * time.Second
	DefaultPollInitialDelay = 100 * time.Millisecond
)

// poller periodically requests printer status.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPolling begins requesting status every interval after initialDelay and
// publishes each result to subscribers. It replaces any running poller.
// Zero durations select the defaults.
func (c *Connection) StartPolling(interval, initialDelay time.Duration) error {
	if c.State() == StateUninitialized {
		return &InvalidStateError{Op: "start polling", State: StateUninitialized}
	}
	if interval == 0 {
		interval = DefaultPollInterval
	}
	if initialDelay == 0 {
		initialDelay = DefaultPollInitialDelay
	}

	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	c.stopPollerLocked()

	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}
	c.poller = p
	c.polling.Store(true)
	c.state.CompareAndSwap(int32(StateConnected), int32(StateTracking))

	go func() {
		defer close(p.done)
		timer := time.NewTimer(initialDelay)
		defer timer.Stop()

		slog.Info("status polling started", "addr", c.addr, "interval", interval)
		cycle := 0
		for {
			select {
			case <-ctx.Done():
				slog.Info("status polling stopped", "addr", c.addr)
				return
			case <-timer.C:
			}
			st, err := c.ReadStatusOnce(ctx)
			if err != nil {
				if ctx.Err() != nil || c.IsClosed() {
					slog.Info("status polling stopped", "addr", c.addr)
					return
				}
				// One entry per failure; the next cycle reconnects.
				slog.Debug("status poll failed", "addr", c.addr, "cycle", cycle, "err", err)
				var pe *dymo.ProtocolError
				if !errors.As(err, &pe) {
					c.publish(dymo.StatusUnavailable)
				}
			} else {
				slog.Debug("printer status", "addr", c.addr, "cycle", cycle, "status", st)
			}
			cycle++
			timer.Reset(interval)
		}
	}()
	return nil
}

// StopPolling stops the status poller, if any, and waits for it to exit.
func (c *Connection) StopPolling() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	c.stopPollerLocked()
}

func (c *Connection) stopPollerLocked() {
	if c.poller == nil {
		return
	}
	c.poller.cancel()
	<-c.poller.done
	c.poller = nil
	c.polling.Store(false)
	c.state.CompareAndSwap(int32(StateTracking), int32(StateConnected))
}
