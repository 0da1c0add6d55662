// Package discovery finds LabelWriter printers advertised over multicast DNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mzyy94/airlabel/internal/dymo"
	"github.com/mzyy94/airlabel/internal/printer"
)

// Browse failure codes carried by DiscoveryFailedError.
const (
	CodeInternal      = 0
	CodeAlreadyActive = 3
)

// Defaults used when Options leaves a field empty.
const (
	DefaultDomain         = "local."
	DefaultTimeout        = 4 * time.Second
	DefaultHotStartWindow = 5 * time.Minute
)

// DiscoveryFailedError reports that a browse could not be started or stopped.
type DiscoveryFailedError struct {
	Op   string // "start" or "stop"
	Code int
	Err  error
}

func (e *DiscoveryFailedError) Error() string {
	return fmt.Sprintf("discovery %s failed (code %d): %v", e.Op, e.Code, e.Err)
}

func (e *DiscoveryFailedError) Unwrap() error { return e.Err }

// Prober checks that a printer accepts connections. *printer.Registry
// implements it.
type Prober interface {
	Probe(ctx context.Context, host string, port int) bool
}

// Options configures a Discoverer.
type Options struct {
	ServiceType    string
	Domain         string
	VendorToken    string
	Timeout        time.Duration
	HotStartWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.ServiceType == "" {
		o.ServiceType = dymo.ServiceType
	}
	if o.Domain == "" {
		o.Domain = DefaultDomain
	}
	if o.VendorToken == "" {
		o.VendorToken = dymo.VendorToken
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HotStartWindow == 0 {
		o.HotStartWindow = DefaultHotStartWindow
	}
	return o
}

// Result is the outcome of one discovery cycle.
type Result struct {
	Endpoints []printer.Endpoint
	Err       error
}

// Discoverer runs time-bounded browses for printers.
type Discoverer struct {
	browser Browser
	prober  Prober
	opts    Options
	running atomic.Bool

	// LookupHost resolves a service host name. Defaults to net.DefaultResolver.
	LookupHost func(ctx context.Context, host string) ([]string, error)
	now        func() time.Time
}

// New creates a Discoverer.
func New(b Browser, p Prober, opts Options) *Discoverer {
	return &Discoverer{
		browser:    b,
		prober:     p,
		opts:       opts.withDefaults(),
		LookupHost: net.DefaultResolver.LookupHost,
		now:        time.Now,
	}
}

// Options returns the effective options.
func (d *Discoverer) Options() Options { return d.opts }

// Matches reports whether a service name carries the vendor token.
func (d *Discoverer) Matches(name string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(d.opts.VendorToken))
}

// Start runs one discovery cycle in the background. The channel receives a
// single Result and is then closed.
func (d *Discoverer) Start(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		eps, err := d.Run(ctx)
		out <- Result{Endpoints: eps, Err: err}
	}()
	return out
}

// Run browses until the configured timeout and returns every matching printer,
// at most one per identity. A browse that cannot start returns a
// *DiscoveryFailedError and no printers. A browse that cannot stop returns the
// printers found so far together with a *DiscoveryFailedError.
func (d *Discoverer) Run(ctx context.Context) ([]printer.Endpoint, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, &DiscoveryFailedError{Op: "start", Code: CodeAlreadyActive, Err: errors.New("discovery already running")}
	}
	defer d.running.Store(false)

	browseCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	found := make(chan Record, 16)
	session, err := d.browser.Browse(browseCtx, d.opts.ServiceType, d.opts.Domain, found)
	if err != nil {
		slog.Warn("discovery start failed", "service", d.opts.ServiceType, "err", err)
		return nil, &DiscoveryFailedError{Op: "start", Code: CodeInternal, Err: err}
	}
	slog.Info("discovery started", "service", d.opts.ServiceType, "timeout", d.opts.Timeout)

	seen := make(map[printer.Identity]int)
	var eps []printer.Endpoint
loop:
	for {
		select {
		case <-browseCtx.Done():
			break loop
		case rec, ok := <-found:
			if !ok {
				break loop
			}
			if !d.Matches(rec.Instance) {
				slog.Debug("ignoring service", "instance", rec.Instance)
				continue
			}
			ep, err := d.resolve(browseCtx, rec)
			if err != nil {
				slog.Warn("service resolution failed", "instance", rec.Instance, "err", err)
				continue
			}
			if i, dup := seen[ep.ID]; dup {
				eps[i].Host, eps[i].Port = ep.Host, ep.Port
				continue
			}
			seen[ep.ID] = len(eps)
			eps = append(eps, ep)
			slog.Info("found printer", "printer", ep.Name, "addr", ep.Addr(), "id", ep.ID)
		}
	}

	if err := session.Stop(); err != nil {
		slog.Warn("discovery stop failed", "err", err)
		return eps, &DiscoveryFailedError{Op: "stop", Code: CodeInternal, Err: err}
	}
	slog.Info("discovery stopped", "found", len(eps))
	if ctx.Err() != nil {
		return eps, ctx.Err()
	}
	return eps, nil
}

func (d *Discoverer) resolve(ctx context.Context, rec Record) (printer.Endpoint, error) {
	if rec.Port <= 0 {
		return printer.Endpoint{}, fmt.Errorf("no port for %q", rec.Instance)
	}
	var host string
	for _, ip := range rec.Addrs {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(rec.Addrs) > 0 {
		host = rec.Addrs[0].String()
	}
	if host == "" {
		name := strings.TrimSuffix(rec.HostName, ".")
		if name == "" {
			return printer.Endpoint{}, fmt.Errorf("no address for %q", rec.Instance)
		}
		addrs, err := d.LookupHost(ctx, name)
		if err != nil {
			return printer.Endpoint{}, fmt.Errorf("lookup %s: %w", name, err)
		}
		if len(addrs) == 0 {
			return printer.Endpoint{}, fmt.Errorf("lookup %s: no addresses", name)
		}
		host = addrs[0]
	}
	return printer.NewEndpoint(rec.Instance, host, rec.Port), nil
}

// HotStart offers a previously saved printer without browsing. It returns
// false when the entry is older than the hot-start window or the printer
// does not accept a connection.
func (d *Discoverer) HotStart(ctx context.Context, name, host string, port int, savedAt time.Time) (printer.Endpoint, bool) {
	if name == "" || host == "" || port <= 0 {
		return printer.Endpoint{}, false
	}
	if age := d.now().Sub(savedAt); age > d.opts.HotStartWindow {
		slog.Debug("saved printer too old for hot start", "printer", name, "age", age)
		return printer.Endpoint{}, false
	}
	if !d.prober.Probe(ctx, host, port) {
		slog.Info("saved printer not reachable", "printer", name, "host", host, "port", port)
		return printer.Endpoint{}, false
	}
	ep := printer.NewEndpoint(name, host, port)
	slog.Info("hot started saved printer", "printer", name, "addr", ep.Addr())
	return ep, true
}
