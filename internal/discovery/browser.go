package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"

	"github.com/grandcat/zeroconf"
)

// Record is a service instance seen during a browse.
type Record struct {
	Instance string
	HostName string
	Port     int
	Addrs    []net.IP
}

// Browser starts a service browse. Records are delivered on found until the
// returned Session is stopped or ctx is done.
type Browser interface {
	Browse(ctx context.Context, service, domain string, found chan<- Record) (Session, error)
}

// Session is a running browse.
type Session interface {
	Stop() error
}

// ZeroconfBrowser browses multicast DNS with grandcat/zeroconf.
type ZeroconfBrowser struct{}

func (ZeroconfBrowser) Browse(ctx context.Context, service, domain string, found chan<- Record) (Session, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mdns resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		cancel()
		return nil, fmt.Errorf("browse %s: %w", service, err)
	}
	slog.Debug("mdns browse started", "service", service, "domain", domain)

	s := &zeroconfSession{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for {
			var e *zeroconf.ServiceEntry
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				e = entry
			}
			rec := Record{
				Instance: e.Instance,
				HostName: e.HostName,
				Port:     e.Port,
				Addrs:    slices.Concat(e.AddrIPv4, e.AddrIPv6),
			}
			select {
			case found <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s, nil
}

type zeroconfSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *zeroconfSession) Stop() error {
	s.cancel()
	<-s.done
	return nil
}
