package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mzyy94/airlabel/internal/printer"
)

type fakeBrowser struct {
	records  []Record
	startErr error
	stopErr  error

	mu      sync.Mutex
	service string
	domain  string
	stopped int
}

func (b *fakeBrowser) Browse(ctx context.Context, service, domain string, found chan<- Record) (Session, error) {
	b.mu.Lock()
	b.service, b.domain = service, domain
	b.mu.Unlock()
	if b.startErr != nil {
		return nil, b.startErr
	}
	go func() {
		for _, r := range b.records {
			select {
			case found <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return fakeSession{b}, nil
}

type fakeSession struct{ b *fakeBrowser }

func (s fakeSession) Stop() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.stopped++
	return s.b.stopErr
}

type fakeProber struct {
	ok    bool
	calls int
}

func (p *fakeProber) Probe(ctx context.Context, host string, port int) bool {
	p.calls++
	return p.ok
}

func rec(name, ip string, port int) Record {
	return Record{Instance: name, Port: port, Addrs: []net.IP{net.ParseIP(ip)}}
}

func names(eps []printer.Endpoint) []string {
	var out []string
	for _, ep := range eps {
		out = append(out, ep.Name)
	}
	sort.Strings(out)
	return out
}

func TestRun_FiltersAndDedups(t *testing.T) {
	b := &fakeBrowser{records: []Record{
		rec("DYMO LabelWriter Wireless", "192.168.1.20", 9100),
		rec("HP LaserJet", "192.168.1.30", 9100),
		rec("dymo labelwriter 550", "192.168.1.21", 9100),
		rec("DYMO LabelWriter Wireless", "192.168.1.22", 9100),
	}}
	d := New(b, &fakeProber{}, Options{Timeout: 100 * time.Millisecond})

	eps, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := names(eps)
	want := []string{"DYMO LabelWriter Wireless", "dymo labelwriter 550"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for _, ep := range eps {
		if ep.Name == "DYMO LabelWriter Wireless" && ep.Host != "192.168.1.22" {
			t.Errorf("host = %s, want refreshed 192.168.1.22", ep.Host)
		}
	}
	if b.service != "_pdl-datastream._tcp" || b.domain != "local." {
		t.Errorf("browsed %q in %q", b.service, b.domain)
	}
	if b.stopped != 1 {
		t.Errorf("Stop called %d times, want 1", b.stopped)
	}
}

func TestRun_ResolutionFailureSkipped(t *testing.T) {
	b := &fakeBrowser{records: []Record{
		{Instance: "DYMO no port", HostName: "a.local."},
		{Instance: "DYMO unresolvable", HostName: "missing.local.", Port: 9100},
		{Instance: "DYMO by name", HostName: "printer.local.", Port: 9100},
		rec("DYMO v6", "fe80::1", 9100),
	}}
	d := New(b, &fakeProber{}, Options{Timeout: 100 * time.Millisecond})
	d.LookupHost = func(ctx context.Context, host string) ([]string, error) {
		if host == "printer.local" {
			return []string{"10.0.0.5"}, nil
		}
		return nil, errors.New("no such host")
	}

	eps, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	hosts := map[string]string{}
	for _, ep := range eps {
		hosts[ep.Name] = ep.Host
	}
	if len(hosts) != 2 {
		t.Fatalf("endpoints = %v, want 2", hosts)
	}
	if hosts["DYMO by name"] != "10.0.0.5" {
		t.Errorf("resolved host = %q", hosts["DYMO by name"])
	}
	if hosts["DYMO v6"] != "fe80::1" {
		t.Errorf("v6 host = %q", hosts["DYMO v6"])
	}
}

func TestRun_StartFailure(t *testing.T) {
	b := &fakeBrowser{startErr: errors.New("multicast unavailable")}
	d := New(b, &fakeProber{}, Options{Timeout: 100 * time.Millisecond})

	eps, err := d.Run(context.Background())
	var dfe *DiscoveryFailedError
	if !errors.As(err, &dfe) {
		t.Fatalf("err = %v, want *DiscoveryFailedError", err)
	}
	if dfe.Op != "start" || dfe.Code != CodeInternal {
		t.Errorf("Op = %q, Code = %d", dfe.Op, dfe.Code)
	}
	if len(eps) != 0 {
		t.Errorf("endpoints = %v, want none", eps)
	}
}

func TestRun_StopFailureKeepsPartialResult(t *testing.T) {
	b := &fakeBrowser{
		records: []Record{rec("DYMO A", "10.0.0.1", 9100)},
		stopErr: errors.New("stop refused"),
	}
	d := New(b, &fakeProber{}, Options{Timeout: 100 * time.Millisecond})

	eps, err := d.Run(context.Background())
	var dfe *DiscoveryFailedError
	if !errors.As(err, &dfe) || dfe.Op != "stop" {
		t.Fatalf("err = %v, want stop DiscoveryFailedError", err)
	}
	if len(eps) != 1 {
		t.Errorf("endpoints = %d, want 1", len(eps))
	}
}

func TestRun_StopsAtTimeout(t *testing.T) {
	d := New(&fakeBrowser{}, &fakeProber{}, Options{Timeout: 50 * time.Millisecond})
	start := time.Now()
	eps, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(eps) != 0 {
		t.Errorf("endpoints = %v", eps)
	}
	if el := time.Since(start); el < 50*time.Millisecond || el > 2*time.Second {
		t.Errorf("elapsed = %v, want about the timeout", el)
	}
}

func TestRun_AlreadyActive(t *testing.T) {
	d := New(&fakeBrowser{}, &fakeProber{}, Options{Timeout: 200 * time.Millisecond})
	first := d.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	_, err := d.Run(context.Background())
	var dfe *DiscoveryFailedError
	if !errors.As(err, &dfe) || dfe.Code != CodeAlreadyActive {
		t.Errorf("err = %v, want already active", err)
	}
	res := <-first
	if res.Err != nil {
		t.Errorf("first cycle err = %v", res.Err)
	}
}

func TestHotStart(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		age       time.Duration
		reachable bool
		want      bool
		probes    int
	}{
		{"fresh and reachable", time.Minute, true, true, 1},
		{"fresh but unreachable", time.Minute, false, false, 1},
		{"stale", 6 * time.Minute, true, false, 0},
		{"at window edge", 5 * time.Minute, true, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{ok: tt.reachable}
			d := New(&fakeBrowser{}, p, Options{})
			d.now = func() time.Time { return now }

			ep, ok := d.HotStart(context.Background(), "DYMO LabelWriter", "10.0.0.9", 9100, now.Add(-tt.age))
			if ok != tt.want {
				t.Errorf("ok = %v, want %v", ok, tt.want)
			}
			if p.calls != tt.probes {
				t.Errorf("probes = %d, want %d", p.calls, tt.probes)
			}
			if ok && (ep.ID != printer.NewIdentity("DYMO LabelWriter") || ep.Addr() != "10.0.0.9:9100") {
				t.Errorf("endpoint = %+v", ep)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	d := New(&fakeBrowser{}, &fakeProber{}, Options{})
	for name, want := range map[string]bool{
		"DYMO LabelWriter": true,
		"my dymo":          true,
		"Brother QL":       false,
	} {
		if got := d.Matches(name); got != want {
			t.Errorf("Matches(%q) = %v, want %v", name, got, want)
		}
	}
}
