// Package printertest provides a fake LabelWriter listening on loopback.
package printertest

import (
	"bytes"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mzyy94/airlabel/internal/dymo"
)

// Printer accepts TCP connections, records every byte it receives and answers
// each status request with the configured frame.
type Printer struct {
	ln net.Listener

	mu       sync.Mutex
	frame    []byte
	silent   bool
	received bytes.Buffer
	accepts  int
	requests int
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// New starts a fake printer and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Printer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &Printer{
		ln:    ln,
		frame: make([]byte, dymo.StatusFrameSize),
		conns: make(map[net.Conn]struct{}),
	}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(p.Close)
	return p
}

// Host returns the listening IP.
func (p *Printer) Host() string { return p.ln.Addr().(*net.TCPAddr).IP.String() }

// Port returns the listening port.
func (p *Printer) Port() int { return p.ln.Addr().(*net.TCPAddr).Port }

// Addr returns host:port.
func (p *Printer) Addr() string { return net.JoinHostPort(p.Host(), strconv.Itoa(p.Port())) }

// SetFrame sets the status frame returned for each request.
func (p *Printer) SetFrame(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = append([]byte(nil), frame...)
}

// SetSilent makes the printer ignore status requests.
func (p *Printer) SetSilent(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silent = v
}

// Received returns a copy of every byte received so far, across connections.
func (p *Printer) Received() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.received.Bytes()...)
}

// Accepts returns how many connections were accepted.
func (p *Printer) Accepts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepts
}

// StatusRequests returns how many status requests were seen.
func (p *Printer) StatusRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// WaitReceived blocks until at least n bytes arrived or fails the test.
func (p *Printer) WaitReceived(t testing.TB, n int) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if b := p.Received(); len(b) >= n {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("received %d bytes, want at least %d", len(p.Received()), n)
	return nil
}

// WaitAccepts blocks until at least n connections were accepted.
func (p *Printer) WaitAccepts(t testing.TB, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.Accepts() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("accepted %d connections, want %d", p.Accepts(), n)
}

// DropConnections closes every accepted connection from the printer side,
// leaving the listener open.
func (p *Printer) DropConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.conns {
		c.Close()
		delete(p.conns, c)
	}
}

// Close stops listening and drops every connection.
func (p *Printer) Close() {
	p.ln.Close()
	p.DropConnections()
	p.wg.Wait()
}

func (p *Printer) serve() {
	defer p.wg.Done()
	for {
		c, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.accepts++
		p.conns[c] = struct{}{}
		p.mu.Unlock()
		p.wg.Add(1)
		go p.handle(c)
	}
}

func (p *Printer) handle(c net.Conn) {
	defer p.wg.Done()
	defer c.Close()
	req := dymo.RequestStatus()
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.received.Write(buf[:n])
			frame, silent := p.frame, p.silent
			p.mu.Unlock()

			pending = append(pending, buf[:n]...)
			for {
				i := bytes.Index(pending, req)
				if i < 0 {
					break
				}
				pending = pending[i+len(req):]
				p.mu.Lock()
				p.requests++
				p.mu.Unlock()
				if !silent {
					c.Write(frame)
				}
			}
			if len(pending) > len(req) {
				pending = pending[len(pending)-len(req)+1:]
			}
		}
		if err != nil {
			return
		}
	}
}
