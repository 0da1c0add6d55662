// Package service is the host-facing surface of the print service: printer
// discovery and tracking, selection and print jobs.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mzyy94/airlabel/internal/config"
	"github.com/mzyy94/airlabel/internal/discovery"
	"github.com/mzyy94/airlabel/internal/dymo"
	"github.com/mzyy94/airlabel/internal/printer"
	"github.com/mzyy94/airlabel/internal/printjob"
)

// ErrUnsupportedPrinter is returned when tracking a printer whose name does
// not carry the vendor token.
var ErrUnsupportedPrinter = errors.New("unsupported printer")

// Host is what a print host needs from the service.
type Host interface {
	ListPrinters() []PrinterInfo
	TrackPrinter(ctx context.Context, id printer.Identity) error
	SubmitJob(ctx context.Context, doc printjob.Document, id printer.Identity, media string) (string, error)
	CancelJob(jobID string) error
}

var _ Host = (*Service)(nil)

// PrinterInfo is a known printer with its live state.
type PrinterInfo struct {
	printer.Endpoint
	Status     dymo.Status   `json:"status"`
	HostState  string        `json:"hostState"`
	Connection printer.State `json:"connection"`
	Selected   bool          `json:"selected"`
	Tracked    bool          `json:"tracked"`
}

// Options configures a Service.
type Options struct {
	PollInterval     time.Duration
	PollInitialDelay time.Duration
	Print            printjob.Options
}

// Service ties discovery, the connection registry and the print pipeline
// together and remembers discovered printers.
type Service struct {
	registry *printer.Registry
	disc     *discovery.Discoverer
	pipeline *printjob.Pipeline
	store    *config.Store
	opts     Options

	mu       sync.Mutex
	known    map[printer.Identity]printer.Endpoint
	tracking map[printer.Identity]context.CancelFunc
	lastErr  error
	wg       sync.WaitGroup
}

// New creates a Service printing through registry.
func New(registry *printer.Registry, disc *discovery.Discoverer, store *config.Store, opts Options) *Service {
	if opts.PollInterval == 0 {
		opts.PollInterval = printer.DefaultPollInterval
	}
	if opts.PollInitialDelay == 0 {
		opts.PollInitialDelay = printer.DefaultPollInitialDelay
	}
	s := &Service{
		registry: registry,
		disc:     disc,
		store:    store,
		opts:     opts,
		known:    make(map[printer.Identity]printer.Endpoint),
		tracking: make(map[printer.Identity]context.CancelFunc),
	}
	s.pipeline = printjob.NewPipeline(registry, s, opts.Print)
	return s
}

// AddPrinter makes ep known, refreshing the address of an existing entry.
func (s *Service) AddPrinter(ep printer.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.known[ep.ID]; ok {
		old.Host, old.Port = ep.Host, ep.Port
		s.known[ep.ID] = old
		return
	}
	s.known[ep.ID] = ep
}

// Printer returns a known printer.
func (s *Service) Printer(id printer.Identity) (printer.Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.known[id]
	return ep, ok
}

// HotStart offers the saved printer without browsing, when it is recent and
// reachable. The printer is connected and selected, so jobs submitted without
// a printer go to it.
func (s *Service) HotStart(ctx context.Context) (printer.Endpoint, bool) {
	lp, ok := s.store.LoadLastPrinter()
	if !ok {
		return printer.Endpoint{}, false
	}
	ep, ok := s.disc.HotStart(ctx, lp.Name, lp.Host, lp.Port, lp.SavedAt)
	if !ok {
		return printer.Endpoint{}, false
	}
	s.AddPrinter(ep)
	if err := s.SelectPrinter(ctx, ep.ID); err != nil {
		slog.Warn("saved printer not selected", "printer", ep.Name, "err", err)
	}
	return ep, true
}

// Discover runs one discovery cycle and adds what it finds. The first
// printer found is saved for the next hot start. A failed cycle still keeps
// the printers it found.
func (s *Service) Discover(ctx context.Context) ([]printer.Endpoint, error) {
	eps, err := s.disc.Run(ctx)
	for _, ep := range eps {
		s.AddPrinter(ep)
	}
	if len(eps) > 0 {
		s.savePrinter(eps[0])
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return eps, err
}

// LastDiscoveryError returns the error of the most recent discovery cycle.
func (s *Service) LastDiscoveryError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Validate probes every known printer and forgets the unreachable ones. It
// returns the identities removed.
func (s *Service) Validate(ctx context.Context) []printer.Identity {
	s.mu.Lock()
	eps := make([]printer.Endpoint, 0, len(s.known))
	for _, ep := range s.known {
		eps = append(eps, ep)
	}
	s.mu.Unlock()

	var removed []printer.Identity
	for res := range s.registry.ValidateReachability(ctx, eps) {
		if res.Reachable {
			continue
		}
		s.StopTracking(res.ID)
		s.mu.Lock()
		delete(s.known, res.ID)
		s.mu.Unlock()
		s.registry.Remove(res.ID)
		removed = append(removed, res.ID)
	}
	if len(removed) > 0 {
		slog.Info("removed unreachable printers", "count", len(removed))
	}
	return removed
}

// ListPrinters returns every known printer ordered by name.
func (s *Service) ListPrinters() []PrinterInfo {
	s.mu.Lock()
	out := make([]PrinterInfo, 0, len(s.known))
	for id, ep := range s.known {
		_, tracked := s.tracking[id]
		out = append(out, PrinterInfo{Endpoint: ep, Tracked: tracked})
	}
	s.mu.Unlock()

	selected := s.registry.Selected()
	for i := range out {
		st := s.registry.Status(out[i].ID)
		out[i].Status = st
		out[i].HostState = st.HostState()
		out[i].Selected = out[i].ID == selected
		out[i].Connection = printer.StateUninitialized
		if c, ok := s.registry.Connection(out[i].ID); ok {
			out[i].Connection = c.State()
		}
	}
	slices.SortFunc(out, func(a, b PrinterInfo) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// TrackPrinter connects to a known printer and starts status polling.
func (s *Service) TrackPrinter(ctx context.Context, id printer.Identity) error {
	ep, ok := s.Printer(id)
	if !ok {
		slog.Warn("tracking requested for undiscovered printer", "id", id)
		return fmt.Errorf("track %s: %w", id, printer.ErrPrinterNotFound)
	}
	if !s.disc.Matches(ep.Name) {
		slog.Warn("tracking requested for unknown printer model", "printer", ep.Name)
		return fmt.Errorf("track %q: %w", ep.Name, ErrUnsupportedPrinter)
	}
	s.savePrinter(ep)
	if _, err := s.registry.ConnectTo(ctx, ep); err != nil {
		return fmt.Errorf("track %q: %w", ep.Name, err)
	}

	s.mu.Lock()
	if cancel, ok := s.tracking[id]; ok {
		cancel()
	}
	tctx, cancel := context.WithCancel(context.Background())
	s.tracking[id] = cancel
	s.mu.Unlock()

	ch, unsubscribe := s.registry.Track(id, s.opts.PollInterval, s.opts.PollInitialDelay)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		last := dymo.Status(-1)
		for {
			select {
			case <-tctx.Done():
				return
			case st, ok := <-ch:
				if !ok {
					return
				}
				if st != last {
					slog.Info("printer status", "printer", ep.Name, "status", st, "state", st.HostState())
					last = st
				}
			}
		}
	}()
	slog.Info("tracking printer", "printer", ep.Name, "addr", ep.Addr())
	return nil
}

// StopTracking stops status polling for a printer.
func (s *Service) StopTracking(id printer.Identity) {
	s.mu.Lock()
	cancel, ok := s.tracking[id]
	delete(s.tracking, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	s.registry.StopTracking(id)
}

// SelectPrinter connects to a known printer and makes it the target of jobs
// submitted without a printer.
func (s *Service) SelectPrinter(ctx context.Context, id printer.Identity) error {
	ep, ok := s.Printer(id)
	if !ok {
		return fmt.Errorf("select %s: %w", id, printer.ErrPrinterNotFound)
	}
	if _, err := s.registry.ConnectTo(ctx, ep); err != nil {
		return fmt.Errorf("select %q: %w", ep.Name, err)
	}
	if err := s.registry.Select(id); err != nil {
		return fmt.Errorf("select %q: %w", ep.Name, err)
	}
	slog.Info("printer selected", "printer", ep.Name)
	return nil
}

// SubmitJob starts printing doc on printer id, or on the selected printer
// when id is empty, and returns the job id.
func (s *Service) SubmitJob(ctx context.Context, doc printjob.Document, id printer.Identity, media string) (string, error) {
	if id == "" {
		id = s.registry.Selected()
		if id == "" {
			return "", printer.ErrNoRoute
		}
	}
	if _, connected := s.registry.Connection(id); !connected {
		ep, ok := s.Printer(id)
		if !ok {
			return "", fmt.Errorf("submit job: %w", printer.ErrPrinterNotFound)
		}
		if _, err := s.registry.ConnectTo(ctx, ep); err != nil {
			return "", fmt.Errorf("submit job: %w", err)
		}
	}
	if media == "" {
		media = s.store.Media()
	}
	job, err := s.pipeline.Submit(doc, id, media)
	if err != nil {
		return "", err
	}
	return job.ID(), nil
}

// CancelJob cancels a print job.
func (s *Service) CancelJob(jobID string) error {
	return s.pipeline.Cancel(jobID)
}

// Job returns the state of a print job.
func (s *Service) Job(jobID string) (printjob.Snapshot, bool) {
	j, ok := s.pipeline.Job(jobID)
	if !ok {
		return printjob.Snapshot{}, false
	}
	return j.Snapshot(), true
}

// Jobs returns the state of every print job.
func (s *Service) Jobs() []printjob.Snapshot {
	jobs := s.pipeline.Jobs()
	slices.SortFunc(jobs, func(a, b printjob.Snapshot) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) })
	return jobs
}

// PrinterStatus returns the last known status of a printer.
func (s *Service) PrinterStatus(id printer.Identity) dymo.Status {
	return s.registry.Status(id)
}

// Capabilities returns what every supported printer can print.
func (s *Service) Capabilities() dymo.Capabilities {
	c := dymo.DefaultCapabilities()
	if m := s.store.Media(); m != "" {
		if _, ok := dymo.LookupLabel(m); ok {
			c.DefaultMedia = m
		}
	}
	return c
}

// SetDefaultMedia saves the media size used by jobs that name none.
func (s *Service) SetDefaultMedia(media string) error {
	l, ok := dymo.LookupLabel(media)
	if !ok {
		return fmt.Errorf("unknown media %q", media)
	}
	return s.store.SetMedia(l.Name)
}

// Close stops every job and tracker and closes all printer connections.
func (s *Service) Close() error {
	s.pipeline.Close()
	s.mu.Lock()
	for id, cancel := range s.tracking {
		cancel()
		delete(s.tracking, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.registry.Teardown()
	return nil
}

// JobStarted, JobProgress, JobCompleted and JobCancelled log the job
// lifecycle; Service is the pipeline's notifier.
func (s *Service) JobStarted(jobID string) {
	slog.Info("print job started", "job", jobID)
}

func (s *Service) JobProgress(jobID string, progress float64) {
	slog.Debug("print job progress", "job", jobID, "progress", progress)
}

func (s *Service) JobCompleted(jobID string) {
	slog.Info("print job completed", "job", jobID)
}

func (s *Service) JobCancelled(jobID string, err error) {
	slog.Warn("print job cancelled", "job", jobID, "err", err)
}

func (s *Service) savePrinter(ep printer.Endpoint) {
	if err := s.store.SaveLastPrinter(ep.Name, ep.Host, ep.Port); err != nil {
		slog.Warn("failed to save printer", "printer", ep.Name, "err", err)
	}
}
