package printjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mzyy94/airlabel/internal/dymo"
	"github.com/mzyy94/airlabel/internal/printer"
)

// Router finds the connection for a printer. *printer.Registry implements it.
type Router interface {
	Route(id printer.Identity) (*printer.Connection, error)
}

// Notifier receives job lifecycle events. Calls must not block.
type Notifier interface {
	JobStarted(jobID string)
	JobProgress(jobID string, progress float64)
	JobCompleted(jobID string)
	JobCancelled(jobID string, err error)
}

// Options configures a Pipeline.
type Options struct {
	// SendLabelLength sends the label length command for the job's media
	// after the session configuration.
	SendLabelLength bool
	// ProofDir, when set, receives a PDF of the dots sent for each job.
	ProofDir string
	// DefaultMedia is used for jobs that do not name a media size.
	DefaultMedia string
}

// Pipeline runs print jobs, one worker per job.
type Pipeline struct {
	router   Router
	notifier Notifier
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewPipeline creates a Pipeline. notifier may be nil.
func NewPipeline(router Router, notifier Notifier, opts Options) *Pipeline {
	if opts.DefaultMedia == "" {
		opts.DefaultMedia = dymo.DefaultLabel
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		router:   router,
		notifier: notifier,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*Job),
	}
}

// Submit queues doc for the printer id (the selected printer when id is
// empty) and starts its worker. media names the label size; empty selects
// the default.
func (p *Pipeline) Submit(doc Document, id printer.Identity, media string) (*Job, error) {
	n := doc.PageCount()
	if n <= 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	if media == "" {
		media = p.opts.DefaultMedia
	}
	job := newJob(id, n, media)

	p.mu.Lock()
	p.jobs[job.id] = job
	p.mu.Unlock()

	slog.Info("print job queued", "job", job.id, "printer", id, "pages", n, "media", media)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(p.ctx, job, doc)
	}()
	return job, nil
}

// Job returns a submitted job.
func (p *Pipeline) Job(jobID string) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[jobID]
	return j, ok
}

// Jobs returns snapshots of every submitted job.
func (p *Pipeline) Jobs() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Snapshot, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j.Snapshot())
	}
	return out
}

// Cancel requests cancellation of a job.
func (p *Pipeline) Cancel(jobID string) error {
	j, ok := p.Job(jobID)
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	j.Cancel()
	slog.Info("print job cancel requested", "job", jobID)
	return nil
}

// Close stops every running job and waits for the workers to exit.
func (p *Pipeline) Close() {
	p.mu.Lock()
	for _, j := range p.jobs {
		j.Cancel()
	}
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

// Run prints doc as job and blocks until the job ends. The job's terminal
// state is set before Run returns.
func (p *Pipeline) Run(ctx context.Context, job *Job, doc Document) error {
	err := p.run(ctx, job, doc)
	switch {
	case err == nil:
		job.finish(StateComplete, nil)
		p.notifier.JobProgress(job.id, 1)
		p.notifier.JobCompleted(job.id)
		slog.Info("print job complete", "job", job.id)
	case errors.Is(err, ErrCancelled):
		job.finish(StateCancelled, err)
		p.notifier.JobCancelled(job.id, err)
		slog.Info("print job cancelled", "job", job.id)
	default:
		job.finish(StateFailed, err)
		p.notifier.JobCancelled(job.id, err)
		slog.Error("print job failed", "job", job.id, "err", err)
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, job *Job, doc Document) error {
	job.start()
	p.notifier.JobStarted(job.id)

	conn, err := p.router.Route(job.printer)
	if err != nil {
		return fmt.Errorf("route job: %w", err)
	}

	n := job.pages
	var rasters []*dymo.Raster
	for i := range n {
		if job.Cancelled() {
			return ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}

		start := time.Now()
		img, err := doc.RenderPage(ctx, i)
		if err != nil {
			return fmt.Errorf("render page %d: %w", i+1, err)
		}
		raster := dymo.PackMonochrome(RotateClockwise(img))
		raster.Index = i
		p.notifier.JobProgress(job.id, job.raiseProgress(0.5*float64(i+1)/float64(n)))

		if err := p.sendPage(ctx, conn, job, raster, i == n-1); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		p.notifier.JobProgress(job.id, job.addProgress(0.5/float64(n)))
		slog.Info("page printed", "job", job.id, "page", i+1, "of", n,
			"width", raster.Width, "height", raster.Height, "elapsed", time.Since(start))

		if p.opts.ProofDir != "" {
			rasters = append(rasters, raster)
		}
	}

	if len(rasters) > 0 {
		path, err := WriteProof(p.opts.ProofDir, job.id, rasters)
		if err != nil {
			slog.Warn("proof not written", "job", job.id, "err", err)
		} else {
			job.setProof(path)
			slog.Debug("proof written", "job", job.id, "path", path)
		}
	}
	return nil
}

// sendPage streams one page. The status handshake and every page command go
// out while the connection is held, so a status poll cannot land in between.
func (p *Pipeline) sendPage(ctx context.Context, conn *printer.Connection, job *Job, r *dymo.Raster, last bool) error {
	return conn.Exclusive(ctx, func(tx *printer.Tx) error {
		st, err := tx.ReadStatus()
		if err != nil {
			return fmt.Errorf("%w: %w", printer.ErrPrinterNotFound, err)
		}
		slog.Debug("printer ready for page", "job", job.id, "page", r.Index+1, "status", st)

		if r.Index == 0 {
			if err := tx.Send(dymo.SessionConfiguration()); err != nil {
				return err
			}
			if p.opts.SendLabelLength {
				if err := tx.Send(dymo.LengthCommandFor(job.media)); err != nil {
					return err
				}
			}
		}
		if err := tx.Send(dymo.LabelHeader(r.Index+1, uint32(r.Height), uint32(r.AdjustedWidth))); err != nil {
			return err
		}
		if err := tx.Send(r.Bits); err != nil {
			return err
		}
		feed := dymo.ShortFormFeed()
		if last {
			feed = dymo.FinalFeed()
		}
		if err := tx.Send(feed); err != nil {
			return err
		}
		tx.Probe()
		return nil
	})
}

type nopNotifier struct{}

func (nopNotifier) JobStarted(string)           {}
func (nopNotifier) JobProgress(string, float64) {}
func (nopNotifier) JobCompleted(string)         {}
func (nopNotifier) JobCancelled(string, error)  {}
