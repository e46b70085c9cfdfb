package dispatch

import (
	"context"
	"io/ioutil"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/linksrus/crawlindex/index"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/linksrus/crawlindex/index BatchSender

// DefaultThreshold is the number of pending actions that triggers a flush
// when Config.Threshold is not set.
const DefaultThreshold = 500

// ErrClosed is returned when submitting actions to a closed Dispatcher.
var ErrClosed = xerrors.New("dispatcher is closed")

// Config encapsulates the settings for configuring a Dispatcher.
type Config struct {
	// The backend that receives flushed batches.
	Sender index.BatchSender

	// The number of pending actions that triggers a flush. If not
	// specified, DefaultThreshold will be used instead.
	Threshold int

	// The tracer for flush spans. If not specified, the global tracer
	// will be used instead.
	Tracer opentracing.Tracer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Sender == nil {
		err = multierror.Append(err, xerrors.Errorf("batch sender has not been provided"))
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	} else if cfg.Threshold < 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for flush threshold"))
	}
	if cfg.Tracer == nil {
		cfg.Tracer = opentracing.GlobalTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Dispatcher buffers index actions and sends them to the backend in batches.
//
// Failed batches are neither retried nor re-queued: the buffer is cleared
// whenever a send is attempted and the error is returned to the caller.
// Callers that cannot tolerate data loss must re-submit the affected records
// themselves.
type Dispatcher struct {
	cfg Config

	mu      sync.Mutex
	pending []*index.Action
	closed  bool
}

// New returns a new Dispatcher instance with the specified config.
func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("dispatcher: config validation failed: %w", err)
	}

	return &Dispatcher{
		cfg:     cfg,
		pending: make([]*index.Action, 0, cfg.Threshold),
	}, nil
}

// Submit appends act to the pending batch. If the number of pending actions
// reaches the configured threshold, the batch is flushed before Submit
// returns.
func (d *Dispatcher) Submit(ctx context.Context, act *index.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return xerrors.Errorf("submit: %w", ErrClosed)
	}

	d.pending = append(d.pending, act)
	if len(d.pending) < d.cfg.Threshold {
		return nil
	}
	return d.flushLocked(ctx)
}

// Flush sends all pending actions to the backend as a single batch.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked(ctx)
}

// Close flushes any pending actions and prevents further submissions.
// Calling Close on a closed Dispatcher is a no-op.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.flushLocked(ctx)
}

// Pending returns the number of buffered actions.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) flushLocked(ctx context.Context) error {
	if len(d.pending) == 0 {
		return nil
	}

	batch := d.pending
	d.pending = make([]*index.Action, 0, d.cfg.Threshold)

	batchID := uuid.New().String()
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, d.cfg.Tracer, "dispatch.flush")
	span.SetTag("batch_id", batchID)
	span.SetTag("batch_size", len(batch))
	defer span.Finish()

	logger := d.cfg.Logger.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"batch_size": len(batch),
	})

	startAt := time.Now()
	err := d.cfg.Sender.SendBatch(ctx, batch)
	flushDuration.Observe(time.Since(startAt).Seconds())
	batchesTotal.Inc()
	actionsTotal.Add(float64(len(batch)))

	if err != nil {
		failedBatchesTotal.Inc()
		ext.Error.Set(span, true)
		span.SetTag("error.message", err.Error())
		logger.WithField("err", err).Error("batch rejected by search backend")
		return xerrors.Errorf("flush: %w", err)
	}

	logger.WithField("elapsed_time", time.Since(startAt).String()).Debug("flushed batch")
	return nil
}
