package indexer

import (
	"context"
	"io/ioutil"

	"github.com/hashicorp/go-multierror"
	"github.com/linksrus/crawlindex/index"
	"github.com/linksrus/crawlindex/pipeline"
	"github.com/linksrus/crawlindex/record"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// RecordIterator is implemented by objects that yield crawler records one at
// a time.
type RecordIterator interface {
	// Next advances the iterator. It returns false if no more records are
	// available or an error occurs.
	Next() bool

	// Record returns the current record.
	Record() record.Record

	// Error returns the last error encountered by the iterator.
	Error() error
}

// Translator is implemented by objects that convert records into index
// actions.
type Translator interface {
	Translate(rec record.Record) (*index.Action, bool)
}

// Dispatcher is implemented by objects that buffer index actions and send
// them to a search backend.
type Dispatcher interface {
	Submit(ctx context.Context, act *index.Action) error
	Close(ctx context.Context) error
}

// Config encapsulates the settings for configuring an Indexer.
type Config struct {
	// Converts records into index actions.
	Translator Translator

	// Receives the translated actions.
	Dispatcher Dispatcher

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Translator == nil {
		err = multierror.Append(err, xerrors.Errorf("translator has not been provided"))
	}
	if cfg.Dispatcher == nil {
		err = multierror.Append(err, xerrors.Errorf("dispatcher has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Stats summarizes a completed Index call.
type Stats struct {
	// The number of records read from the iterator.
	Received int

	// The number of actions handed to the dispatcher.
	Submitted int

	// The number of records skipped because their kind is not indexable.
	Skipped int
}

// Indexer implements the indexing stage of the crawl pipeline:
//
//   - Translate each incoming record into an index action.
//   - Hand the action to the dispatcher, which flushes it to the search
//     backend in batches.
//   - Drain the dispatcher once the record stream ends.
type Indexer struct {
	cfg Config
}

// New returns a new Indexer instance with the specified config.
func New(cfg Config) (*Indexer, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("indexer: config validation failed: %w", err)
	}

	return &Indexer{cfg: cfg}, nil
}

// Index sends every record yielded by it through the indexing pipeline. Calls
// to Index block until the iterator is exhausted, an error occurs or ctx is
// cancelled.
//
// Records are handled one at a time: a record is translated, submitted and,
// if that fills the dispatcher, flushed before the next record is read.
//
// The dispatcher is always closed before Index returns so that actions
// buffered below the flush threshold are sent even if the run was aborted.
// Closing uses a fresh context as ctx may already be cancelled at that point.
func (i *Indexer) Index(ctx context.Context, it RecordIterator) (Stats, error) {
	var (
		src   = &recordSource{it: it}
		stage = &translateStage{translator: i.cfg.Translator, logger: i.cfg.Logger}
		sink  = &dispatchSink{dispatcher: i.cfg.Dispatcher}
	)

	err := pipeline.New(stage).Process(ctx, src, sink)
	if err != nil {
		err = xerrors.Errorf("indexer: %w", err)
	}

	if closeErr := i.cfg.Dispatcher.Close(context.Background()); closeErr != nil {
		err = multierror.Append(err, xerrors.Errorf("indexer: draining dispatcher: %w", closeErr))
	}

	stats := Stats{
		Received:  src.count,
		Submitted: sink.count,
		Skipped:   stage.skipped,
	}
	i.cfg.Logger.WithFields(logrus.Fields{
		"received":  stats.Received,
		"submitted": stats.Submitted,
		"skipped":   stats.Skipped,
	}).Info("completed indexing pass")

	return stats, err
}

type recordSource struct {
	it    RecordIterator
	count int
}

func (s *recordSource) Error() error              { return s.it.Error() }
func (s *recordSource) Next(context.Context) bool { return s.it.Next() }
func (s *recordSource) Payload() pipeline.Payload {
	s.count++
	p := payloadPool.Get().(*recordPayload)
	p.Record = s.it.Record()
	return p
}

type translateStage struct {
	translator Translator
	logger     *logrus.Entry
	skipped    int
}

func (ts *translateStage) Process(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
	payload := p.(*recordPayload)

	act, ok := ts.translator.Translate(payload.Record)
	if !ok {
		ts.skipped++
		if payload.Record != nil {
			ts.logger.WithField("kind", payload.Record.Kind().String()).Debug("skipping record that cannot be indexed")
		}
		return nil, nil
	}

	payload.Action = act
	return payload, nil
}

type dispatchSink struct {
	dispatcher Dispatcher
	count      int
}

func (s *dispatchSink) Consume(ctx context.Context, p pipeline.Payload) error {
	if err := s.dispatcher.Submit(ctx, p.(*recordPayload).Action); err != nil {
		return err
	}
	s.count++
	return nil
}
