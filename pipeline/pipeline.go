package pipeline

import (
	"context"

	"golang.org/x/xerrors"
)

// Pipeline connects a source, zero or more processors and a sink. It runs
// entirely in the calling go-routine: each payload is passed through every
// processor and handed to the sink before the next payload is requested from
// the source, so the processing of two payloads never overlaps.
type Pipeline struct {
	procs []Processor
}

// New returns a new pipeline instance where input payloads will be handled by
// each one of the specified processors in order.
func New(procs ...Processor) *Pipeline {
	return &Pipeline{procs: procs}
}

// Process reads the contents of source one payload at a time, sends each
// payload through the processors and hands the result to sink. Calls to
// Process block until the source is exhausted, an error occurs or ctx
// expires. Processing stops at the first error, which is annotated with the
// pipeline component that reported it.
func (p *Pipeline) Process(ctx context.Context, source Source, sink Sink) error {
	for ctx.Err() == nil && source.Next(ctx) {
		if err := p.processOne(ctx, source.Payload(), sink); err != nil {
			return err
		}
	}

	if err := source.Error(); err != nil {
		return xerrors.Errorf("pipeline source: %w", err)
	}
	return nil
}

func (p *Pipeline) processOne(ctx context.Context, payload Payload, sink Sink) error {
	for stageIndex, proc := range p.procs {
		out, err := proc.Process(ctx, payload)
		if err != nil {
			return xerrors.Errorf("pipeline stage %d: %w", stageIndex, err)
		}

		// Dropped payloads never reach the sink.
		if out == nil {
			payload.MarkAsProcessed()
			return nil
		}
		payload = out
	}

	if err := sink.Consume(ctx, payload); err != nil {
		return xerrors.Errorf("pipeline sink: %w", err)
	}
	payload.MarkAsProcessed()
	return nil
}
