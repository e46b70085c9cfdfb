package pipeline

import "context"

// Payload is implemented by values that flow through a pipeline.
type Payload interface {
	// MarkAsProcessed is invoked by the pipeline once the payload has
	// been consumed by the sink or dropped by one of the processors.
	MarkAsProcessed()
}

// Processor is implemented by types that transform payloads as they travel
// through a pipeline.
type Processor interface {
	// Process operates on the input payload and returns the payload to
	// forward to the next stage. Returning a nil payload drops the input
	// from the rest of the pipeline.
	Process(context.Context, Payload) (Payload, error)
}

// ProcessorFunc is an adapter to allow the use of plain functions as Processor
// instances.
type ProcessorFunc func(context.Context, Payload) (Payload, error)

// Process calls f(ctx, p).
func (f ProcessorFunc) Process(ctx context.Context, p Payload) (Payload, error) {
	return f(ctx, p)
}

// Source is implemented by types that generate the payloads fed to a
// Pipeline.
type Source interface {
	// Next fetches the next payload from the source. It returns false if
	// no more payloads are available or an error occurs.
	Next(context.Context) bool

	// Payload returns the payload fetched by the last call to Next.
	Payload() Payload

	// Error returns the last error observed by the source.
	Error() error
}

// Sink is implemented by types that operate as the tail of a pipeline.
type Sink interface {
	// Consume processes a payload emitted by the last pipeline processor.
	Consume(context.Context, Payload) error
}
