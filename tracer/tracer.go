package tracer

import (
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Pool keeps track of instantiated tracers so they can all be flushed and
// closed at shutdown.
var Pool = new(pool)

type pool struct {
	mu            sync.Mutex
	tracerClosers []io.Closer
}

// Close all tracer instances currently tracked by the pool.
func (p *pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for _, closer := range p.tracerClosers {
		if cErr := closer.Close(); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}

	p.tracerClosers = nil
	return err
}

// GetTracer returns a Jaeger tracer for serviceName configured from the
// standard JAEGER_* environment variables. Callers must call Pool.Close
// before exiting so that buffered spans are not lost.
func GetTracer(serviceName string) (opentracing.Tracer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.ServiceName = serviceName

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, err
	}

	Pool.mu.Lock()
	Pool.tracerClosers = append(Pool.tracerClosers, closer)
	Pool.mu.Unlock()
	return tracer, nil
}
