package tracer

import (
	"os"
	"testing"

	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(TracerTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type TracerTestSuite struct{}

func (s *TracerTestSuite) TestGetTracerAndClose(c *gc.C) {
	// Keep the reporter from dialing a real agent.
	c.Assert(os.Setenv("JAEGER_DISABLED", "true"), gc.IsNil)
	defer func() { _ = os.Unsetenv("JAEGER_DISABLED") }()

	tr, err := GetTracer("crawlindex-test")
	c.Assert(err, gc.IsNil)
	c.Assert(tr, gc.Not(gc.IsNil))

	tr.StartSpan("test").Finish()
	c.Assert(Pool.tracerClosers, gc.HasLen, 1)

	c.Assert(Pool.Close(), gc.IsNil)
	c.Assert(Pool.tracerClosers, gc.HasLen, 0)
}
