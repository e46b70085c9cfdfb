package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/linksrus/crawlindex/pipeline"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(PipelineTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type PipelineTestSuite struct{}

func (s *PipelineTestSuite) TestDataFlowPreservesOrder(c *gc.C) {
	src := &sourceStub{data: stringPayloads(20)}
	sink := new(sinkStub)

	err := pipeline.New(passThrough(nil), passThrough(nil)).Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.DeepEquals, src.data)
	assertAllProcessed(c, src.data)
}

func (s *PipelineTestSuite) TestPayloadsAreFetchedAfterPreviousOneIsConsumed(c *gc.C) {
	src := &sourceStub{data: stringPayloads(5)}
	sink := new(sinkStub)
	sink.onConsume = func(p pipeline.Payload) {
		c.Assert(src.index, gc.Equals, len(sink.data)+1, gc.Commentf("source advanced before payload %v was consumed", p))
	}

	err := pipeline.New(passThrough(nil)).Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.HasLen, 5)
}

func (s *PipelineTestSuite) TestProcessorErrorHandling(c *gc.C) {
	expErr := xerrors.New("some error")
	src := &sourceStub{data: stringPayloads(3)}
	sink := new(sinkStub)

	err := pipeline.New(passThrough(nil), passThrough(expErr)).Process(context.TODO(), src, sink)
	c.Assert(err, gc.ErrorMatches, "pipeline stage 1: some error")
	c.Assert(src.index, gc.Equals, 1, gc.Commentf("expected processing to stop at the first error"))
	c.Assert(sink.data, gc.HasLen, 0)
}

func (s *PipelineTestSuite) TestSourceErrorHandling(c *gc.C) {
	src := &sourceStub{data: stringPayloads(3), err: xerrors.New("some error")}

	err := pipeline.New(passThrough(nil)).Process(context.TODO(), src, new(sinkStub))
	c.Assert(err, gc.ErrorMatches, "pipeline source: some error")
}

func (s *PipelineTestSuite) TestSinkErrorHandling(c *gc.C) {
	src := &sourceStub{data: stringPayloads(3)}
	sink := &sinkStub{err: xerrors.New("some error")}

	err := pipeline.New(passThrough(nil)).Process(context.TODO(), src, sink)
	c.Assert(err, gc.ErrorMatches, "pipeline sink: some error")
	c.Assert(src.index, gc.Equals, 1)
}

func (s *PipelineTestSuite) TestPayloadDiscarding(c *gc.C) {
	drop := pipeline.ProcessorFunc(func(context.Context, pipeline.Payload) (pipeline.Payload, error) {
		return nil, nil
	})

	src := &sourceStub{data: stringPayloads(3)}
	sink := new(sinkStub)

	err := pipeline.New(drop).Process(context.TODO(), src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.HasLen, 0)
	assertAllProcessed(c, src.data)
}

func (s *PipelineTestSuite) TestCancelledContext(c *gc.C) {
	ctx, cancelFn := context.WithCancel(context.TODO())
	src := &sourceStub{data: stringPayloads(3)}
	sink := &sinkStub{onConsume: func(pipeline.Payload) { cancelFn() }}

	err := pipeline.New().Process(ctx, src, sink)
	c.Assert(err, gc.IsNil)
	c.Assert(sink.data, gc.HasLen, 1)
}

func assertAllProcessed(c *gc.C, payloads []pipeline.Payload) {
	for i, p := range payloads {
		payload := p.(*stringPayload)
		c.Assert(payload.processed, gc.Equals, true, gc.Commentf("payload %d not processed", i))
	}
}

func passThrough(err error) pipeline.Processor {
	return pipeline.ProcessorFunc(func(_ context.Context, p pipeline.Payload) (pipeline.Payload, error) {
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

type sourceStub struct {
	index int
	data  []pipeline.Payload
	err   error
}

func (s *sourceStub) Next(context.Context) bool {
	if s.err != nil || s.index == len(s.data) {
		return false
	}

	s.index++
	return true
}
func (s *sourceStub) Error() error { return s.err }
func (s *sourceStub) Payload() pipeline.Payload {
	return s.data[s.index-1]
}

type sinkStub struct {
	data      []pipeline.Payload
	err       error
	onConsume func(pipeline.Payload)
}

func (s *sinkStub) Consume(_ context.Context, p pipeline.Payload) error {
	if s.onConsume != nil {
		s.onConsume(p)
	}
	s.data = append(s.data, p)
	return s.err
}

type stringPayload struct {
	processed bool
	val       string
}

func (s *stringPayload) MarkAsProcessed() { s.processed = true }
func (s *stringPayload) String() string   { return s.val }

func stringPayloads(numValues int) []pipeline.Payload {
	out := make([]pipeline.Payload, numValues)
	for i := 0; i < len(out); i++ {
		out[i] = &stringPayload{val: fmt.Sprint(i)}
	}
	return out
}
