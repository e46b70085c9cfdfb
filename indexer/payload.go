package indexer

import (
	"sync"

	"github.com/linksrus/crawlindex/index"
	"github.com/linksrus/crawlindex/pipeline"
	"github.com/linksrus/crawlindex/record"
)

var (
	_ pipeline.Payload = (*recordPayload)(nil)

	payloadPool = sync.Pool{
		New: func() interface{} { return new(recordPayload) },
	}
)

type recordPayload struct {
	Record record.Record
	Action *index.Action
}

// MarkAsProcessed implements pipeline.Payload
func (p *recordPayload) MarkAsProcessed() {
	p.Record = nil
	p.Action = nil
	payloadPool.Put(p)
}
