package index

import "context"

// BatchSender is implemented by search backends that can apply a batch of
// actions in a single operation.
type BatchSender interface {
	// SendBatch applies the provided actions in order. Implementations
	// do not retry failed actions; an error is returned if the batch
	// could not be sent or any of its actions was rejected.
	SendBatch(ctx context.Context, batch []*Action) error
}

// Entry describes an index entry as stored by a search backend.
type Entry struct {
	Index  string
	ID     string
	Fields map[string]interface{}
}
