package index

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrNotFound is returned by stores when attempting to look up an
	// entry that does not exist.
	ErrNotFound = xerrors.New("not found")

	// ErrMissingID is returned when an action does not specify an entry ID.
	ErrMissingID = xerrors.New("action does not provide an entry ID")

	// ErrMissingIndex is returned when an action does not specify an index.
	ErrMissingIndex = xerrors.New("action does not provide an index name")

	// ErrUnknownScriptRule is returned when a merge update references a
	// rule that the store cannot evaluate.
	ErrUnknownScriptRule = xerrors.New("unknown script rule")

	// ErrUnknownOp is returned for actions with an unsupported OpType.
	ErrUnknownOp = xerrors.New("unknown action type")
)

// ItemError describes the rejection of a single action within a batch.
type ItemError struct {
	Op     OpType
	Index  string
	ID     string
	Type   string
	Reason string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s/%s: %s: %s", e.Op, e.Index, e.ID, e.Type, e.Reason)
}
