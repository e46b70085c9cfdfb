package index

// OpType describes the kind of mutation that an Action applies to an index
// entry.
type OpType uint8

const (
	// OpInsert creates a new entry or fully replaces an existing entry
	// with the same ID.
	OpInsert OpType = iota

	// OpMergeUpdate applies a Script to an existing entry. If the entry
	// does not exist, the Upsert document is installed instead.
	OpMergeUpdate

	// OpPartialUpdate overwrites the fields listed in Doc for an existing
	// entry and leaves every other field untouched. Partial updates for
	// entries that do not exist are dropped.
	OpPartialUpdate
)

func (op OpType) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpMergeUpdate:
		return "merge-update"
	case OpPartialUpdate:
		return "partial-update"
	default:
		return "unknown"
	}
}

// ScriptRule identifies a backend-evaluated update rule. Stores map each rule
// to their own scripting facility.
type ScriptRule string

const (
	// RuleMergeAnchors appends the "anchor" parameter to the anchors list
	// of an entry unless it is already present.
	RuleMergeAnchors ScriptRule = "merge-anchors"
)

// Script describes an update rule and the parameters for evaluating it.
type Script struct {
	Rule   ScriptRule
	Params map[string]interface{}
}

// Action describes a single index mutation request.
type Action struct {
	Op OpType

	// The index that the mutation targets.
	Index string

	// An optional entry type label.
	Type string

	// The ID of the affected index entry.
	ID string

	// The full entry contents for OpInsert.
	Source map[string]interface{}

	// The update rule for OpMergeUpdate and the document to install
	// when the entry does not exist yet.
	Script *Script
	Upsert map[string]interface{}

	// The fields to overwrite for OpPartialUpdate.
	Doc map[string]interface{}
}
