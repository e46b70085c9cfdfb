package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/linksrus/crawlindex/index"
	"golang.org/x/xerrors"
)

// Compile-time check to ensure InMemoryBleveStore implements BatchSender.
var _ index.BatchSender = (*InMemoryBleveStore)(nil)

// InMemoryBleveStore is a BatchSender implementation that keeps index entries
// in memory and uses a bleve instance to search them. It applies actions with
// the same semantics as the Elasticsearch store.
type InMemoryBleveStore struct {
	mu      sync.RWMutex
	entries map[string]*index.Entry

	idx bleve.Index
}

// NewInMemoryBleveStore creates a store that uses an in-memory bleve instance
// for indexing entries.
func NewInMemoryBleveStore() (*InMemoryBleveStore, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, err
	}

	return &InMemoryBleveStore{
		idx:     idx,
		entries: make(map[string]*index.Entry),
	}, nil
}

// Close the store and release any allocated resources.
func (s *InMemoryBleveStore) Close() error {
	return s.idx.Close()
}

// SendBatch applies each action in batch in order. Rejected actions do not
// prevent the remaining actions from being applied; all rejections are
// reported in the returned error.
func (s *InMemoryBleveStore) SendBatch(ctx context.Context, batch []*index.Action) error {
	if err := ctx.Err(); err != nil {
		return xerrors.Errorf("send batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, act := range batch {
		if actErr := s.apply(act); actErr != nil {
			err = multierror.Append(err, xerrors.Errorf("%s %s/%s: %w", act.Op, act.Index, act.ID, actErr))
		}
	}
	return err
}

func (s *InMemoryBleveStore) apply(act *index.Action) error {
	if act.Index == "" {
		return index.ErrMissingIndex
	} else if act.ID == "" {
		return index.ErrMissingID
	}

	key := entryKey(act.Index, act.ID)
	existing := s.entries[key]

	var (
		fields map[string]interface{}
		err    error
	)
	switch act.Op {
	case index.OpInsert:
		fields, err = cloneFields(act.Source)
	case index.OpMergeUpdate:
		if act.Script == nil || act.Script.Rule != index.RuleMergeAnchors {
			return index.ErrUnknownScriptRule
		}
		if existing == nil {
			fields, err = cloneFields(act.Upsert)
			break
		}
		if fields, err = cloneFields(existing.Fields); err != nil {
			break
		}
		fields["anchors"] = mergeAnchor(fields["anchors"], act.Script.Params["anchor"])
	case index.OpPartialUpdate:
		// Partial updates never create entries.
		if existing == nil {
			return nil
		}
		var doc map[string]interface{}
		if doc, err = cloneFields(act.Doc); err != nil {
			break
		}
		if fields, err = cloneFields(existing.Fields); err != nil {
			break
		}
		for k, v := range doc {
			fields[k] = v
		}
	default:
		return index.ErrUnknownOp
	}
	if err != nil {
		return err
	}

	// The stored entry is only replaced once bleve accepted the new fields.
	if err = s.idx.Index(key, fields); err != nil {
		return err
	}
	s.entries[key] = &index.Entry{Index: act.Index, ID: act.ID, Fields: fields}
	return nil
}

// FindByID looks up an entry by its index name and ID.
func (s *InMemoryBleveStore) FindByID(indexName, id string) (*index.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, found := s.entries[entryKey(indexName, id)]
	if !found {
		return nil, xerrors.Errorf("find by ID: %w", index.ErrNotFound)
	}
	return copyEntry(entry)
}

// Search returns up to size entries whose fields match the provided
// expression, starting at offset.
func (s *InMemoryBleveStore) Search(expression string, offset, size int) ([]*index.Entry, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(expression), size, offset, false)
	rs, err := s.idx.Search(req)
	if err != nil {
		return nil, xerrors.Errorf("search: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*index.Entry, 0, len(rs.Hits))
	for _, hit := range rs.Hits {
		entry, found := s.entries[hit.ID]
		if !found {
			continue
		}
		cp, err := copyEntry(entry)
		if err != nil {
			return nil, xerrors.Errorf("search: %w", err)
		}
		results = append(results, cp)
	}
	return results, nil
}

// Count returns the number of entries in the store.
func (s *InMemoryBleveStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func entryKey(indexName, id string) string {
	return indexName + "/" + id
}

// mergeAnchor appends anchor to anchors and removes duplicate string values
// from the result, keeping the first occurrence of each.
func mergeAnchor(anchors, anchor interface{}) []interface{} {
	list, _ := anchors.([]interface{})
	merged := make([]interface{}, 0, len(list)+1)
	seen := make(map[string]struct{}, len(list)+1)
	for _, v := range append(list[:len(list):len(list)], anchor) {
		if str, ok := v.(string); ok {
			if _, dup := seen[str]; dup {
				continue
			}
			seen[str] = struct{}{}
		}
		merged = append(merged, v)
	}
	return merged
}

func copyEntry(e *index.Entry) (*index.Entry, error) {
	fields, err := cloneFields(e.Fields)
	if err != nil {
		return nil, err
	}
	return &index.Entry{Index: e.Index, ID: e.ID, Fields: fields}, nil
}

// cloneFields deep-copies fields by round-tripping them through JSON so that
// stored values have the same shape as documents returned by Elasticsearch.
func cloneFields(fields map[string]interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err = json.Unmarshal(data, &out); err != nil {
		return nil, err
	} else if out == nil {
		out = make(map[string]interface{})
	}
	return out, nil
}
