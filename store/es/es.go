package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch"
	"github.com/elastic/go-elasticsearch/esapi"
	"github.com/hashicorp/go-multierror"
	"github.com/linksrus/crawlindex/index"
	"golang.org/x/xerrors"
)

var esMappings = `
{
  "mappings" : {
    "properties": {
      "url": {"type": "keyword"},
      "domain": {"type": "keyword"},
      "anchors": {"type": "text"},
      "title": {"type": "text"},
      "content": {"type": "text"},
      "authority": {"type": "double"},
      "updated_on": {"type": "date", "format": "strict_date_hour_minute_second"}
    }
  }
}`

// Painless sources for each supported update rule.
var scriptSources = map[index.ScriptRule]string{
	index.RuleMergeAnchors: `if (ctx._source.anchors == null) { ctx._source.anchors = [params.anchor] } ` +
		`else { ctx._source.anchors.add(params.anchor); ` +
		`ctx._source.anchors = ctx._source.anchors.stream().distinct().collect(Collectors.toList()) }`,
}

type esBulkRes struct {
	Errors bool                       `json:"errors"`
	Items  []map[string]esBulkResItem `json:"items"`
}

type esBulkResItem struct {
	Index  string   `json:"_index"`
	ID     string   `json:"_id"`
	Status int      `json:"status"`
	Error  *esError `json:"error,omitempty"`
}

type esMgetRes struct {
	Docs []esGetRes `json:"docs"`
}

type esGetRes struct {
	Index  string                 `json:"_index"`
	ID     string                 `json:"_id"`
	Found  bool                   `json:"found"`
	Source map[string]interface{} `json:"_source"`
	Error  *esError               `json:"error,omitempty"`
}

type esErrorRes struct {
	Error esError `json:"error"`
}

type esError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e esError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// Compile-time check to ensure ElasticSearchStore implements BatchSender.
var _ index.BatchSender = (*ElasticSearchStore)(nil)

// ElasticSearchStore is a BatchSender implementation that applies batches of
// actions to an elasticsearch cluster using the bulk API.
type ElasticSearchStore struct {
	es         *elasticsearch.Client
	refreshOpt func(*esapi.BulkRequest)
}

// NewElasticSearchStore creates a store that sends batches to the
// elasticsearch nodes in esNodes. If syncUpdates is true, each bulk request
// blocks until its changes are visible to searches.
func NewElasticSearchStore(esNodes []string, syncUpdates bool) (*ElasticSearchStore, error) {
	cfg := elasticsearch.Config{
		Addresses: esNodes,
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	refreshOpt := es.Bulk.WithRefresh("false")
	if syncUpdates {
		refreshOpt = es.Bulk.WithRefresh("true")
	}

	return &ElasticSearchStore{
		es:         es,
		refreshOpt: refreshOpt,
	}, nil
}

// EnsureIndex creates the named index with the crawl entry mappings unless
// it already exists.
func (s *ElasticSearchStore) EnsureIndex(name string) error {
	mappingsReader := strings.NewReader(esMappings)
	res, err := s.es.Indices.Create(name, s.es.Indices.Create.WithBody(mappingsReader))
	if err != nil {
		return xerrors.Errorf("cannot create ES index: %w", err)
	} else if res.IsError() {
		err := unmarshalError(res)
		if esErr, valid := err.(esError); valid && esErr.Type == "resource_already_exists_exception" {
			return nil
		}
		return xerrors.Errorf("cannot create ES index: %w", err)
	}

	_ = res.Body.Close()
	return nil
}

// SendBatch encodes batch as a single bulk request. Per-action rejections
// are returned as *index.ItemError values wrapped in a multi-error. Partial
// updates targeting missing documents are not treated as errors.
func (s *ElasticSearchStore) SendBatch(ctx context.Context, batch []*index.Action) error {
	if len(batch) == 0 {
		return nil
	}

	body, err := encodeBulkBody(batch)
	if err != nil {
		return xerrors.Errorf("send batch: %w", err)
	}

	res, err := s.es.Bulk(body, s.es.Bulk.WithContext(ctx), s.refreshOpt)
	if err != nil {
		return xerrors.Errorf("send batch: %w", err)
	}

	var bulkRes esBulkRes
	if err = unmarshalResponse(res, &bulkRes); err != nil {
		return xerrors.Errorf("send batch: %w", err)
	}

	return bulkItemErrors(batch, &bulkRes)
}

// FindByID looks up an entry by its index name and ID.
func (s *ElasticSearchStore) FindByID(indexName, id string) (*index.Entry, error) {
	// Authority entries use raw URLs as IDs. The multi-get API takes IDs in
	// the request body so they never need to be encoded into the path.
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]interface{}{"ids": []string{id}}); err != nil {
		return nil, xerrors.Errorf("find by ID: %w", err)
	}

	res, err := s.es.Mget(&buf, s.es.Mget.WithIndex(indexName))
	if err != nil {
		return nil, xerrors.Errorf("find by ID: %w", err)
	} else if res.StatusCode == http.StatusNotFound {
		_ = res.Body.Close()
		return nil, xerrors.Errorf("find by ID: %w", index.ErrNotFound)
	}

	var mgetRes esMgetRes
	if err = unmarshalResponse(res, &mgetRes); err != nil {
		return nil, xerrors.Errorf("find by ID: %w", err)
	} else if len(mgetRes.Docs) != 1 {
		return nil, xerrors.Errorf("find by ID: expected 1 document in response; got %d", len(mgetRes.Docs))
	}

	doc := mgetRes.Docs[0]
	switch {
	case doc.Error != nil && doc.Error.Type == "index_not_found_exception":
		return nil, xerrors.Errorf("find by ID: %w", index.ErrNotFound)
	case doc.Error != nil:
		return nil, xerrors.Errorf("find by ID: %w", *doc.Error)
	case !doc.Found:
		return nil, xerrors.Errorf("find by ID: %w", index.ErrNotFound)
	}

	return &index.Entry{Index: doc.Index, ID: doc.ID, Fields: doc.Source}, nil
}

// encodeBulkBody renders batch in the newline-delimited format expected by
// the bulk API.
func encodeBulkBody(batch []*index.Action) (*bytes.Buffer, error) {
	var (
		buf bytes.Buffer
		enc = json.NewEncoder(&buf)
	)

	for _, act := range batch {
		if act.Index == "" {
			return nil, xerrors.Errorf("%s %q: %w", act.Op, act.ID, index.ErrMissingIndex)
		} else if act.ID == "" {
			return nil, xerrors.Errorf("%s %s: %w", act.Op, act.Index, index.ErrMissingID)
		}

		meta := map[string]interface{}{
			"_index": act.Index,
			"_id":    act.ID,
		}
		if act.Type != "" {
			meta["_type"] = act.Type
		}

		var opName string
		var payload map[string]interface{}
		switch act.Op {
		case index.OpInsert:
			opName, payload = "index", act.Source
		case index.OpMergeUpdate:
			if act.Script == nil {
				return nil, xerrors.Errorf("%s %s/%s: %w", act.Op, act.Index, act.ID, index.ErrUnknownScriptRule)
			}
			src, found := scriptSources[act.Script.Rule]
			if !found {
				return nil, xerrors.Errorf("%s %s/%s: %w", act.Op, act.Index, act.ID, index.ErrUnknownScriptRule)
			}
			opName = "update"
			payload = map[string]interface{}{
				"script": map[string]interface{}{
					"source": src,
					"lang":   "painless",
					"params": act.Script.Params,
				},
				"upsert": act.Upsert,
			}
		case index.OpPartialUpdate:
			opName = "update"
			payload = map[string]interface{}{"doc": act.Doc}
		default:
			return nil, xerrors.Errorf("%s %s/%s: %w", act.Op, act.Index, act.ID, index.ErrUnknownOp)
		}

		if err := enc.Encode(map[string]interface{}{opName: meta}); err != nil {
			return nil, err
		}
		if err := enc.Encode(payload); err != nil {
			return nil, err
		}
	}

	return &buf, nil
}

// bulkItemErrors matches the per-item results of a bulk response against the
// actions of the batch that produced it.
func bulkItemErrors(batch []*index.Action, res *esBulkRes) error {
	if !res.Errors {
		return nil
	}

	var err error
	for i, item := range res.Items {
		for _, status := range item {
			if status.Error == nil {
				continue
			}

			var op index.OpType
			if i < len(batch) {
				op = batch[i].Op
			}
			if op == index.OpPartialUpdate && status.Error.Type == "document_missing_exception" {
				continue
			}

			err = multierror.Append(err, &index.ItemError{
				Op:     op,
				Index:  status.Index,
				ID:     status.ID,
				Type:   status.Error.Type,
				Reason: status.Error.Reason,
			})
		}
	}
	return err
}

func unmarshalError(res *esapi.Response) error {
	return unmarshalResponse(res, nil)
}

func unmarshalResponse(res *esapi.Response, to interface{}) error {
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errRes esErrorRes
		if err := json.NewDecoder(res.Body).Decode(&errRes); err != nil {
			return err
		}

		return errRes.Error
	}

	return json.NewDecoder(res.Body).Decode(to)
}
