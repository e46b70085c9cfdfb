package indextest

import (
	"context"
	"sort"

	"github.com/linksrus/crawlindex/index"
	"github.com/linksrus/crawlindex/record"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

// The index name used by all tests in the suite.
const testIndex = "crawlindex-test"

// Store is implemented by search backends that can be verified by SuiteBase.
type Store interface {
	index.BatchSender

	// FindByID looks up an entry by its index name and ID.
	FindByID(indexName, id string) (*index.Entry, error)
}

// SuiteBase defines a re-usable set of store-related tests that can be
// executed against any type that implements Store.
type SuiteBase struct {
	store Store
}

// SetStore configures the test-suite to run all tests against store.
func (s *SuiteBase) SetStore(store Store) {
	s.store = store
}

// IndexName returns the index name that the suite writes to.
func (s *SuiteBase) IndexName() string { return testIndex }

// TestInsertReplacesEntry verifies that inserting a document with an existing
// ID fully replaces the previous entry.
func (s *SuiteBase) TestInsertReplacesEntry(c *gc.C) {
	url := "http://example.com/"
	s.send(c,
		insert(url, map[string]interface{}{"title": "Illustrious examples", "lang": "en"}),
	)
	s.send(c,
		insert(url, map[string]interface{}{"title": "A more exciting title"}),
	)

	entry := s.find(c, record.HashID(url))
	c.Assert(entry.Fields, gc.DeepEquals, map[string]interface{}{
		"url":   url,
		"title": "A more exciting title",
	})
}

// TestMergeAnchorsCreatesEntry verifies that merging an anchor into a missing
// entry installs the upsert document.
func (s *SuiteBase) TestMergeAnchorsCreatesEntry(c *gc.C) {
	target := "http://example.com/about"
	s.send(c, mergeAnchor(target, "about us"))

	entry := s.find(c, record.HashID(target))
	c.Assert(entry.Fields["url"], gc.Equals, target)
	c.Assert(entry.Fields["domain"], gc.Equals, "example.com")
	c.Assert(entry.Fields["updated_on"], gc.Equals, "2019-01-02T03:04:05")
	c.Assert(anchorsOf(c, entry), gc.DeepEquals, []string{"about us"})
}

// TestMergeAnchorsDeduplicates verifies that anchors are merged as a set and
// that re-applying the same anchor is a no-op.
func (s *SuiteBase) TestMergeAnchorsDeduplicates(c *gc.C) {
	target := "http://example.com/"
	s.send(c,
		mergeAnchor(target, "home"),
		mergeAnchor(target, "example"),
	)
	s.send(c,
		mergeAnchor(target, "home"),
		mergeAnchor(target, "example"),
		mergeAnchor(target, "home"),
	)

	entry := s.find(c, record.HashID(target))
	c.Assert(anchorsOf(c, entry), gc.DeepEquals, []string{"example", "home"})
}

// TestMergeAnchorsCollapsesExistingDuplicates verifies that merging an
// anchor also removes duplicates already present in the stored list.
func (s *SuiteBase) TestMergeAnchorsCollapsesExistingDuplicates(c *gc.C) {
	url := "http://example.com/"
	s.send(c, insert(url, map[string]interface{}{"anchors": []string{"home", "home", "about"}}))
	s.send(c, mergeAnchor(url, "about"))

	entry := s.find(c, record.HashID(url))
	c.Assert(anchorsOf(c, entry), gc.DeepEquals, []string{"about", "home"})
}

// TestMergeAnchorsPreservesFields verifies that merging anchors into an
// existing document keeps the document fields intact.
func (s *SuiteBase) TestMergeAnchorsPreservesFields(c *gc.C) {
	url := "http://example.com/"
	s.send(c, insert(url, map[string]interface{}{"title": "Example"}))
	s.send(c, mergeAnchor(url, "example"))

	entry := s.find(c, record.HashID(url))
	c.Assert(entry.Fields["title"], gc.Equals, "Example")
	c.Assert(entry.Fields["url"], gc.Equals, url)
	c.Assert(anchorsOf(c, entry), gc.DeepEquals, []string{"example"})
}

// TestPartialUpdateOnlyTouchesListedFields verifies that a partial update
// leaves every other field of the entry untouched.
func (s *SuiteBase) TestPartialUpdateOnlyTouchesListedFields(c *gc.C) {
	url := "http://example.com/"
	id := record.HashID(url)
	s.send(c, &index.Action{
		Op:     index.OpInsert,
		Index:  testIndex,
		ID:     id,
		Source: map[string]interface{}{"url": url, "title": "Example", "authority": 0.1},
	})
	s.send(c, partialUpdate(id, 0.75))

	entry := s.find(c, id)
	c.Assert(entry.Fields, gc.DeepEquals, map[string]interface{}{
		"url":       url,
		"title":     "Example",
		"authority": 0.75,
	})
}

// TestPartialUpdateOfMissingEntryIsDropped verifies that partial updates for
// entries that do not exist neither fail nor create an entry.
func (s *SuiteBase) TestPartialUpdateOfMissingEntryIsDropped(c *gc.C) {
	s.send(c, partialUpdate("http://nowhere.example.com/", 0.5))

	_, err := s.store.FindByID(testIndex, "http://nowhere.example.com/")
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true)
}

// TestBatchIsAppliedInOrder verifies that actions in a batch are applied in
// submission order.
func (s *SuiteBase) TestBatchIsAppliedInOrder(c *gc.C) {
	url := "http://example.com/"
	s.send(c,
		insert(url, map[string]interface{}{"title": "first"}),
		insert(url, map[string]interface{}{"title": "second"}),
		mergeAnchor(url, "example"),
	)

	entry := s.find(c, record.HashID(url))
	c.Assert(entry.Fields["title"], gc.Equals, "second")
	c.Assert(anchorsOf(c, entry), gc.DeepEquals, []string{"example"})
}

// TestUnknownScriptRule verifies that merge updates referencing an unknown
// rule are rejected.
func (s *SuiteBase) TestUnknownScriptRule(c *gc.C) {
	act := mergeAnchor("http://example.com/", "example")
	act.Script.Rule = "no-such-rule"

	err := s.store.SendBatch(context.TODO(), []*index.Action{act})
	c.Assert(xerrors.Is(err, index.ErrUnknownScriptRule), gc.Equals, true)
}

// TestFindMissingEntry verifies the lookup of unknown entries.
func (s *SuiteBase) TestFindMissingEntry(c *gc.C) {
	_, err := s.store.FindByID(testIndex, record.HashID("http://missing.example.com/"))
	c.Assert(xerrors.Is(err, index.ErrNotFound), gc.Equals, true)
}

func (s *SuiteBase) send(c *gc.C, batch ...*index.Action) {
	err := s.store.SendBatch(context.TODO(), batch)
	c.Assert(err, gc.IsNil)
}

func (s *SuiteBase) find(c *gc.C, id string) *index.Entry {
	entry, err := s.store.FindByID(testIndex, id)
	c.Assert(err, gc.IsNil)
	c.Assert(entry.ID, gc.Equals, id)
	c.Assert(entry.Index, gc.Equals, testIndex)
	return entry
}

func insert(url string, fields map[string]interface{}) *index.Action {
	doc := &record.Document{URL: url, Fields: fields}
	return &index.Action{
		Op:     index.OpInsert,
		Index:  testIndex,
		ID:     doc.ID(),
		Source: doc.Source(),
	}
}

func mergeAnchor(target, anchor string) *index.Action {
	return &index.Action{
		Op:    index.OpMergeUpdate,
		Index: testIndex,
		ID:    record.HashID(target),
		Script: &index.Script{
			Rule:   index.RuleMergeAnchors,
			Params: map[string]interface{}{"anchor": anchor},
		},
		Upsert: map[string]interface{}{
			"anchors":    []string{anchor},
			"url":        target,
			"domain":     "example.com",
			"updated_on": "2019-01-02T03:04:05",
		},
	}
}

func partialUpdate(id string, score float64) *index.Action {
	return &index.Action{
		Op:    index.OpPartialUpdate,
		Index: testIndex,
		ID:    id,
		Doc:   map[string]interface{}{"authority": score},
	}
}

func anchorsOf(c *gc.C, entry *index.Entry) []string {
	list, ok := entry.Fields["anchors"].([]interface{})
	c.Assert(ok, gc.Equals, true, gc.Commentf("expected anchors to be a list; got %T", entry.Fields["anchors"]))

	anchors := make([]string, len(list))
	for i, v := range list {
		anchors[i] = v.(string)
	}
	sort.Strings(anchors)
	return anchors
}
