package translator

import (
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/linksrus/crawlindex/index"
	"github.com/linksrus/crawlindex/record"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(TranslatorTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type TranslatorTestSuite struct {
	clk *testclock.Clock
}

func (s *TranslatorTestSuite) SetUpTest(c *gc.C) {
	s.clk = testclock.NewClock(time.Date(2019, time.March, 4, 23, 59, 30, 0, time.UTC))
}

func (s *TranslatorTestSuite) TestConfigValidation(c *gc.C) {
	cfg := Config{IndexName: "crawl"}
	c.Assert(cfg.validate(), gc.IsNil)
	c.Assert(cfg.Clock, gc.Not(gc.IsNil), gc.Commentf("default clock was not assigned"))

	cfg = Config{}
	c.Assert(cfg.validate(), gc.ErrorMatches, "(?ms).*index name has not been provided.*")
}

func (s *TranslatorTestSuite) TestDocument(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl", EntryType: "page"})

	doc := &record.Document{
		URL:    "http://a.test/",
		Fields: map[string]interface{}{"title": "A test", "content": "Lorem ipsum"},
	}
	act, ok := t.Translate(doc)
	c.Assert(ok, gc.Equals, true)
	c.Assert(act, gc.DeepEquals, &index.Action{
		Op:    index.OpInsert,
		Index: "crawl",
		Type:  "page",
		ID:    "594e1fd4857370fe6ac20405cf92d82ff2329aaa",
		Source: map[string]interface{}{
			"url":     "http://a.test/",
			"title":   "A test",
			"content": "Lorem ipsum",
		},
	})

	// Translating the same document again must target the same entry.
	again, _ := t.Translate(doc)
	c.Assert(again.ID, gc.Equals, act.ID)
}

func (s *TranslatorTestSuite) TestLink(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl"})

	act, ok := t.Translate(&record.Link{Target: "http://a.test:8080/about", Anchor: "about us"})
	c.Assert(ok, gc.Equals, true)
	c.Assert(act, gc.DeepEquals, &index.Action{
		Op:    index.OpMergeUpdate,
		Index: "crawl",
		ID:    record.HashID("http://a.test:8080/about"),
		Script: &index.Script{
			Rule:   index.RuleMergeAnchors,
			Params: map[string]interface{}{"anchor": "about us"},
		},
		Upsert: map[string]interface{}{
			"anchors":    []string{"about us"},
			"url":        "http://a.test:8080/about",
			"domain":     "a.test",
			"updated_on": "2019-03-04T23:59:30",
		},
	})
}

func (s *TranslatorTestSuite) TestLinkWithUnparsableTarget(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl"})

	act, ok := t.Translate(&record.Link{Target: "http://[::1", Anchor: "broken"})
	c.Assert(ok, gc.Equals, true)
	c.Assert(act.Upsert["domain"], gc.Equals, "")
	c.Assert(act.Upsert["url"], gc.Equals, "http://[::1")
}

func (s *TranslatorTestSuite) TestSanitizeAnchors(c *gc.C) {
	link := &record.Link{Target: "http://a.test/", Anchor: "  <b>Tom</b> &amp;\n\tJerry "}

	t := s.newTranslator(c, Config{IndexName: "crawl", SanitizeAnchors: true})
	act, _ := t.Translate(link)
	c.Assert(act.Script.Params["anchor"], gc.Equals, "Tom & Jerry")
	c.Assert(act.Upsert["anchors"], gc.DeepEquals, []string{"Tom & Jerry"})

	t = s.newTranslator(c, Config{IndexName: "crawl"})
	act, _ = t.Translate(link)
	c.Assert(act.Script.Params["anchor"], gc.Equals, link.Anchor)
}

func (s *TranslatorTestSuite) TestMarkupOnlyAnchorsAreSkipped(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl", SanitizeAnchors: true})

	act, ok := t.Translate(&record.Link{Target: "http://a.test/", Anchor: "<b> </b><img src=\"logo.png\">"})
	c.Assert(ok, gc.Equals, false)
	c.Assert(act, gc.IsNil)

	// Links without anchor text still register their target.
	act, ok = t.Translate(&record.Link{Target: "http://a.test/"})
	c.Assert(ok, gc.Equals, true)
	c.Assert(act.Upsert["anchors"], gc.DeepEquals, []string{""})
}

func (s *TranslatorTestSuite) TestAuthorityScore(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl", EntryType: "page"})

	act, ok := t.Translate(&record.AuthorityScore{URL: "http://a.test/", Score: 0.42})
	c.Assert(ok, gc.Equals, true)
	c.Assert(act, gc.DeepEquals, &index.Action{
		Op:    index.OpPartialUpdate,
		Index: "crawl",
		Type:  "page",
		ID:    "http://a.test/",
		Doc:   map[string]interface{}{"authority": 0.42},
	})
}

func (s *TranslatorTestSuite) TestUnknownRecordKinds(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl"})

	for _, rec := range []record.Record{&record.Unknown{Type: "image"}, nil, customRecord{}} {
		act, ok := t.Translate(rec)
		c.Assert(ok, gc.Equals, false)
		c.Assert(act, gc.IsNil)
	}
}

func (s *TranslatorTestSuite) TestIndexDateSuffix(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl", IndexDateFormat: "-%Y.%m.%d"})
	c.Assert(t.IndexName(), gc.Equals, "crawl-2019.03.04")

	act, _ := t.Translate(&record.AuthorityScore{URL: "http://a.test/", Score: 1})
	c.Assert(act.Index, gc.Equals, "crawl-2019.03.04")

	// The suffix is evaluated on each call so crossing midnight switches
	// to the next day's index.
	s.clk.Advance(time.Minute)
	act, _ = t.Translate(&record.AuthorityScore{URL: "http://a.test/", Score: 1})
	c.Assert(act.Index, gc.Equals, "crawl-2019.03.05")
}

func (s *TranslatorTestSuite) TestNoIndexDateSuffix(c *gc.C) {
	t := s.newTranslator(c, Config{IndexName: "crawl"})
	for i := 0; i < 3; i++ {
		c.Assert(t.IndexName(), gc.Equals, "crawl")
		s.clk.Advance(24 * time.Hour)
	}
}

func (s *TranslatorTestSuite) newTranslator(c *gc.C, cfg Config) *Translator {
	cfg.Clock = s.clk
	t, err := New(cfg)
	c.Assert(err, gc.IsNil)
	return t
}

type customRecord struct{}

func (customRecord) Kind() record.Kind { return record.KindDocument }
