package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linksrus/crawlindex/store/memory"
	"github.com/sirupsen/logrus"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(MainTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type MainTestSuite struct{}

func (s *MainTestSuite) SetUpSuite(c *gc.C) {
	logger = logrus.NewEntry(logrus.New())
}

func (s *MainTestSuite) TestGetBackend(c *gc.C) {
	backend, err := getBackend("in-memory://", "crawl", "")
	c.Assert(err, gc.IsNil)
	c.Assert(backend, gc.FitsTypeOf, new(memory.InMemoryBleveStore))
	c.Assert(backend.(*memory.InMemoryBleveStore).Close(), gc.IsNil)

	_, err = getBackend("", "crawl", "")
	c.Assert(err, gc.ErrorMatches, "search backend URI must be specified.*")

	_, err = getBackend("solr://localhost:8983", "crawl", "")
	c.Assert(err, gc.ErrorMatches, `unsupported search backend URI scheme: "solr"`)
}

func (s *MainTestSuite) TestOpsRouter(c *gc.C) {
	router := makeOpsRouter()

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		c.Assert(rec.Code, gc.Equals, http.StatusOK, gc.Commentf("path %s", path))
	}
}
