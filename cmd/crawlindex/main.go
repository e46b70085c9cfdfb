package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/linksrus/crawlindex/dispatch"
	"github.com/linksrus/crawlindex/index"
	"github.com/linksrus/crawlindex/indexer"
	"github.com/linksrus/crawlindex/record/recordio"
	"github.com/linksrus/crawlindex/store/es"
	"github.com/linksrus/crawlindex/store/memory"
	"github.com/linksrus/crawlindex/tracer"
	"github.com/linksrus/crawlindex/translator"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

var (
	appName = "crawlindex"
	appSha  = "populated-at-link-time"
	logger  *logrus.Entry
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	rootLogger.SetFormatter(new(logrus.JSONFormatter))
	logger = rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSha,
		"host": host,
	})

	if err := makeApp().Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to error")
		_ = os.Stderr.Sync()
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "Index crawled documents, links and authority scores in batches"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "index-uri",
			Value:  "in-memory://",
			EnvVar: "INDEX_URI",
			Usage:  "The URI for connecting to the search backend (supported URIs: in-memory://, es://node1:9200,...,nodeN:9200)",
		},
		cli.StringFlag{
			Name:   "index-name",
			Value:  "crawl",
			EnvVar: "INDEX_NAME",
			Usage:  "The name of the index to write to",
		},
		cli.StringFlag{
			Name:   "index-type",
			EnvVar: "INDEX_TYPE",
			Usage:  "An optional entry type label attached to each index action",
		},
		cli.StringFlag{
			Name:   "index-date-format",
			EnvVar: "INDEX_DATE_FORMAT",
			Usage:  "An optional strftime layout (e.g. -%Y.%m.%d) for suffixing the index name with the current date",
		},
		cli.IntFlag{
			Name:   "buffer-length",
			Value:  dispatch.DefaultThreshold,
			EnvVar: "BUFFER_LENGTH",
			Usage:  "The number of buffered index actions that triggers a batch flush",
		},
		cli.BoolFlag{
			Name:   "sanitize-anchors",
			EnvVar: "SANITIZE_ANCHORS",
			Usage:  "Strip markup from link anchor text before indexing it",
		},
		cli.StringFlag{
			Name:   "input",
			Value:  "-",
			EnvVar: "INPUT",
			Usage:  "The JSON-lines record stream to index (- for stdin)",
		},
		cli.IntFlag{
			Name:   "metrics-port",
			Value:  6060,
			EnvVar: "METRICS_PORT",
			Usage:  "The port for exposing prometheus metrics and health checks (0 disables the endpoint)",
		},
		cli.BoolFlag{
			Name:   "enable-tracing",
			EnvVar: "ENABLE_TRACING",
			Usage:  "Report flush spans to jaeger (configured via the JAEGER_* envvars)",
		},
	}
	app.Action = runMain
	return app
}

func runMain(appCtx *cli.Context) error {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	if appCtx.Bool("enable-tracing") {
		tr, err := tracer.GetTracer(appName)
		if err != nil {
			return xerrors.Errorf("unable to create tracer: %w", err)
		}
		opentracing.SetGlobalTracer(tr)
		defer func() { _ = tracer.Pool.Close() }()
	}

	if port := appCtx.Int("metrics-port"); port != 0 {
		metricsListener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return err
		}
		defer func() { _ = metricsListener.Close() }()

		go func() {
			logger.WithField("port", port).Info("listening for metrics requests")
			srv := &http.Server{Handler: makeOpsRouter()}
			_ = srv.Serve(metricsListener)
		}()
	}

	backend, err := getBackend(appCtx.String("index-uri"), appCtx.String("index-name"), appCtx.String("index-date-format"))
	if err != nil {
		return err
	}

	tr, err := translator.New(translator.Config{
		IndexName:       appCtx.String("index-name"),
		EntryType:       appCtx.String("index-type"),
		IndexDateFormat: appCtx.String("index-date-format"),
		SanitizeAnchors: appCtx.Bool("sanitize-anchors"),
	})
	if err != nil {
		return err
	}

	d, err := dispatch.New(dispatch.Config{
		Sender:    backend,
		Threshold: appCtx.Int("buffer-length"),
		Logger:    logger.WithField("component", "dispatcher"),
	})
	if err != nil {
		return err
	}

	idx, err := indexer.New(indexer.Config{
		Translator: tr,
		Dispatcher: d,
		Logger:     logger.WithField("component", "indexer"),
	})
	if err != nil {
		return err
	}

	input, err := openInput(appCtx.String("input"))
	if err != nil {
		return err
	}
	defer func() { _ = input.Close() }()

	// Start signal watcher
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			logger.WithField("signal", s.String()).Infof("shutting down due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()

	if _, err = idx.Index(ctx, recordio.NewReader(input)); err != nil {
		return err
	}

	if memStore, ok := backend.(*memory.InMemoryBleveStore); ok {
		logger.WithField("entry_count", memStore.Count()).Info("in-memory index contents")
	}
	return nil
}

func makeOpsRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	return router
}

func getBackend(indexURI, indexName, indexDateFormat string) (index.BatchSender, error) {
	if indexURI == "" {
		return nil, xerrors.Errorf("search backend URI must be specified with --index-uri")
	}

	uri, err := url.Parse(indexURI)
	if err != nil {
		return nil, xerrors.Errorf("could not parse search backend URI: %w", err)
	}

	switch uri.Scheme {
	case "in-memory":
		logger.Info("using in-memory search backend")
		return memory.NewInMemoryBleveStore()
	case "es":
		nodes := strings.Split(uri.Host, ",")
		for i := 0; i < len(nodes); i++ {
			nodes[i] = "http://" + nodes[i]
		}
		logger.Info("using ES search backend")
		store, err := es.NewElasticSearchStore(nodes, false)
		if err != nil {
			return nil, err
		}

		// Date-suffixed indices are created by ES on first write.
		if indexDateFormat == "" {
			if err = store.EnsureIndex(indexName); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		return nil, xerrors.Errorf("unsupported search backend URI scheme: %q", uri.Scheme)
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("unable to open input: %w", err)
	}
	return f, nil
}
