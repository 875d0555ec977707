package main

import (
	"fmt"
	"html"
	"io/ioutil"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/parpipe/parpipe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

var (
	appName = "webwords"
	appSha  = "populated-at-link-time"
	logger  *logrus.Entry

	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webwords_pages_fetched_total",
		Help: "The total number of pages fetched successfully",
	})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webwords_fetch_failures_total",
		Help: "The total number of pages that could not be fetched",
	})
	wordsCounted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webwords_words_counted_total",
		Help: "The total number of words counted across all pages",
	})

	repeatedSpaceRegex = regexp.MustCompile(`\s+`)
	nonLetterRegex     = regexp.MustCompile(`[^a-z]+`)
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
	app.Usage = "count the most frequent words across a set of web pages"
	app.ArgsUsage = "URL [URL...]"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:   "fetch-workers",
			Value:  4,
			EnvVar: "FETCH_WORKERS",
			Usage:  "The number of concurrent workers used for fetching pages",
		},
		cli.IntFlag{
			Name:   "queue-size",
			Value:  32,
			EnvVar: "QUEUE_SIZE",
			Usage:  "The capacity of the queues connecting the pipeline stages",
		},
		cli.IntFlag{
			Name:   "metrics-port",
			Value:  6060,
			EnvVar: "METRICS_PORT",
			Usage:  "The port for exposing prometheus metrics",
		},
		cli.IntFlag{
			Name:   "top",
			Value:  10,
			EnvVar: "TOP_WORDS",
			Usage:  "The number of most frequent words to report",
		},
	}
	app.Action = runMain
	return app
}

func runMain(appCtx *cli.Context) error {
	urls := appCtx.Args()
	if len(urls) == 0 {
		return xerrors.New("at least one URL must be specified")
	}

	go exposeMetrics(appCtx.Int("metrics-port"))

	jobLogger := logger.WithField("job_id", uuid.New())
	qsize := appCtx.Int("queue-size")

	producer := parpipe.NewStage("urls", func(_ parpipe.Iterator, emit parpipe.EmitFunc) error {
		for _, u := range urls {
			emit(u)
		}
		return nil
	}).Setup(1, qsize)
	// Pages that cannot be retrieved are dropped so one dead link does not
	// fail the whole job.
	fetch := parpipe.NewMapStage("fetch", makePageFetcher(jobLogger), true).
		Setup(appCtx.Int("fetch-workers"), qsize)
	extract := parpipe.NewMapStage("extract", extractText, false).Setup(2, qsize)
	count := parpipe.NewStage("count", countWords)

	jobLogger.WithField("urls", len(urls)).Info("starting word count")
	res, err := parpipe.New(producer, fetch, extract, count).SetLogger(jobLogger).Execute()
	if err != nil {
		return err
	}

	counts, ok := res.(map[string]int)
	if !ok || len(counts) == 0 {
		return xerrors.New("no pages could be processed")
	}
	printTopWords(counts, appCtx.Int("top"))
	jobLogger.WithField("unique_words", len(counts)).Info("word count complete")
	return nil
}

func makePageFetcher(logger *logrus.Entry) parpipe.MapFunc {
	return func(item interface{}) (interface{}, error) {
		url := item.(string)
		res, err := http.Get(url)
		if err != nil {
			fetchFailures.Inc()
			logger.WithFields(logrus.Fields{"url": url, "err": err}).Warn("unable to fetch page")
			return nil, err
		}
		defer func() { _ = res.Body.Close() }()

		if res.StatusCode != http.StatusOK {
			fetchFailures.Inc()
			logger.WithFields(logrus.Fields{"url": url, "status": res.Status}).Warn("unable to fetch page")
			return nil, xerrors.Errorf("fetch %q: %s", url, res.Status)
		}

		body, err := ioutil.ReadAll(res.Body)
		if err != nil {
			fetchFailures.Inc()
			return nil, xerrors.Errorf("fetch %q: %w", url, err)
		}
		pagesFetched.Inc()
		return string(body), nil
	}
}

// extractText strips all markup from a fetched page, leaving a
// space-separated block of text.
func extractText(item interface{}) (interface{}, error) {
	text := bluemonday.StrictPolicy().Sanitize(item.(string))
	text = html.UnescapeString(text)
	return strings.TrimSpace(repeatedSpaceRegex.ReplaceAllString(text, " ")), nil
}

func countWords(in parpipe.Iterator, emit parpipe.EmitFunc) error {
	counts := make(map[string]int)
	for in.Next() {
		for _, word := range strings.Fields(strings.ToLower(in.Item().(string))) {
			word = nonLetterRegex.ReplaceAllString(word, "")
			if word == "" {
				continue
			}
			counts[word]++
			wordsCounted.Inc()
		}
	}
	emit(counts)
	return nil
}

func printTopWords(counts map[string]int, top int) {
	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if top > len(words) {
		top = len(words)
	}
	for i := 0; i < top; i++ {
		fmt.Printf("%6d %s\n", counts[words[i]], words[i])
	}
}

func exposeMetrics(port int) {
	http.Handle("/metrics", promhttp.Handler())
	logger.WithField("port", port).Info("serving prometheus metrics")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), nil); err != nil {
		logger.WithField("err", err).Error("metrics server shut down")
	}
}
