package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"marketnews/internal/adapter/dates"
	"marketnews/internal/adapter/fetcher"
	"marketnews/internal/adapter/parser"
	"marketnews/internal/domain"
	"marketnews/internal/source"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore - хранилище в памяти с уникальностью по url.
type memoryStore struct {
	mu        sync.Mutex
	rows      []domain.NewsItem
	calls     []string
	failOn    string
	failAfter int
}

func (m *memoryStore) fail(op string) error {
	if m.failOn == op {
		if m.failAfter == 0 {
			return errors.New("connection reset")
		}
		m.failAfter--
	}
	return nil
}

func (m *memoryStore) has(url string) bool {
	for _, row := range m.rows {
		if row.URL == url {
			return true
		}
	}
	return false
}

func (m *memoryStore) Exists(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "exists")
	if err := m.fail("exists"); err != nil {
		return false, &domain.StoreError{Op: "exists", URL: url, Err: err}
	}
	return m.has(url), nil
}

func (m *memoryStore) Insert(ctx context.Context, item domain.NewsItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "insert")
	if err := m.fail("insert"); err != nil {
		return &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	m.rows = append(m.rows, item)
	return nil
}

func (m *memoryStore) InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "insert_if_absent")
	if err := m.fail("insert"); err != nil {
		return false, &domain.StoreError{Op: "insert", URL: item.URL, Err: err}
	}
	if m.has(item.URL) {
		return false, nil
	}
	m.rows = append(m.rows, item)
	return true, nil
}

type step struct {
	raw domain.RawItem
	err error
}

// staticSource отдает заранее заданную последовательность.
type staticSource struct {
	kind  domain.SourceKind
	steps []step
}

func (s *staticSource) Kind() domain.SourceKind { return s.kind }

func (s *staticSource) Items(ctx context.Context) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		for _, st := range s.steps {
			if !yield(st.raw, st.err) {
				return
			}
		}
	}
}

func rssItem(link, published string) step {
	return step{raw: domain.RawItem{
		Kind:       domain.KindRSS,
		Title:      "Story " + link,
		Link:       link,
		Summary:    "summary",
		Published:  published,
		SourceName: "Markets Feed",
		Origin:     "https://feeds.example/rss",
	}}
}

func fetchFailure(kind domain.SourceKind, origin string) step {
	return step{err: &domain.FetchError{Kind: kind, Origin: origin, Err: errors.New("unexpected status code 502")}}
}

var fixedNow = time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)

func newCollector(store NewsStore, opts Options, sources ...source.Source) *Collector {
	return NewCollector(sources, store, dates.NewNormalizer(func() time.Time { return fixedNow }), opts, discardLogger())
}

func TestCollector_Run_InsertsAndSummarizes(t *testing.T) {
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{
		rssItem("https://example.com/1", "Tue, 14 Oct 2025 06:15:00 +0000"),
		rssItem("https://example.com/2", "Tue, 14 Oct 2025 07:15:00 +0000"),
		rssItem("https://example.com/3", "Tue, 14 Oct 2025 08:15:00 +0000"),
	}}

	summary, err := newCollector(store, Options{}, rss).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Considered)
	assert.Equal(t, 3, summary.Inserted)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, domain.SourceStats{Considered: 3, Inserted: 3}, summary.PerSource[domain.KindRSS])
	require.Len(t, store.rows, 3)
	assert.Equal(t, "Markets Feed", store.rows[0].Source)
	assert.Equal(t, "2025-10-14T06:15:00Z", store.rows[0].PublishedAt)
}

func TestCollector_Run_Idempotent(t *testing.T) {
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{
		rssItem("https://example.com/1", ""),
		rssItem("https://example.com/2", ""),
	}}
	collector := newCollector(store, Options{}, rss)

	first, err := collector.Run(context.Background())
	require.NoError(t, err)
	second, err := collector.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, store.rows, 2)
}

func TestCollector_Run_DuplicateURLsInOnePass(t *testing.T) {
	for _, strategy := range []DedupStrategy{DedupAtomic, DedupCheck} {
		t.Run(string(strategy), func(t *testing.T) {
			store := &memoryStore{}
			rss := &staticSource{kind: domain.KindRSS, steps: []step{
				rssItem("https://example.com/same", ""),
				rssItem(" https://example.com/same ", ""),
			}}

			summary, err := newCollector(store, Options{Dedup: strategy}, rss).Run(context.Background())

			require.NoError(t, err)
			assert.Equal(t, 1, summary.Inserted)
			assert.Equal(t, 1, summary.Skipped)
			assert.Len(t, store.rows, 1)
		})
	}
}

func TestCollector_Run_DedupStrategies(t *testing.T) {
	rss := &staticSource{kind: domain.KindRSS, steps: []step{rssItem("https://example.com/1", "")}}

	atomicStore := &memoryStore{}
	_, err := newCollector(atomicStore, Options{Dedup: DedupAtomic}, rss).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"insert_if_absent"}, atomicStore.calls)

	checkStore := &memoryStore{}
	_, err = newCollector(checkStore, Options{Dedup: DedupCheck}, rss).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exists", "insert"}, checkStore.calls)

	_, err = newCollector(checkStore, Options{Dedup: DedupCheck}, rss).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"exists", "insert", "exists"}, checkStore.calls, "existing url is not inserted")
}

func TestCollector_Run_DatePaths(t *testing.T) {
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{
		rssItem("https://example.com/bad-date", "not-a-date"),
	}}
	newsAPI := &staticSource{kind: domain.KindNewsAPI, steps: []step{{raw: domain.RawItem{
		Kind:       domain.KindNewsAPI,
		Title:      "API story",
		Link:       "https://example.com/api",
		Published:  "2025-10-14T05:30:00+05:30",
		SourceName: "Mint",
	}}}}

	summary, err := newCollector(store, Options{}, rss, newsAPI).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, store.rows, 2)
	assert.Equal(t, dates.FormatTimestamp(fixedNow), store.rows[0].PublishedAt)
	assert.Equal(t, "2025-10-14T05:30:00+05:30", store.rows[1].PublishedAt)
	assert.Equal(t, "Mint", store.rows[1].Source)
	assert.Equal(t, 1, summary.PerSource[domain.KindNewsAPI].Inserted)
}

func TestCollector_Run_NormalizesFields(t *testing.T) {
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{{raw: domain.RawItem{
		Kind:       domain.KindRSS,
		Title:      "  Café stocks rally \n",
		Link:       " https://example.com/cafe ",
		Summary:    "\tShort summary ",
		SourceName: " Feed ",
	}}}}

	_, err := newCollector(store, Options{}, rss).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "Café stocks rally", row.Headline)
	assert.Equal(t, "https://example.com/cafe", row.URL)
	assert.Equal(t, "Short summary", row.Content)
	assert.Equal(t, "Feed", row.Source)
}

func TestCollector_Run_SkipsEntriesWithoutURL(t *testing.T) {
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{rssItem("", ""), rssItem("https://example.com/1", "")}}

	summary, err := newCollector(store, Options{}, rss).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Considered)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, store.rows, 1)
}

func TestCollector_Run_StrictFailureAborts(t *testing.T) {
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{
		rssItem("https://example.com/1", ""),
		fetchFailure(domain.KindRSS, "https://broken.example/rss"),
		rssItem("https://example.com/2", ""),
	}}
	newsAPI := &staticSource{kind: domain.KindNewsAPI, steps: []step{{raw: domain.RawItem{Kind: domain.KindNewsAPI, Link: "https://example.com/api"}}}}

	summary, err := newCollector(store, Options{}, rss, newsAPI).Run(context.Background())

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "https://broken.example/rss", fetchErr.Origin)
	assert.Equal(t, 1, summary.Inserted, "progress before the failure is reported")
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, domain.KindRSS, summary.Failures[0].Kind)
	assert.Equal(t, "https://broken.example/rss", summary.Failures[0].Origin)
	assert.Len(t, store.rows, 1)
}

func TestCollector_Run_IsolatedFailureContinues(t *testing.T) {
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{
		fetchFailure(domain.KindRSS, "https://broken.example/rss"),
		rssItem("https://example.com/1", ""),
	}}
	newsAPI := &staticSource{kind: domain.KindNewsAPI, steps: []step{
		fetchFailure(domain.KindNewsAPI, "https://newsapi.example/v2/top-headlines"),
	}}

	summary, err := newCollector(store, Options{IsolateFailures: true}, rss, newsAPI).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	require.Len(t, summary.Failures, 2)
	assert.Equal(t, domain.KindNewsAPI, summary.Failures[1].Kind)
}

func TestCollector_Run_StoreErrorAlwaysFatal(t *testing.T) {
	store := &memoryStore{failOn: "insert", failAfter: 1}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{
		rssItem("https://example.com/1", ""),
		rssItem("https://example.com/2", ""),
		rssItem("https://example.com/3", ""),
	}}

	summary, err := newCollector(store, Options{IsolateFailures: true}, rss).Run(context.Background())

	var storeErr *domain.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "https://example.com/2", storeErr.URL)
	assert.Equal(t, 1, summary.Inserted)
	assert.Empty(t, summary.Failures)
}

func TestCollector_Run_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &memoryStore{}
	rss := &staticSource{kind: domain.KindRSS, steps: []step{rssItem("https://example.com/1", "")}}

	_, err := newCollector(store, Options{}, rss).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.rows)
}

func feedServer(t *testing.T, entries int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Market Wire</title>`)
		for i := 1; i <= entries; i++ {
			fmt.Fprintf(&b, `<item><title>Story %d</title><link>https://news.example/%d</link>`+
				`<pubDate>Tue, 14 Oct 2025 0%d:00:00 +0000</pubDate></item>`, i, i, i)
		}
		b.WriteString(`</channel></rss>`)
		w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCollector_EndToEnd_RSS(t *testing.T) {
	log := discardLogger()
	srv := feedServer(t, 3)
	rss := source.NewRSS([]string{srv.URL}, fetcher.NewHTTPFetcher(log), parser.NewFeedParser(log), log)
	newsAPI := source.NewNewsAPI("", "", fetcher.NewHTTPFetcher(log), log)

	t.Run("fresh store", func(t *testing.T) {
		store := &memoryStore{}
		summary, err := newCollector(store, Options{}, rss, newsAPI).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 3, summary.Inserted)
		require.Len(t, store.rows, 3)
		assert.Equal(t, "Market Wire", store.rows[0].Source)
		assert.Equal(t, "2025-10-14T01:00:00Z", store.rows[0].PublishedAt)
	})

	t.Run("one url already stored", func(t *testing.T) {
		store := &memoryStore{rows: []domain.NewsItem{{URL: "https://news.example/2", Headline: "seen"}}}
		summary, err := newCollector(store, Options{Dedup: DedupCheck}, rss, newsAPI).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 3, summary.Considered)
		assert.Equal(t, 2, summary.Inserted)
		assert.Equal(t, 1, summary.Skipped)
		assert.Len(t, store.rows, 3)
		assert.Equal(t, "seen", store.rows[0].Headline)
	})

	t.Run("cap of five", func(t *testing.T) {
		big := feedServer(t, 8)
		store := &memoryStore{}
		capped := source.NewRSS([]string{big.URL}, fetcher.NewHTTPFetcher(log), parser.NewFeedParser(log), log)

		summary, err := newCollector(store, Options{}, capped).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, source.MaxEntriesPerFeed, summary.Considered)
	})
}
