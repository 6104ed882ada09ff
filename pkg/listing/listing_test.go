package listing_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/silktrader/deadpoets/internal/testenv"
	"github.com/silktrader/deadpoets/pkg/listing"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/stretchr/testify/require"
)

type row struct {
	Id    string
	Title string
}

// source serves windows of rows, optionally overlapping the previous window or blocking until released.
type source struct {
	mu      sync.Mutex
	rows    []row
	calls   []query.Params
	at      []time.Time
	overlap int
	fail    error
	gates   map[string]chan struct{}
}

func newSource(count int) *source {
	var s = &source{gates: make(map[string]chan struct{})}
	for i := range count {
		s.rows = append(s.rows, row{Id: fmt.Sprintf("%03d", i), Title: gofakeit.BookTitle()})
	}
	return s
}

// hold makes requests searching for term block until the returned function is called.
func (s *source) hold(term string) (release func()) {
	var gate = make(chan struct{})
	s.mu.Lock()
	s.gates[term] = gate
	s.mu.Unlock()
	return func() { close(gate) }
}

func (s *source) fetch(ctx context.Context, params query.Params) (query.Result[row], error) {
	s.mu.Lock()
	s.calls = append(s.calls, params)
	s.at = append(s.at, time.Now())
	var gate, fail = s.gates[params.Search], s.fail
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return query.Result[row]{}, ctx.Err()
		}
	}
	if fail != nil {
		return query.Result[row]{}, fail
	}

	var matching []row
	for _, r := range s.rows {
		if strings.Contains(r.Title, params.Search) || strings.HasPrefix(params.Search, "#") {
			matching = append(matching, r)
		}
	}
	var from = max(0, params.Offset-s.overlap)
	var to = min(len(matching), from+params.Limit)
	if from > len(matching) {
		from = to
	}
	return query.Result[row]{Items: matching[from:to], Total: len(matching)}, nil
}

func (s *source) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *source) lastCall() query.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func (s *source) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func newCollection(t *testing.T, s *source, pageSize int) *listing.Collection[row] {
	t.Helper()
	collection, err := listing.New(listing.Config[row]{
		Fetch:    s.fetch,
		Id:       func(r row) string { return r.Id },
		PageSize: pageSize,
		Logger:   testenv.QuietLogger(),
	})
	require.NoError(t, err)
	return collection
}

func ids(rows []row) []string {
	var result = make([]string, len(rows))
	for i, r := range rows {
		result[i] = r.Id
	}
	return result
}

func TestNewValidatesConfig(t *testing.T) {
	s := newSource(0)
	_, err := listing.New(listing.Config[row]{Fetch: s.fetch, PageSize: 8, Logger: testenv.QuietLogger()})
	require.Error(t, err)
	_, err = listing.New(listing.Config[row]{Fetch: s.fetch, Id: func(r row) string { return r.Id }, Logger: testenv.QuietLogger()})
	require.Error(t, err)
}

func TestPagination(t *testing.T) {
	s := newSource(20)
	collection := newCollection(t, s, 8)
	ctx := context.Background()
	require.Equal(t, listing.Idle, collection.State())
	require.ErrorIs(t, collection.LoadMore(ctx), listing.ErrNotLoaded)

	require.NoError(t, collection.Load(ctx))
	view := collection.View()
	require.Equal(t, listing.Ready, view.State)
	require.Len(t, view.Rows, 8)
	require.True(t, view.HasMore)
	require.Equal(t, 20, view.Total)

	require.NoError(t, collection.LoadMore(ctx))
	require.Equal(t, 8, s.lastCall().Offset)
	require.NoError(t, collection.LoadMore(ctx))
	require.Equal(t, 16, s.lastCall().Offset)

	view = collection.View()
	require.Equal(t, listing.Exhausted, view.State)
	require.Equal(t, ids(s.rows), ids(view.Rows))
	require.False(t, view.HasMore)
}

// Once a page comes back short, no further page is requested until the filters change.
func TestExhaustedIsTerminal(t *testing.T) {
	s := newSource(5)
	collection := newCollection(t, s, 8)
	ctx := context.Background()

	require.NoError(t, collection.Load(ctx))
	require.Equal(t, listing.Exhausted, collection.State())
	var calls = s.callCount()
	for range 5 {
		require.ErrorIs(t, collection.LoadMore(ctx), listing.ErrExhausted)
	}
	require.Equal(t, calls, s.callCount())

	// an exact multiple of the page size needs one more, empty, page
	s = newSource(8)
	collection = newCollection(t, s, 8)
	require.NoError(t, collection.Load(ctx))
	require.Equal(t, listing.Ready, collection.State())
	require.NoError(t, collection.LoadMore(ctx))
	require.Equal(t, listing.Exhausted, collection.State())
	require.Len(t, collection.View().Rows, 8)

	require.NoError(t, collection.SetFilters(ctx, listing.Filters{Search: "#"}))
	require.Equal(t, listing.Ready, collection.State())
}

// Filter changes clear accumulated rows and reset the cursor before the new request resolves.
func TestFilterChangeResetsWindow(t *testing.T) {
	s := newSource(30)
	collection := newCollection(t, s, 8)
	ctx := context.Background()
	require.NoError(t, collection.Load(ctx))
	require.NoError(t, collection.LoadMore(ctx))
	require.Len(t, collection.View().Rows, 16)

	release := s.hold("#held")
	var done = make(chan error, 1)
	go func() { done <- collection.SetFilters(ctx, listing.Filters{Search: "#held"}) }()

	require.Eventually(t, func() bool { return s.lastCall().Search == "#held" }, time.Second, time.Millisecond)
	view := collection.View()
	require.Equal(t, listing.InitialLoading, view.State)
	require.Empty(t, view.Rows)
	require.Zero(t, s.lastCall().Offset)
	require.ErrorIs(t, collection.LoadMore(ctx), listing.ErrBusy)

	release()
	require.NoError(t, <-done)
	require.Len(t, collection.View().Rows, 8)
}

// Responses to superseded requests are dropped even when they arrive last.
func TestStaleResponsesAreDiscarded(t *testing.T) {
	s := newSource(30)
	collection := newCollection(t, s, 8)
	ctx := context.Background()

	release := s.hold("#slow")
	var slow = make(chan error, 1)
	go func() { slow <- collection.SetFilters(ctx, listing.Filters{Search: "#slow"}) }()
	require.Eventually(t, func() bool { return s.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, collection.SetFilters(ctx, listing.Filters{Search: s.rows[3].Title}))
	var fresh = collection.View()

	release()
	require.ErrorIs(t, <-slow, listing.ErrSuperseded)
	require.Equal(t, fresh, collection.View())
	require.Equal(t, s.rows[3].Title, collection.Filters().Search)
}

func TestLoadMoreSupersededByFilterChange(t *testing.T) {
	s := newSource(30)
	collection := newCollection(t, s, 8)
	ctx := context.Background()
	require.NoError(t, collection.SetFilters(ctx, listing.Filters{Search: "#more"}))

	release := s.hold("#more")
	var more = make(chan error, 1)
	go func() { more <- collection.LoadMore(ctx) }()
	require.Eventually(t, func() bool { return collection.State() == listing.LoadingMore }, time.Second, time.Millisecond)
	require.ErrorIs(t, collection.LoadMore(ctx), listing.ErrBusy)

	require.NoError(t, collection.SetFilters(ctx, listing.Filters{Search: "#other"}))
	release()
	require.ErrorIs(t, <-more, listing.ErrSuperseded)
	require.Len(t, collection.View().Rows, 8)
}

func TestFailuresKeepPriorState(t *testing.T) {
	s := newSource(20)
	collection := newCollection(t, s, 8)
	ctx := context.Background()
	var failure = errors.New("platform unreachable")

	s.setFail(failure)
	require.ErrorIs(t, collection.Load(ctx), failure)
	require.Equal(t, listing.Idle, collection.State())
	require.Empty(t, collection.View().Rows)

	s.setFail(nil)
	require.NoError(t, collection.Load(ctx))
	var loaded = collection.View()

	s.setFail(failure)
	require.ErrorIs(t, collection.LoadMore(ctx), failure)
	require.Equal(t, loaded, collection.View())

	s.setFail(nil)
	require.NoError(t, collection.LoadMore(ctx))
	require.Len(t, collection.View().Rows, 16)
}

// Whatever the sequence of filter changes and page advances, no id is ever listed twice.
func TestRowsAreDisjoint(t *testing.T) {
	faker := gofakeit.New(1989)
	s := newSource(60)
	s.overlap = 3
	collection := newCollection(t, s, 8)
	ctx := context.Background()
	var searches = []string{"#", "#all", "e", "a", "the"}

	for range 300 {
		if faker.Number(0, 4) == 0 {
			require.NoError(t, collection.SetFilters(ctx, listing.Filters{Search: searches[faker.Number(0, len(searches)-1)]}))
		} else if err := collection.LoadMore(ctx); err != nil {
			require.True(t, errors.Is(err, listing.ErrExhausted) || errors.Is(err, listing.ErrNotLoaded), err)
		}

		var seen = make(map[string]bool)
		for _, id := range ids(collection.View().Rows) {
			require.False(t, seen[id], "duplicate %s", id)
			seen[id] = true
		}
	}
}

func TestUpdateSkipsUnchangedFilters(t *testing.T) {
	s := newSource(10)
	collection := newCollection(t, s, 8)
	ctx := context.Background()

	require.NoError(t, collection.Update(ctx, func(filters *listing.Filters) {}))
	require.Equal(t, 1, s.callCount())
	require.NoError(t, collection.Update(ctx, func(filters *listing.Filters) {}))
	require.Equal(t, 1, s.callCount())
	require.NoError(t, collection.Update(ctx, func(filters *listing.Filters) { filters.Tags = []string{"ode"} }))
	require.Equal(t, 2, s.callCount())
	require.Equal(t, []string{"ode"}, s.lastCall().Tags)
}

func TestDebouncer(t *testing.T) {
	var fired = make(chan string, 4)
	debouncer := listing.NewDebouncer(30*time.Millisecond, func(value string) { fired <- value })
	debouncer.Push("c")
	debouncer.Push("ca")
	debouncer.Push("carpe")
	require.Equal(t, "carpe", <-fired)

	debouncer.Push("diem")
	debouncer.Cancel()
	debouncer.Push("seize")
	require.Equal(t, "seize", <-fired)

	debouncer.Push("the day")
	debouncer.Stop()
	debouncer.Push("again")
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, fired)
}

// Typing "a", "ab", "abc" within 100ms intervals issues exactly one query, for "abc", once input settles.
func TestSearchDebounce(t *testing.T) {
	s := newSource(10)
	browser, err := listing.NewBrowser(context.Background(), listing.Config[row]{
		Fetch:    s.fetch,
		Id:       func(r row) string { return r.Id },
		PageSize: 8,
		Logger:   testenv.QuietLogger(),
	}, listing.DefaultQuiet)
	require.NoError(t, err)
	defer browser.Close()

	var last time.Time
	for _, text := range []string{"a", "ab", "abc"} {
		browser.Type(text)
		last = time.Now()
		time.Sleep(100 * time.Millisecond)
	}
	require.Equal(t, "abc", browser.SearchBox())

	require.Eventually(t, func() bool { return s.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(listing.DefaultQuiet)
	require.Equal(t, 1, s.callCount())
	require.Equal(t, "abc", s.lastCall().Search)

	s.mu.Lock()
	var waited = s.at[0].Sub(last)
	s.mu.Unlock()
	require.GreaterOrEqual(t, waited, listing.DefaultQuiet)
	require.Less(t, waited, 2*listing.DefaultQuiet)
}

func TestBrowserFilters(t *testing.T) {
	s := newSource(10)
	ctx := context.Background()
	browser, err := listing.NewBrowser(ctx, listing.Config[row]{
		Fetch:    s.fetch,
		Id:       func(r row) string { return r.Id },
		PageSize: 8,
		Logger:   testenv.QuietLogger(),
	}, 10*time.Millisecond)
	require.NoError(t, err)
	defer browser.Close()

	require.NoError(t, browser.ToggleTag(ctx, "elegy"))
	require.NoError(t, browser.ToggleTag(ctx, " sonnet "))
	require.Equal(t, []string{"elegy", "sonnet"}, s.lastCall().Tags)
	require.NoError(t, browser.ToggleTag(ctx, "elegy"))
	require.Equal(t, []string{"sonnet"}, s.lastCall().Tags)
	require.NoError(t, browser.ClearTags(ctx))
	require.Empty(t, s.lastCall().Tags)

	require.NoError(t, browser.SetSort(ctx, "applause_count_desc"))
	require.Equal(t, query.Sort{Field: "applause_count"}, s.lastCall().Sort)
	require.Error(t, browser.SetSort(ctx, "applause_count_sideways"))

	browser.Type("  #  ")
	require.Eventually(t, func() bool { return browser.Filters().Search == "#" }, time.Second, 5*time.Millisecond)
}

// poetLister records the parameters of directory requests.
type poetLister struct {
	mu     sync.Mutex
	params []query.Params
}

func (l *poetLister) ListPoets(_ context.Context, params query.Params) (query.Result[profiles.Profile], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = append(l.params, params)
	var name = gofakeit.Name()
	return query.Result[profiles.Profile]{Items: []profiles.Profile{{Id: gofakeit.UUID(), DisplayName: &name}}, Total: 1}, nil
}

func TestPoetsBrowser(t *testing.T) {
	ctx := context.Background()
	lister := &poetLister{}
	browser, err := listing.Poets(ctx, lister, listing.Config[profiles.Profile]{Logger: testenv.QuietLogger()})
	require.NoError(t, err)
	defer browser.Close()

	require.NoError(t, browser.Load(ctx))
	require.Len(t, browser.View().Rows, 1)
	require.Equal(t, listing.PoetsSort, lister.params[0].Sort)
	require.Equal(t, listing.PoetsPageSize, lister.params[0].Limit)

	require.NoError(t, browser.SetSort(ctx, "created_at_desc"))
	require.Equal(t, query.DefaultSort, lister.params[1].Sort)
}
