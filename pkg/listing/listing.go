/*
Package listing drives paginated, filtered views of platform collections.

A Collection accumulates pages of rows for one combination of filters. Changing the filters clears the rows and
starts over; every request is stamped with a generation number and responses to superseded requests are dropped,
so a slow response for stale filters can never overwrite fresher rows.
*/
package listing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/sirupsen/logrus"
)

var (
	ErrSuperseded = errors.New("response superseded by a newer request")
	ErrBusy       = errors.New("a request is already in flight")
	ErrNotLoaded  = errors.New("collection not loaded yet")
	ErrExhausted  = errors.New("no more rows")
)

type State int

const (
	Idle State = iota
	InitialLoading
	Ready
	LoadingMore
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InitialLoading:
		return "initial-loading"
	case Ready:
		return "ready"
	case LoadingMore:
		return "loading-more"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Filters select the rows of a collection; any change restarts pagination.
type Filters struct {
	Search string
	Tags   []string
	Sort   query.Sort
	UserId string
}

func (f Filters) equal(other Filters) bool {
	return f.Search == other.Search && f.Sort == other.Sort && f.UserId == other.UserId && slices.Equal(f.Tags, other.Tags)
}

func (f Filters) clone() Filters {
	f.Tags = slices.Clone(f.Tags)
	return f
}

// Fetcher retrieves one window of rows.
type Fetcher[T any] func(ctx context.Context, params query.Params) (query.Result[T], error)

type Config[T any] struct {
	Fetch    Fetcher[T]
	Id       func(T) string
	PageSize int
	Filters  Filters
	Logger   logrus.FieldLogger
}

// View is a copy of a collection's state.
type View[T any] struct {
	State      State
	Rows       []T
	Total      int
	HasMore    bool
	Filters    Filters
	Generation uint64
}

type Collection[T any] struct {
	fetch    Fetcher[T]
	id       func(T) string
	pageSize int
	logger   logrus.FieldLogger

	mu         sync.Mutex
	filters    Filters
	state      State
	rows       []T
	seen       map[string]struct{}
	offset     int
	total      int
	hasMore    bool
	generation uint64
}

func New[T any](cfg Config[T]) (*Collection[T], error) {
	if cfg.Fetch == nil || cfg.Id == nil {
		return nil, errors.New("fetch and id functions are required")
	}
	if cfg.PageSize < 1 || cfg.PageSize > query.MaxLimit {
		return nil, fmt.Errorf("page size must be between 1 and %d", query.MaxLimit)
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Collection[T]{
		fetch:    cfg.Fetch,
		id:       cfg.Id,
		pageSize: cfg.PageSize,
		logger:   cfg.Logger,
		filters:  cfg.Filters.clone(),
		seen:     make(map[string]struct{}),
	}, nil
}

// View returns a snapshot of the collection.
func (c *Collection[T]) View() View[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View[T]{
		State:      c.state,
		Rows:       slices.Clone(c.rows),
		Total:      c.total,
		HasMore:    c.hasMore,
		Filters:    c.filters.clone(),
		Generation: c.generation,
	}
}

func (c *Collection[T]) Filters() Filters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.clone()
}

func (c *Collection[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load fetches the first page for the current filters, discarding accumulated rows.
func (c *Collection[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	var generation, params = c.restart()
	c.mu.Unlock()
	return c.first(ctx, generation, params)
}

// SetFilters replaces the filters and reloads from the first page. Rows are cleared before the request is sent.
func (c *Collection[T]) SetFilters(ctx context.Context, filters Filters) error {
	c.mu.Lock()
	c.filters = filters.clone()
	var generation, params = c.restart()
	c.mu.Unlock()
	return c.first(ctx, generation, params)
}

// Update changes the filters through a function and reloads, unless the filters are unchanged and already loaded.
func (c *Collection[T]) Update(ctx context.Context, change func(*Filters)) error {
	c.mu.Lock()
	var filters = c.filters.clone()
	change(&filters)
	if filters.equal(c.filters) && c.state != Idle {
		c.mu.Unlock()
		return nil
	}
	c.filters = filters
	var generation, params = c.restart()
	c.mu.Unlock()
	return c.first(ctx, generation, params)
}

// restart resets the window and claims a new generation; the caller holds the lock.
func (c *Collection[T]) restart() (uint64, query.Params) {
	c.generation++
	c.state = InitialLoading
	c.rows = nil
	c.seen = make(map[string]struct{})
	c.offset = 0
	c.hasMore = false
	return c.generation, c.params(0)
}

func (c *Collection[T]) params(offset int) query.Params {
	return query.Params{
		Search: c.filters.Search,
		Tags:   slices.Clone(c.filters.Tags),
		Sort:   c.filters.Sort,
		UserId: c.filters.UserId,
		Offset: offset,
		Limit:  c.pageSize,
	}
}

func (c *Collection[T]) first(ctx context.Context, generation uint64, params query.Params) error {
	result, err := c.fetch(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return ErrSuperseded
	}
	if err != nil {
		c.logger.WithError(err).WithField("search", params.Search).Warn("can't load collection")
		c.state = Idle
		return err
	}
	c.total = result.Total
	c.append(result.Items)
	return nil
}

// LoadMore fetches the next page. It's refused while another request is in flight, before the first page has
// arrived, and once a page came back short.
func (c *Collection[T]) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return ErrNotLoaded
	case InitialLoading, LoadingMore:
		c.mu.Unlock()
		return ErrBusy
	case Exhausted:
		c.mu.Unlock()
		return ErrExhausted
	}
	c.state = LoadingMore
	var generation, params = c.generation, c.params(c.offset)
	c.mu.Unlock()

	result, err := c.fetch(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return ErrSuperseded
	}
	if err != nil {
		c.logger.WithError(err).WithField("offset", params.Offset).Warn("can't load more rows")
		c.state = Ready
		return err
	}
	c.total = result.Total
	c.append(result.Items)
	return nil
}

// append adds a page, skipping rows already present; the caller holds the lock.
func (c *Collection[T]) append(page []T) {
	for _, row := range page {
		var id = c.id(row)
		if _, found := c.seen[id]; found {
			continue
		}
		c.seen[id] = struct{}{}
		c.rows = append(c.rows, row)
	}
	// the cursor follows the platform's window, duplicates included
	c.offset += len(page)
	c.hasMore = len(page) == c.pageSize
	if c.hasMore {
		c.state = Ready
	} else {
		c.state = Exhausted
	}
}
