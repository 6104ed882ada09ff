package listing

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/query"
)

const (
	PoemsPageSize = 8
	PoetsPageSize = 20
)

// PoetsSort lists the directory alphabetically.
var PoetsSort = query.Sort{Field: "display_name", Ascending: true}

// Browser is a collection with a debounced search box, tag chips and a sort selector.
type Browser[T any] struct {
	*Collection[T]
	ctx    context.Context
	search *Debouncer[string]

	mu    sync.Mutex
	typed string
}

// NewBrowser builds a browser; ctx bounds the loads triggered by the debounced search box.
func NewBrowser[T any](ctx context.Context, cfg Config[T], quiet time.Duration) (*Browser[T], error) {
	collection, err := New(cfg)
	if err != nil {
		return nil, err
	}
	var browser = &Browser[T]{Collection: collection, ctx: ctx, typed: cfg.Filters.Search}
	browser.search = NewDebouncer(quiet, browser.applySearch)
	return browser, nil
}

func (b *Browser[T]) applySearch(text string) {
	err := b.Update(b.ctx, func(filters *Filters) { filters.Search = strings.TrimSpace(text) })
	if err != nil && !errors.Is(err, ErrSuperseded) {
		b.logger.WithError(err).Debug("debounced search failed")
	}
}

// Type records the search box contents; the search is applied once typing pauses.
func (b *Browser[T]) Type(text string) {
	b.mu.Lock()
	b.typed = text
	b.mu.Unlock()
	b.search.Push(text)
}

// SearchBox returns what was last typed, which may not be applied yet.
func (b *Browser[T]) SearchBox() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typed
}

// ToggleTag adds or removes a tag filter; rows must contain every selected tag.
func (b *Browser[T]) ToggleTag(ctx context.Context, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	return b.Update(ctx, func(filters *Filters) {
		if i := slices.Index(filters.Tags, tag); i >= 0 {
			filters.Tags = slices.Delete(filters.Tags, i, i+1)
			return
		}
		filters.Tags = append(filters.Tags, tag)
	})
}

// ClearTags drops every tag filter.
func (b *Browser[T]) ClearTags(ctx context.Context) error {
	return b.Update(ctx, func(filters *Filters) { filters.Tags = nil })
}

// SetSort applies a sort token such as "applause_count_desc".
func (b *Browser[T]) SetSort(ctx context.Context, token string) error {
	sort, err := query.ParseSort(token)
	if err != nil {
		return err
	}
	return b.Update(ctx, func(filters *Filters) { filters.Sort = sort })
}

// Close drops a pending search.
func (b *Browser[T]) Close() {
	b.search.Stop()
}

// NoteLister lists published poems.
type NoteLister interface {
	ListNotes(ctx context.Context, params query.Params) (query.Result[notes.Note], error)
}

// Poems returns the browser of the poems page, newest first.
func Poems(ctx context.Context, gateway NoteLister, cfg Config[notes.Note]) (*Browser[notes.Note], error) {
	cfg.Fetch = gateway.ListNotes
	cfg.Id = func(note notes.Note) string { return note.Id }
	if cfg.PageSize == 0 {
		cfg.PageSize = PoemsPageSize
	}
	if cfg.Filters.Sort.Field == "" {
		cfg.Filters.Sort = query.DefaultSort
	}
	return NewBrowser(ctx, cfg, DefaultQuiet)
}

// PoetLister lists the public directory of poets.
type PoetLister interface {
	ListPoets(ctx context.Context, params query.Params) (query.Result[profiles.Profile], error)
}

// Poets returns the browser of the poets directory, searched by name.
func Poets(ctx context.Context, gateway PoetLister, cfg Config[profiles.Profile]) (*Browser[profiles.Profile], error) {
	cfg.Fetch = gateway.ListPoets
	cfg.Id = func(profile profiles.Profile) string { return profile.Id }
	if cfg.PageSize == 0 {
		cfg.PageSize = PoetsPageSize
	}
	if cfg.Filters.Sort.Field == "" {
		cfg.Filters.Sort = PoetsSort
	}
	return NewBrowser(ctx, cfg, DefaultQuiet)
}
