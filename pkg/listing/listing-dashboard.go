package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/submissions"
	"github.com/sirupsen/logrus"
)

const DashboardPageSize = 20

type Tab int

const (
	PoemsTab Tab = iota
	UsersTab
	SubmissionsTab
)

var Tabs = []Tab{PoemsTab, UsersTab, SubmissionsTab}

func (t Tab) String() string {
	switch t {
	case PoemsTab:
		return "poems"
	case UsersTab:
		return "users"
	case SubmissionsTab:
		return "submissions"
	}
	return fmt.Sprintf("tab(%d)", int(t))
}

// ParseTab is the inverse of Tab.String.
func ParseTab(name string) (Tab, error) {
	for _, tab := range Tabs {
		if tab.String() == name {
			return tab, nil
		}
	}
	return 0, fmt.Errorf("unknown tab %q", name)
}

// AdminGateway lists the three collections moderated from the dashboard.
type AdminGateway interface {
	NoteLister
	ListProfiles(ctx context.Context, params query.Params) (query.Result[profiles.Profile], error)
	ListSubmissions(ctx context.Context, params query.Params) (query.Result[submissions.Submission], error)
}

type DashboardConfig struct {
	Gateway  AdminGateway
	Logger   logrus.FieldLogger
	PageSize int
	Quiet    time.Duration
}

// Dashboard pages through poems, users and pending submissions. The three collections share one search box and are
// otherwise independent: switching tabs clears the box but leaves every other collection's window as it was.
type Dashboard struct {
	Poems       *Collection[notes.Note]
	Users       *Collection[profiles.Profile]
	Submissions *Collection[submissions.Submission]

	ctx    context.Context
	logger logrus.FieldLogger
	search *Debouncer[searchInput]

	mu     sync.Mutex
	active Tab
	typed  string
	totals map[Tab]int
}

// NewDashboard builds the dashboard; ctx bounds the loads triggered by the debounced search box.
func NewDashboard(ctx context.Context, cfg DashboardConfig) (*Dashboard, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DashboardPageSize
	}
	if cfg.Quiet == 0 {
		cfg.Quiet = DefaultQuiet
	}

	var err error
	var d = &Dashboard{ctx: ctx, logger: cfg.Logger, totals: make(map[Tab]int)}
	d.Poems, err = New(Config[notes.Note]{
		Fetch:    cfg.Gateway.ListNotes,
		Id:       func(note notes.Note) string { return note.Id },
		PageSize: cfg.PageSize,
		Filters:  Filters{Sort: query.DefaultSort},
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	d.Users, err = New(Config[profiles.Profile]{
		Fetch:    cfg.Gateway.ListProfiles,
		Id:       func(profile profiles.Profile) string { return profile.Id },
		PageSize: cfg.PageSize,
		Filters:  Filters{Sort: query.DefaultSort},
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	d.Submissions, err = New(Config[submissions.Submission]{
		Fetch:    cfg.Gateway.ListSubmissions,
		Id:       func(submission submissions.Submission) string { return submission.Id },
		PageSize: cfg.PageSize,
		Filters:  Filters{Sort: query.DefaultSort},
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	d.search = NewDebouncer(cfg.Quiet, d.applySearch)
	return d, nil
}

// pane is the type independent face of a collection.
type pane interface {
	Load(ctx context.Context) error
	LoadMore(ctx context.Context) error
	Update(ctx context.Context, change func(*Filters)) error
	State() State
	Filters() Filters
	totalRows() int
}

func (c *Collection[T]) totalRows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (d *Dashboard) pane(tab Tab) pane {
	switch tab {
	case UsersTab:
		return d.Users
	case SubmissionsTab:
		return d.Submissions
	}
	return d.Poems
}

// Open loads the active tab and counts the rows of the other two.
func (d *Dashboard) Open(ctx context.Context) error {
	var active = d.Active()
	for _, tab := range Tabs {
		if tab != active {
			d.count(ctx, tab)
		}
	}
	return d.track(active, d.pane(active).Load(ctx))
}

// count fetches a tab's total without touching its rows.
func (d *Dashboard) count(ctx context.Context, tab Tab) {
	var params = query.Params{Limit: 1}
	var total int
	var err error
	switch tab {
	case PoemsTab:
		var result query.Result[notes.Note]
		result, err = d.Poems.fetch(ctx, params)
		total = result.Total
	case UsersTab:
		var result query.Result[profiles.Profile]
		result, err = d.Users.fetch(ctx, params)
		total = result.Total
	case SubmissionsTab:
		var result query.Result[submissions.Submission]
		result, err = d.Submissions.fetch(ctx, params)
		total = result.Total
	}
	if err != nil {
		d.logger.WithError(err).WithField("tab", tab).Warn("can't count rows")
		return
	}
	d.mu.Lock()
	d.totals[tab] = total
	d.mu.Unlock()
}

// track records the tab's total after a successful load.
func (d *Dashboard) track(tab Tab, err error) error {
	if err == nil {
		d.mu.Lock()
		d.totals[tab] = d.pane(tab).totalRows()
		d.mu.Unlock()
	}
	return err
}

func (d *Dashboard) Active() Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Totals returns the last known row count of every tab.
func (d *Dashboard) Totals() map[Tab]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var totals = make(map[Tab]int, len(d.totals))
	for tab, total := range d.totals {
		totals[tab] = total
	}
	return totals
}

// Switch activates a tab and clears the search box. The tab's window is kept unless it was filtered by a search,
// which the cleared box no longer shows; a tab never opened before gets its first page.
func (d *Dashboard) Switch(ctx context.Context, tab Tab) error {
	d.mu.Lock()
	d.active = tab
	d.typed = ""
	d.mu.Unlock()
	d.search.Cancel()

	var pane = d.pane(tab)
	if pane.State() == Idle || pane.Filters().Search != "" {
		return d.track(tab, pane.Update(ctx, func(filters *Filters) { filters.Search = "" }))
	}
	return nil
}

// searchInput is the box contents along with the tab it was typed on.
type searchInput struct {
	tab  Tab
	text string
}

// Type records the shared search box contents; the active tab is searched once typing pauses.
func (d *Dashboard) Type(text string) {
	d.mu.Lock()
	d.typed = text
	var tab = d.active
	d.mu.Unlock()
	d.search.Push(searchInput{tab: tab, text: text})
}

func (d *Dashboard) SearchBox() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typed
}

// applySearch drops input typed on a tab that is no longer active.
func (d *Dashboard) applySearch(input searchInput) {
	var tab = input.tab
	if tab != d.Active() {
		return
	}
	var err = d.track(tab, d.pane(tab).Update(d.ctx, func(filters *Filters) { filters.Search = strings.TrimSpace(input.text) }))
	if err != nil && !errors.Is(err, ErrSuperseded) {
		d.logger.WithError(err).WithField("tab", tab).Debug("debounced search failed")
	}
}

// LoadMore advances the active tab.
func (d *Dashboard) LoadMore(ctx context.Context) error {
	var tab = d.Active()
	return d.track(tab, d.pane(tab).LoadMore(ctx))
}

// Refresh reloads a tab after a moderation action; inactive tabs drop their search.
func (d *Dashboard) Refresh(ctx context.Context, tab Tab) error {
	var pane = d.pane(tab)
	if tab != d.Active() && pane.Filters().Search != "" {
		return d.track(tab, pane.Update(ctx, func(filters *Filters) { filters.Search = "" }))
	}
	return d.track(tab, pane.Load(ctx))
}

func (d *Dashboard) Close() {
	d.search.Stop()
}
