package listing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/silktrader/deadpoets/internal/testenv"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/submissions"
	"github.com/stretchr/testify/require"
)

// emptyGateway answers every listing with no rows and remembers the searches it saw.
type emptyGateway struct {
	mu       sync.Mutex
	searches []string
}

func (g *emptyGateway) record(params query.Params) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches = append(g.searches, params.Search)
}

func (g *emptyGateway) ListNotes(_ context.Context, params query.Params) (query.Result[notes.Note], error) {
	g.record(params)
	return query.Result[notes.Note]{}, nil
}

func (g *emptyGateway) ListProfiles(_ context.Context, params query.Params) (query.Result[profiles.Profile], error) {
	g.record(params)
	return query.Result[profiles.Profile]{}, nil
}

func (g *emptyGateway) ListSubmissions(_ context.Context, params query.Params) (query.Result[submissions.Submission], error) {
	g.record(params)
	return query.Result[submissions.Submission]{}, nil
}

func TestSearchTypedOnAnotherTabIsDropped(t *testing.T) {
	ctx := context.Background()
	gateway := &emptyGateway{}
	dashboard, err := NewDashboard(ctx, DashboardConfig{Gateway: gateway, Logger: testenv.QuietLogger(), Quiet: time.Hour})
	require.NoError(t, err)
	defer dashboard.Close()

	require.NoError(t, dashboard.Switch(ctx, UsersTab))
	dashboard.Type("keating")
	require.NoError(t, dashboard.Switch(ctx, PoemsTab))

	// a timer that fired just before the switch delivers the users tab's input
	dashboard.applySearch(searchInput{tab: UsersTab, text: "keating"})
	require.Empty(t, dashboard.Poems.Filters().Search)
	require.Empty(t, dashboard.Users.Filters().Search)
	require.NotContains(t, gateway.searches, "keating")

	dashboard.applySearch(searchInput{tab: PoemsTab, text: " carpe "})
	require.Equal(t, "carpe", dashboard.Poems.Filters().Search)
}
