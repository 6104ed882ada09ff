package moderation_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/silktrader/deadpoets/internal/testenv"
	"github.com/silktrader/deadpoets/pkg/client"
	"github.com/silktrader/deadpoets/pkg/listing"
	"github.com/silktrader/deadpoets/pkg/moderation"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/silktrader/deadpoets/pkg/session"
	"github.com/silktrader/deadpoets/pkg/submissions"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server    *testenv.Server
	gateway   *client.Client
	dashboard *listing.Dashboard
	moderator *moderation.Moderator
}

// signIn opens a gateway and a session for the given email, or a random one, waiting until its role flags are known.
func signIn(t *testing.T, server *testenv.Server, email string) (*client.Client, *session.Controller) {
	t.Helper()
	ctx := context.Background()
	gateway, err := client.New(client.Config{BaseURL: server.URL, Logger: testenv.QuietLogger()})
	require.NoError(t, err)
	if email == "" {
		email = gofakeit.Email()
	}
	_, err = gateway.SignUp(ctx, email, testenv.Password)
	require.NoError(t, err)

	controller, err := session.New(session.Config{Gateway: gateway, Logger: testenv.QuietLogger(), MainAdminEmail: testenv.MainAdminEmail})
	require.NoError(t, err)
	t.Cleanup(controller.Close)
	controller.Start(ctx)
	require.Eventually(t, func() bool { return !controller.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	return gateway, controller
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	server := testenv.NewServer(t)
	gateway, controller := signIn(t, server, testenv.MainAdminEmail)

	dashboard, err := listing.NewDashboard(context.Background(), listing.DashboardConfig{Gateway: gateway, Logger: testenv.QuietLogger()})
	require.NoError(t, err)
	t.Cleanup(dashboard.Close)

	moderator, err := moderation.New(moderation.Config{
		Gateway:        gateway,
		Viewer:         controller,
		Logger:         testenv.QuietLogger(),
		MainAdminEmail: testenv.MainAdminEmail,
		Dashboard:      dashboard,
	})
	require.NoError(t, err)
	return fixture{server: server, gateway: gateway, dashboard: dashboard, moderator: moderator}
}

// viewer is a fixed session snapshot.
type viewer session.Snapshot

func (v viewer) Snapshot() session.Snapshot {
	return session.Snapshot(v)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := moderation.New(moderation.Config{Logger: testenv.QuietLogger()})
	require.Error(t, err)
}

func submit(t *testing.T, server *testenv.Server, poet testenv.Account, title string) submissions.Submission {
	t.Helper()
	response := server.Do(t, http.MethodPost, "/submissions", poet.Token, submissions.SubmitData{Title: title, Content: "..."})
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())
	return testenv.Decode[submissions.Submission](t, response)
}

func TestApproveMovesSubmissionToPoems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poet := f.server.Named(t, "", "Sylvia Plath")
	submission := submit(t, f.server, poet, "Daddy")
	submit(t, f.server, poet, "Lady Lazarus")
	require.NoError(t, f.dashboard.Open(ctx))
	require.Equal(t, 2, f.dashboard.Totals()[listing.SubmissionsTab])

	note, err := f.moderator.Approve(ctx, submission.Id)
	require.NoError(t, err)
	require.Equal(t, "Daddy", note.Title)
	require.Equal(t, poet.Id, note.UserId)

	// the poem exists and the submission is gone
	_, err = f.gateway.GetNote(ctx, note.Id)
	require.NoError(t, err)
	_, err = f.gateway.GetSubmission(ctx, submission.Id)
	require.ErrorIs(t, err, client.ErrNotFound)

	require.Equal(t, 1, f.dashboard.Totals()[listing.SubmissionsTab])
	require.Equal(t, 1, f.dashboard.Totals()[listing.PoemsTab])
	require.Equal(t, note.Id, f.dashboard.Poems.View().Rows[0].Id)

	// approving twice finds nothing
	_, err = f.moderator.Approve(ctx, submission.Id)
	require.ErrorIs(t, err, client.ErrNotFound)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poet := f.server.Named(t, "", "Ted Hughes")
	submission := submit(t, f.server, poet, "Crow")
	require.NoError(t, f.dashboard.Open(ctx))

	require.NoError(t, f.moderator.Reject(ctx, submission.Id))
	require.Zero(t, f.dashboard.Totals()[listing.SubmissionsTab])
	require.Zero(t, f.dashboard.Totals()[listing.PoemsTab])
	_, err := f.gateway.GetSubmission(ctx, submission.Id)
	require.ErrorIs(t, err, client.ErrNotFound)
}

func TestPlainUsersCantModerate(t *testing.T) {
	server := testenv.NewServer(t)
	ctx := context.Background()
	gateway, controller := signIn(t, server, "")
	moderator, err := moderation.New(moderation.Config{Gateway: gateway, Viewer: controller, Logger: testenv.QuietLogger(), MainAdminEmail: testenv.MainAdminEmail})
	require.NoError(t, err)

	_, err = moderator.Approve(ctx, "anything")
	require.ErrorIs(t, err, moderation.ErrNotAdmin)
	require.ErrorIs(t, moderator.Reject(ctx, "anything"), moderation.ErrNotAdmin)
	_, err = moderator.EditPoem(ctx, "anything", notes.EditNoteData{Title: "x", Content: "y"})
	require.ErrorIs(t, err, moderation.ErrNotAdmin)

	selection := moderation.NewSelection()
	selection.Toggle("anything")
	require.NoError(t, selection.RequestDelete())
	_, err = moderator.ConfirmDelete(ctx, listing.PoemsTab, selection)
	require.ErrorIs(t, err, moderation.ErrNotAdmin)
	require.Equal(t, 1, selection.Len())
}

func TestToggleSemiAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.server.Named(t, "", "Neil Perry")
	require.NoError(t, f.dashboard.Open(ctx))
	require.NoError(t, f.dashboard.Switch(ctx, listing.UsersTab))

	profile, err := f.gateway.GetProfile(ctx, student.Id)
	require.NoError(t, err)
	require.True(t, f.moderator.CanToggleRole(profile))

	promoted, err := f.moderator.ToggleSemiAdmin(ctx, profile)
	require.NoError(t, err)
	require.Equal(t, roles.SemiAdmin, promoted.Role)
	require.False(t, f.moderator.Toggling(student.Id))

	demoted, err := f.moderator.ToggleSemiAdmin(ctx, promoted)
	require.NoError(t, err)
	require.Equal(t, roles.User, demoted.Role)

	for _, row := range f.dashboard.Users.View().Rows {
		if row.Id == student.Id {
			require.Equal(t, roles.User, row.Role)
		}
	}
}

func TestMainAdminRoleIsImmune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keating, err := f.gateway.Session(ctx)
	require.NoError(t, err)
	profile, err := f.gateway.GetProfile(ctx, keating.Id)
	require.NoError(t, err)
	require.False(t, f.moderator.CanToggleRole(profile))

	// whatever the caller's flags, the main admin's row is never sent
	for _, flags := range []roles.Flags{{}, {IsAdmin: true}, {IsAdmin: true, IsMainAdmin: true}} {
		moderator, err := moderation.New(moderation.Config{
			Gateway:        f.gateway,
			Viewer:         viewer{Flags: flags},
			Logger:         testenv.QuietLogger(),
			MainAdminEmail: testenv.MainAdminEmail,
		})
		require.NoError(t, err)
		kept, err := moderator.ToggleSemiAdmin(ctx, profile)
		require.ErrorIs(t, err, moderation.ErrMainAdminImmune)
		require.Equal(t, profile, kept)
	}

	stored, err := f.gateway.GetProfile(ctx, keating.Id)
	require.NoError(t, err)
	require.Equal(t, profile.Role, stored.Role)
}

func TestOnlyTheMainAdminTogglesRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.server.Named(t, "", "Knox Overstreet")
	profile, err := f.gateway.GetProfile(ctx, student.Id)
	require.NoError(t, err)

	moderator, err := moderation.New(moderation.Config{
		Gateway:        f.gateway,
		Viewer:         viewer{Flags: roles.Flags{IsAdmin: true}},
		Logger:         testenv.QuietLogger(),
		MainAdminEmail: testenv.MainAdminEmail,
	})
	require.NoError(t, err)
	require.False(t, moderator.CanToggleRole(profile))
	_, err = moderator.ToggleSemiAdmin(ctx, profile)
	require.ErrorIs(t, err, moderation.ErrNotMainAdmin)
}

// slowRoles holds role changes until released.
type slowRoles struct {
	moderation.Gateway
	entered chan struct{}
	release chan struct{}
}

func (s slowRoles) SetRole(ctx context.Context, id string, role roles.Role) (profiles.Profile, error) {
	s.entered <- struct{}{}
	<-s.release
	return profiles.Profile{Id: id, Role: role}, nil
}

func TestRoleToggleInFlight(t *testing.T) {
	ctx := context.Background()
	gateway := slowRoles{entered: make(chan struct{}), release: make(chan struct{})}
	moderator, err := moderation.New(moderation.Config{
		Gateway:        gateway,
		Viewer:         viewer{Flags: roles.Flags{IsAdmin: true, IsMainAdmin: true}},
		Logger:         testenv.QuietLogger(),
		MainAdminEmail: testenv.MainAdminEmail,
	})
	require.NoError(t, err)

	var profile = profiles.Profile{Id: "meeks", Email: "meeks@welton.edu", Role: roles.User}
	done := make(chan error)
	go func() {
		_, err := moderator.ToggleSemiAdmin(ctx, profile)
		done <- err
	}()
	<-gateway.entered
	require.True(t, moderator.Toggling("meeks"))
	_, err = moderator.ToggleSemiAdmin(ctx, profile)
	require.ErrorIs(t, err, moderation.ErrInFlight)

	close(gateway.release)
	require.NoError(t, <-done)
	require.False(t, moderator.Toggling("meeks"))
}

func TestEditPoem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poet := f.server.Named(t, "", "Robert Frost")
	note := f.server.Publish(t, poet, "The Road Not Taken")
	require.NoError(t, f.dashboard.Open(ctx))

	_, err := f.moderator.EditPoem(ctx, note.Id, notes.EditNoteData{Content: "Two roads diverged"})
	require.Error(t, err)

	edited, err := f.moderator.EditPoem(ctx, note.Id, notes.EditNoteData{Title: "Two Roads", Content: "Two roads diverged in a yellow wood"})
	require.NoError(t, err)
	require.Equal(t, "Two Roads", edited.Title)
	require.Equal(t, "Two Roads", f.dashboard.Poems.View().Rows[0].Title)
}

func TestSelection(t *testing.T) {
	selection := moderation.NewSelection()
	require.ErrorIs(t, selection.RequestDelete(), moderation.ErrNothingSelected)

	selection.Toggle("b")
	selection.Toggle("a")
	selection.Toggle("c")
	selection.Toggle("b")
	require.Equal(t, []string{"a", "c"}, selection.Ids())
	require.True(t, selection.Has("a"))
	require.False(t, selection.Has("b"))

	// selecting all visible rows adds the missing ones, a second call removes them
	selection.SelectAll([]string{"a", "b", "d"})
	require.Equal(t, []string{"a", "b", "c", "d"}, selection.Ids())
	selection.SelectAll([]string{"a", "b", "d"})
	require.Equal(t, []string{"c"}, selection.Ids())

	// changing the selection withdraws the request
	require.NoError(t, selection.RequestDelete())
	require.True(t, selection.DeleteRequested())
	selection.Toggle("e")
	require.False(t, selection.DeleteRequested())

	require.NoError(t, selection.RequestDelete())
	selection.CancelDelete()
	require.False(t, selection.DeleteRequested())

	selection.Clear()
	require.Zero(t, selection.Len())
}

func TestBulkDeletePoems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poet := f.server.Named(t, "", "Elizabeth Bishop")
	var published []notes.Note
	for i := range 5 {
		published = append(published, f.server.Publish(t, poet, fmt.Sprintf("One Art %d", i)))
	}
	require.NoError(t, f.dashboard.Open(ctx))

	selection := moderation.NewSelection()
	for _, i := range []int{1, 3, 4} {
		selection.Toggle(published[i].Id)
	}

	_, err := f.moderator.ConfirmDelete(ctx, listing.PoemsTab, selection)
	require.ErrorIs(t, err, moderation.ErrNotRequested)
	require.NoError(t, selection.RequestDelete())
	_, err = f.moderator.ConfirmDelete(ctx, listing.SubmissionsTab, selection)
	require.ErrorIs(t, err, moderation.ErrUnsupportedTab)

	deleted, err := f.moderator.ConfirmDelete(ctx, listing.PoemsTab, selection)
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
	require.Zero(t, selection.Len())

	// exactly the selected poems are gone
	for i, note := range published {
		_, err := f.gateway.GetNote(ctx, note.Id)
		if i == 1 || i == 3 || i == 4 {
			require.ErrorIs(t, err, client.ErrNotFound)
		} else {
			require.NoError(t, err)
		}
	}
	require.Equal(t, 2, f.dashboard.Totals()[listing.PoemsTab])
	require.Len(t, f.dashboard.Poems.View().Rows, 2)
}

func TestBulkDeleteProfilesSparesMainAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keating, err := f.gateway.Session(ctx)
	require.NoError(t, err)
	first := f.server.Named(t, "", "Charlie Dalton")
	second := f.server.Named(t, "", "Steven Meeks")
	require.NoError(t, f.dashboard.Open(ctx))
	require.NoError(t, f.dashboard.Switch(ctx, listing.UsersTab))

	selection := moderation.NewSelection()
	selection.SelectAll([]string{keating.Id, first.Id, second.Id})
	require.NoError(t, selection.RequestDelete())
	deleted, err := f.moderator.ConfirmDelete(ctx, listing.UsersTab, selection)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	_, err = f.gateway.GetProfile(ctx, keating.Id)
	require.NoError(t, err)
	require.Equal(t, 1, f.dashboard.Totals()[listing.UsersTab])
}
