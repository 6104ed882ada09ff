package submissions_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/silktrader/deadpoets/internal/testenv"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/silktrader/deadpoets/pkg/submissions"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	*testenv.Platform
	store *submissions.Store
	poet  testenv.Account
	admin testenv.Account
}

func setup(t *testing.T) fixture {
	t.Helper()
	platform := testenv.NewPlatform(t)
	notesStore := notes.NewStore(platform.Storage.Connection)
	store := submissions.NewStore(platform.Storage.Connection, notesStore)
	notes.RegisterHandlers(platform.Engine, notesStore, platform.Authenticator)
	submissions.RegisterHandlers(platform.Engine, store, platform.Authenticator)

	admin := platform.Named(t, "", "Mr. Nolan")
	platform.Promote(t, admin, string(roles.Admin))
	return fixture{
		Platform: platform,
		store:    store,
		poet:     platform.Named(t, "", "Todd Anderson"),
		admin:    admin,
	}
}

func (f fixture) submit(t *testing.T, data submissions.SubmitData) submissions.Submission {
	t.Helper()
	response := f.Do(t, http.MethodPost, "/submissions", f.poet.Token, data)
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())
	return testenv.Decode[submissions.Submission](t, response)
}

func TestSubmit(t *testing.T) {
	f := setup(t)

	submission := f.submit(t, submissions.SubmitData{
		Title: "Ode", Description: "A sweaty-toothed madman", Content: "...", Tags: notes.Tags{"yawp"},
	})
	require.Equal(t, "Todd Anderson", submission.PoetName)
	require.Equal(t, f.poet.Id, submission.UserId)
	require.Equal(t, submissions.Pending, submission.Status)
	require.True(t, submission.SubmittedAt.IsValid())

	newcomer := f.SignUp(t, "")
	response := f.Do(t, http.MethodPost, "/submissions", newcomer.Token, submissions.SubmitData{Title: "x", Content: "x"})
	require.Equal(t, http.StatusForbidden, response.Code)
}

func TestSubmitValidation(t *testing.T) {
	f := setup(t)
	for name, data := range map[string]submissions.SubmitData{
		"missing title":    {Content: "x"},
		"long title":       {Title: strings.Repeat("t", submissions.MaxTitle+1), Content: "x"},
		"long description": {Title: "t", Description: strings.Repeat("d", submissions.MaxDescription+1), Content: "x"},
		"missing content":  {Title: "t"},
	} {
		t.Run(name, func(t *testing.T) {
			response := f.Do(t, http.MethodPost, "/submissions", f.poet.Token, data)
			require.Equal(t, http.StatusBadRequest, response.Code)
		})
	}
}

func TestPendingQueueIsForAdmins(t *testing.T) {
	f := setup(t)
	first := f.submit(t, submissions.SubmitData{Title: "First", Content: gofakeit.Sentence(5)})
	second := f.submit(t, submissions.SubmitData{Title: "Second", Content: gofakeit.Sentence(5)})

	response := f.Do(t, http.MethodGet, "/submissions", f.poet.Token, nil)
	require.Equal(t, http.StatusForbidden, response.Code)

	response = f.Do(t, http.MethodGet, "/submissions", f.admin.Token, nil)
	require.Equal(t, http.StatusOK, response.Code)
	result := testenv.Decode[query.Result[submissions.Submission]](t, response)
	require.Equal(t, 2, result.Total)
	require.Equal(t, second.Id, result.Items[0].Id)
	require.Equal(t, first.Id, result.Items[1].Id)

	response = f.Do(t, http.MethodGet, "/submissions?search=fir", f.admin.Token, nil)
	require.Equal(t, 1, testenv.Decode[query.Result[submissions.Submission]](t, response).Total)

	response = f.Do(t, http.MethodGet, "/submissions/"+first.Id, f.admin.Token, nil)
	require.Equal(t, http.StatusOK, response.Code)
}

func TestApprovePublishesAndRemovesAtomically(t *testing.T) {
	f := setup(t)
	submission := f.submit(t, submissions.SubmitData{
		Title: "Ode", Description: "Seize the day", Content: "...", Tags: notes.Tags{"latin"},
	})

	response := f.Do(t, http.MethodPost, "/submissions/"+submission.Id+"/approve", f.poet.Token, nil)
	require.Equal(t, http.StatusForbidden, response.Code)

	response = f.Do(t, http.MethodPost, "/submissions/"+submission.Id+"/approve", f.admin.Token, nil)
	require.Equal(t, http.StatusCreated, response.Code)
	note := testenv.Decode[notes.Note](t, response)
	require.Equal(t, "Ode", note.Title)
	require.Equal(t, "...", note.Content)
	require.Equal(t, f.poet.Id, note.UserId)
	require.Equal(t, "Seize the day", note.Preview)
	require.Equal(t, "Todd Anderson", note.PoetName)

	response = f.Do(t, http.MethodGet, "/notes/"+note.Id, "", nil)
	require.Equal(t, http.StatusOK, response.Code)
	response = f.Do(t, http.MethodGet, "/submissions/"+submission.Id, f.admin.Token, nil)
	require.Equal(t, http.StatusNotFound, response.Code)

	// approving twice can't publish a duplicate
	response = f.Do(t, http.MethodPost, "/submissions/"+submission.Id+"/approve", f.admin.Token, nil)
	require.Equal(t, http.StatusNotFound, response.Code)
	response = f.Do(t, http.MethodGet, "/notes?search=ode", "", nil)
	require.Equal(t, 1, testenv.Decode[query.Result[notes.Note]](t, response).Total)
}

func TestApproveRollsBackOnFailure(t *testing.T) {
	f := setup(t)
	submission := f.submit(t, submissions.SubmitData{Title: "Doomed", Content: "..."})

	// the notes table refuses inserts, so the submission must survive the failed approval
	_, err := f.Storage.Connection.Exec(`
		CREATE TRIGGER refuse_notes BEFORE INSERT ON notes BEGIN SELECT RAISE(ABORT, 'refused'); END`)
	require.NoError(t, err)

	_, err = f.store.Approve(submission.Id)
	require.Error(t, err)

	pending, err := f.store.Get(submission.Id)
	require.NoError(t, err)
	require.Equal(t, "Doomed", pending.Title)
}

func TestReject(t *testing.T) {
	f := setup(t)
	submission := f.submit(t, submissions.SubmitData{Title: "Meh", Content: "..."})

	response := f.Do(t, http.MethodDelete, "/submissions/"+submission.Id, f.admin.Token, nil)
	require.Equal(t, http.StatusNoContent, response.Code)
	response = f.Do(t, http.MethodDelete, "/submissions/"+submission.Id, f.admin.Token, nil)
	require.Equal(t, http.StatusNotFound, response.Code)

	response = f.Do(t, http.MethodGet, "/notes", "", nil)
	require.Zero(t, testenv.Decode[query.Result[notes.Note]](t, response).Total)
}
