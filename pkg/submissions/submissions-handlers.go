package submissions

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/silktrader/deadpoets/pkg/auth"
	JSON "github.com/silktrader/deadpoets/pkg/json-utilities"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/rest"
)

var listDefaults = query.Defaults{Limit: 20, SortFields: []string{"created_at", "title"}}

func RegisterHandlers(engine *rest.Engine, ss *Store, authenticator *auth.Authenticator) {
	engine.Post("/submissions", submit(ss), authenticator.Auth)
	engine.Get("/submissions", getPending(ss), authenticator.Auth, auth.AdminOnly)
	engine.Get("/submissions/:id", getSubmission(ss), authenticator.Auth, auth.AdminOnly)
	engine.Post("/submissions/:id/approve", approve(ss), authenticator.Auth, auth.AdminOnly)
	engine.Delete("/submissions/:id", reject(ss), authenticator.Auth, auth.AdminOnly)
}

// submit handles the POST "/submissions" route; the poet's name comes from the submitter's profile
func submit(ss *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var identity = auth.MustGetUser(request)
		if identity.DisplayName == "" {
			JSON.ForbiddenWithMessage(writer, "Complete your profile before submitting poems")
			return
		}

		data, err := JSON.DecodeValidate[SubmitData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		submission, err := ss.Submit(identity.Id, identity.DisplayName, data)
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		rest.Logger(request).WithField("submission", submission.Id).Info("poem submitted")
		JSON.Created(writer, submission)
	}
}

// getPending handles the GET "/submissions" route
func getPending(ss *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		params, err := query.FromValues(request.URL.Query(), listDefaults)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		if result, err := ss.ListPending(params); err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Ok(writer, result)
		}
	}
}

func getSubmission(ss *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		submission, err := ss.Get(id)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, fmt.Sprintf("Submission %s doesn't exist", id))
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Ok(writer, submission)
		}
	}
}

// approve handles the POST "/submissions/:id/approve" route and returns the published note
func approve(ss *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		note, err := ss.Approve(id)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, fmt.Sprintf("Submission %s doesn't exist", id))
			return
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		rest.Logger(request).WithField("submission", id).WithField("note", note.Id).Info("submission approved")
		JSON.Created(writer, note)
	}
}

// reject handles the DELETE "/submissions/:id" route
func reject(ss *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		if err := ss.Reject(id); errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, fmt.Sprintf("Submission %s doesn't exist", id))
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			rest.Logger(request).WithField("submission", id).Info("submission rejected")
			JSON.NoContent(writer)
		}
	}
}
