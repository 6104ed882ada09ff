package notes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/silktrader/deadpoets/pkg/auth"
	JSON "github.com/silktrader/deadpoets/pkg/json-utilities"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/rest"
)

var listDefaults = query.Defaults{Limit: 8, SortFields: []string{"created_at", "applause_count", "title"}}

func RegisterHandlers(engine *rest.Engine, ns *Store, authenticator *auth.Authenticator) {
	engine.Get("/notes", getNotes(ns))
	engine.Delete("/notes", deleteNotes(ns), authenticator.Auth, auth.AdminOnly)

	engine.Get("/notes/:id", getNote(ns))
	engine.Put("/notes/:id", updateNote(ns), authenticator.Auth)
	engine.Delete("/notes/:id", deleteNote(ns), authenticator.Auth)
	engine.Get("/notes/:id/applause", getApplause(ns), authenticator.Auth)

	engine.Post("/rpc/toggle_applause", toggleApplause(ns), authenticator.Auth)
}

// getNotes handles the public GET "/notes" route, with search, tag, sort and window parameters
func getNotes(ns *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		params, err := query.FromValues(request.URL.Query(), listDefaults)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		if result, err := ns.List(params); err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Ok(writer, result)
		}
	}
}

func getNote(ns *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		note, err := ns.Get(id)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, fmt.Sprintf("Note %s doesn't exist", id))
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Ok(writer, note)
		}
	}
}

// authorise lets owners and admins through, writing the refusal otherwise
func authorise(ns *Store, writer http.ResponseWriter, request *http.Request, id string) bool {
	owner, err := ns.GetOwner(id)
	if errors.Is(err, ErrNotFound) {
		JSON.NotFound(writer, fmt.Sprintf("Note %s doesn't exist", id))
		return false
	} else if err != nil {
		JSON.InternalServerError(writer, request, err)
		return false
	}
	if identity := auth.MustGetUser(request); identity.Id != owner && !identity.IsAdmin {
		JSON.Forbidden(writer)
		return false
	}
	return true
}

// updateNote handles the PUT "/notes/:id" route and returns the stored row
func updateNote(ns *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		data, err := JSON.DecodeValidate[EditNoteData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		if !authorise(ns, writer, request, id) {
			return
		}

		if note, err := ns.Update(id, data); err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Ok(writer, note)
		}
	}
}

func deleteNote(ns *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		if !authorise(ns, writer, request, id) {
			return
		}
		if err := ns.Delete(id); err != nil && !errors.Is(err, ErrNotFound) {
			JSON.InternalServerError(writer, request, err)
			return
		}
		JSON.NoContent(writer)
	}
}

// deleteNotes handles the admin DELETE "/notes?id=" route, removing every listed note in one statement
func deleteNotes(ns *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var ids = request.URL.Query()["id"]
		if len(ids) == 0 {
			JSON.BadRequestWithMessage(writer, errNoIds.Error())
			return
		}
		deleted, err := ns.DeleteMany(ids)
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		rest.Logger(request).WithField("deleted", deleted).Info("notes deleted")
		JSON.Ok(writer, DeletedResult{Deleted: deleted})
	}
}

func getApplause(ns *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		applauded, err := ns.HasApplauded(auth.MustGetUser(request).Id, rest.GetParam(request, "id"))
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		JSON.Ok(writer, ApplauseStatus{Applauded: applauded})
	}
}

// toggleApplause handles the POST "/rpc/toggle_applause" route
func toggleApplause(ns *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[ApplauseData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		result, err := ns.ToggleApplause(auth.MustGetUser(request).Id, data.NoteId, data.IsApplauded)
		switch {
		case errors.Is(err, ErrNotFound):
			JSON.NotFound(writer, fmt.Sprintf("Note %s doesn't exist", data.NoteId))
		case errors.Is(err, ErrDupApplause), errors.Is(err, ErrNotApplauded):
			JSON.Conflict(writer, err.Error())
		case err != nil:
			JSON.InternalServerError(writer, request, err)
		default:
			JSON.Ok(writer, result)
		}
	}
}
