package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/silktrader/deadpoets/pkg/auth"
	JSON "github.com/silktrader/deadpoets/pkg/json-utilities"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/realtime"
	"github.com/silktrader/deadpoets/pkg/rest"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/silktrader/deadpoets/pkg/storage/images"
)

// Table names the profiles rows in realtime events.
const Table = "profiles"

// maxPhotoBytes bounds profile photo uploads, multipart overhead included.
const maxPhotoBytes = 5 << 20

var (
	listDefaults  = query.Defaults{Limit: 20, SortFields: []string{"created_at", "display_name", "email"}}
	poetsDefaults = query.Defaults{Limit: 20, SortFields: []string{"created_at", "display_name"}}
)

type Publisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}

// Handlers bundles what the profile routes need.
type Handlers struct {
	Repository    *Repository
	Authenticator *auth.Authenticator
	Bucket        images.Bucket
	Publisher     Publisher
}

func RegisterHandlers(engine *rest.Engine, h Handlers) {
	var a = h.Authenticator
	engine.Get("/profiles", getProfiles(h.Repository), a.Auth, auth.AdminOnly)
	engine.Delete("/profiles", deleteProfiles(h), a.Auth, auth.AdminOnly)
	engine.Get("/poets", getPoets(h.Repository), a.Optional)

	engine.Get("/profiles/:id", getProfile(h.Repository), a.Optional)
	engine.Put("/profiles/:id", updateProfile(h), a.Auth)
	engine.Delete("/profiles/:id", deleteProfile(h), a.Auth)
	engine.Put("/profiles/:id/role", setRole(h), a.Auth, auth.MainAdminOnly)
	engine.Post("/profiles/:id/photo", uploadPhoto(h), a.Auth)

	engine.Get("/profiles/:id/followers", getFollowers(h.Repository), a.Optional)
	engine.Get("/profiles/:id/following", getFollowing(h.Repository), a.Optional)
	engine.Post("/rpc/handle_follow", handleFollow(h), a.Auth)
}

// canManage grants owners and admins write access to a profile.
func canManage(identity auth.Identity, profileId string) bool {
	return identity.Id == profileId || identity.IsAdmin
}

// redacted hides emails from anyone but the owner and admins.
func redacted(request *http.Request, profile Profile) Profile {
	if identity, found := auth.GetUser(request); !found || !canManage(identity, profile.Id) {
		profile.Email = ""
	}
	return profile
}

// getProfiles handles the GET "/profiles" route, for admins only
func getProfiles(pr *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		params, err := query.FromValues(request.URL.Query(), listDefaults)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		if result, err := pr.List(params); err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Ok(writer, result)
		}
	}
}

// getPoets handles the public GET "/poets" route: named profiles only, emails shown to owners and admins
func getPoets(pr *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		params, err := query.FromValues(request.URL.Query(), poetsDefaults)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		result, err := pr.ListPoets(params)
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		for i, profile := range result.Items {
			result.Items[i] = redacted(request, profile)
		}
		JSON.Ok(writer, result)
	}
}

// getProfile handles the GET "/profiles/:id" route; a 404 tells clients the account no longer exists
func getProfile(pr *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		profile, err := pr.GetById(id)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, fmt.Sprintf("Profile %s doesn't exist", id))
			return
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		JSON.Ok(writer, redacted(request, profile))
	}
}

// updateProfile handles the PUT "/profiles/:id" route
func updateProfile(h Handlers) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		if !canManage(auth.MustGetUser(request), id) {
			JSON.Forbidden(writer)
			return
		}

		data, err := JSON.DecodeValidate[UpdateProfileData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		profile, err := h.Repository.Update(id, data)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}

		h.publish(request, profile)
		JSON.Ok(writer, profile)
	}
}

// setRole handles the PUT "/profiles/:id/role" route; the main admin's own account is immune
func setRole(h Handlers) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		data, err := JSON.DecodeValidate[SetRoleData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		target, err := h.Repository.GetById(id)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		if roles.IsMainAdminEmail(target.Email, h.Authenticator.MainAdminEmail()) {
			JSON.ForbiddenWithMessage(writer, "The main admin's role can't be changed")
			return
		}

		profile, err := h.Repository.SetRole(id, data.Role)
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}

		rest.Logger(request).WithField("profile", id).WithField("role", data.Role).Info("role changed")
		h.publish(request, profile)
		JSON.Ok(writer, profile)
	}
}

// deleteProfile handles the DELETE "/profiles/:id" route, used for both account deletion and moderation
func deleteProfile(h Handlers) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		var identity = auth.MustGetUser(request)
		if !canManage(identity, id) {
			JSON.Forbidden(writer)
			return
		}

		target, err := h.Repository.GetById(id)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		if identity.Id != id && roles.IsMainAdminEmail(target.Email, h.Authenticator.MainAdminEmail()) {
			JSON.ForbiddenWithMessage(writer, "The main admin can't be removed")
			return
		}

		if err = h.Repository.Delete(id); err != nil && !errors.Is(err, ErrNotFound) {
			JSON.InternalServerError(writer, request, err)
			return
		}
		h.publishDeletion(request, id)
		JSON.NoContent(writer)
	}
}

// deleteProfiles handles the DELETE "/profiles?id=" route, deleting every listed profile in one statement
func deleteProfiles(h Handlers) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var ids = request.URL.Query()["id"]
		if len(ids) == 0 {
			JSON.BadRequestWithMessage(writer, errNoIds.Error())
			return
		}

		deleted, err := h.Repository.DeleteMany(ids, h.Authenticator.MainAdminEmail())
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		// only removed rows are announced: the main admin is spared and unknown ids match nothing
		for _, id := range deleted {
			h.publishDeletion(request, id)
		}
		rest.Logger(request).WithField("deleted", len(deleted)).Info("profiles deleted")
		JSON.Ok(writer, DeletedResult{Deleted: int64(len(deleted))})
	}
}

// uploadPhoto handles the POST "/profiles/:id/photo" route; files land under the owner's prefix
func uploadPhoto(h Handlers) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		if auth.MustGetUser(request).Id != id {
			JSON.Forbidden(writer)
			return
		}

		request.Body = http.MaxBytesReader(writer, request.Body, maxPhotoBytes)
		file, header, err := request.FormFile("image")
		if err != nil {
			JSON.BadRequestWithMessage(writer, "An image file is required")
			return
		}
		defer file.Close()

		var contentType = header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			JSON.BadRequestWithMessage(writer, "Only images are accepted")
			return
		}

		var name = strings.ReplaceAll(path.Base("/"+strings.ReplaceAll(header.Filename, `\`, "/")), " ", "-")
		var objectPath = fmt.Sprintf("%s/%d-%s", id, time.Now().UnixMilli(), name)
		if err = h.Bucket.Upload(request.Context(), objectPath, file, header.Size, contentType); err != nil {
			if errors.Is(err, images.ErrInvalidPath) {
				JSON.BadRequestWithMessage(writer, "Invalid file name")
				return
			}
			JSON.InternalServerError(writer, request, err)
			return
		}

		JSON.Created(writer, PhotoResult{Path: objectPath, URL: h.Bucket.PublicURL(objectPath)})
	}
}

func getFollowers(pr *Repository) http.HandlerFunc {
	return relationsHandler(pr.GetFollowers)
}

func getFollowing(pr *Repository) http.HandlerFunc {
	return relationsHandler(pr.GetFollowing)
}

func relationsHandler(fetch func(id string) ([]Relation, error)) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		relations, err := fetch(id)
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, fmt.Sprintf("Profile %s doesn't exist", id))
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Ok(writer, relations)
		}
	}
}

// handleFollow handles the POST "/rpc/handle_follow" route, toggling a follow relation atomically
func handleFollow(h Handlers) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var follower = auth.MustGetUser(request)

		data, err := JSON.DecodeValidate[FollowData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		following, err := h.Repository.ToggleFollow(follower.Id, data.TargetUserId, data.IsFollowing)
		switch {
		case errors.Is(err, ErrSelfFollow):
			JSON.BadRequestWithMessage(writer, err.Error())
			return
		case errors.Is(err, ErrNotFound):
			JSON.NotFound(writer, "Profile not found")
			return
		case errors.Is(err, ErrDupFollower), errors.Is(err, ErrNotFollowing):
			JSON.Conflict(writer, err.Error())
			return
		case err != nil:
			JSON.InternalServerError(writer, request, err)
			return
		}

		// both rows changed: the follower's following list and the target's followers
		for _, id := range []string{follower.Id, data.TargetUserId} {
			if profile, err := h.Repository.GetById(id); err == nil {
				h.publish(request, profile)
			}
		}
		JSON.Ok(writer, FollowResult{Following: following})
	}
}

// publish notifies the row's subscribers; failures are logged, the mutation already succeeded
func (h Handlers) publish(request *http.Request, profile Profile) {
	if h.Publisher == nil {
		return
	}
	row, err := json.Marshal(profile)
	if err != nil {
		rest.Logger(request).WithError(err).Error("can't encode profile event")
		return
	}
	var event = realtime.Event{Table: Table, Type: realtime.Update, RowId: profile.Id, Row: row}
	if err = h.Publisher.Publish(request.Context(), event); err != nil {
		rest.Logger(request).WithError(err).Warn("can't publish profile event")
	}
}

func (h Handlers) publishDeletion(request *http.Request, id string) {
	if h.Publisher == nil {
		return
	}
	var event = realtime.Event{Table: Table, Type: realtime.Delete, RowId: id}
	if err := h.Publisher.Publish(request.Context(), event); err != nil {
		rest.Logger(request).WithError(err).Warn("can't publish profile event")
	}
}
