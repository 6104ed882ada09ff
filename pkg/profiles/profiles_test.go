package profiles_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/silktrader/deadpoets/internal/testenv"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/realtime"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/silktrader/deadpoets/pkg/storage/images"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	*testenv.Platform
	broker *realtime.MemoryBroker
	root   string
}

func setup(t *testing.T) fixture {
	t.Helper()
	platform := testenv.NewPlatform(t)
	broker := realtime.NewMemoryBroker(testenv.QuietLogger())
	root := t.TempDir()
	bucket, err := images.New(testenv.QuietLogger(), root, "http://localhost/storage")
	require.NoError(t, err)

	profiles.RegisterHandlers(platform.Engine, profiles.Handlers{
		Repository:    profiles.NewRepository(platform.Storage.Connection),
		Authenticator: platform.Authenticator,
		Bucket:        bucket,
		Publisher:     broker,
	})
	return fixture{Platform: platform, broker: broker, root: root}
}

func TestNewAccountsHaveIncompleteProfiles(t *testing.T) {
	f := setup(t)
	account := f.SignUp(t, "")

	response := f.Do(t, http.MethodGet, "/profiles/"+account.Id, account.Token, nil)
	require.Equal(t, http.StatusOK, response.Code)
	profile := testenv.Decode[profiles.Profile](t, response)
	require.Nil(t, profile.DisplayName)
	require.False(t, profile.IsComplete())
	require.Equal(t, account.Email, profile.Email)
	require.Equal(t, roles.User, profile.Role)
	require.Empty(t, profile.Followers)
	require.NotNil(t, profile.Followers)
}

func TestMissingProfile(t *testing.T) {
	f := setup(t)
	response := f.Do(t, http.MethodGet, "/profiles/"+gofakeit.UUID(), "", nil)
	require.Equal(t, http.StatusNotFound, response.Code)
}

func TestEmailsAreVisibleToOwnersAndAdminsOnly(t *testing.T) {
	f := setup(t)
	owner := f.Named(t, "", "Neil Perry")
	stranger := f.SignUp(t, "")

	for _, token := range []string{"", stranger.Token} {
		profile := testenv.Decode[profiles.Profile](t, f.Do(t, http.MethodGet, "/profiles/"+owner.Id, token, nil))
		require.Empty(t, profile.Email)
		require.Equal(t, "Neil Perry", profile.Name())
	}

	f.Promote(t, stranger, string(roles.SemiAdmin))
	profile := testenv.Decode[profiles.Profile](t, f.Do(t, http.MethodGet, "/profiles/"+owner.Id, stranger.Token, nil))
	require.Equal(t, owner.Email, profile.Email)
}

func TestUpdateProfile(t *testing.T) {
	f := setup(t)
	account := f.SignUp(t, "")
	other := f.SignUp(t, "")

	subscription, err := f.broker.Subscribe(context.Background(), profiles.Table, account.Id)
	require.NoError(t, err)
	defer subscription.Close()

	data := profiles.UpdateProfileData{DisplayName: "  Todd Anderson ", Bio: "A barbaric yawp over the roofs of the world"}
	response := f.Do(t, http.MethodPut, "/profiles/"+account.Id, other.Token, data)
	require.Equal(t, http.StatusForbidden, response.Code)

	response = f.Do(t, http.MethodPut, "/profiles/"+account.Id, account.Token, data)
	require.Equal(t, http.StatusOK, response.Code)
	profile := testenv.Decode[profiles.Profile](t, response)
	require.Equal(t, "Todd Anderson", profile.Name())
	require.True(t, profile.IsComplete())

	select {
	case event := <-subscription.Events:
		require.Equal(t, realtime.Update, event.Type)
		require.Contains(t, string(event.Row), "Todd Anderson")
	case <-time.After(time.Second):
		t.Fatal("no realtime event after the update")
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	f := setup(t)
	account := f.SignUp(t, "")

	for name, data := range map[string]profiles.UpdateProfileData{
		"blank name":  {DisplayName: "   "},
		"long name":   {DisplayName: strings.Repeat("x", profiles.MaxDisplayName+1)},
		"wordy bio":   {DisplayName: "Charlie", Bio: strings.Repeat("word ", profiles.MaxBioWords+1)},
		"invalid url": {DisplayName: "Charlie", PhotoURL: "not a url"},
	} {
		t.Run(name, func(t *testing.T) {
			response := f.Do(t, http.MethodPut, "/profiles/"+account.Id, account.Token, data)
			require.Equal(t, http.StatusBadRequest, response.Code)
		})
	}

	require.NoError(t, profiles.UpdateProfileData{
		DisplayName: "Charlie Dalton", Bio: strings.Repeat("word ", profiles.MaxBioWords),
	}.Validate())
}

func TestListProfiles(t *testing.T) {
	f := setup(t)
	admin := f.Named(t, testenv.MainAdminEmail, "John Keating")
	user := f.Named(t, "", "Knox Overstreet")
	f.Named(t, "", "Richard Cameron")

	response := f.Do(t, http.MethodGet, "/profiles", user.Token, nil)
	require.Equal(t, http.StatusForbidden, response.Code)

	response = f.Do(t, http.MethodGet, "/profiles?search=overs", admin.Token, nil)
	require.Equal(t, http.StatusOK, response.Code)
	result := testenv.Decode[query.Result[profiles.Profile]](t, response)
	require.Equal(t, 1, result.Total)
	require.Equal(t, user.Id, result.Items[0].Id)

	response = f.Do(t, http.MethodGet, "/profiles?sort=display_name_asc&limit=2", admin.Token, nil)
	result = testenv.Decode[query.Result[profiles.Profile]](t, response)
	require.Equal(t, 3, result.Total)
	require.Len(t, result.Items, 2)
	require.Equal(t, "John Keating", result.Items[0].Name())

	response = f.Do(t, http.MethodGet, "/profiles?search=50%25", admin.Token, nil)
	require.Equal(t, 0, testenv.Decode[query.Result[profiles.Profile]](t, response).Total)

	response = f.Do(t, http.MethodGet, "/profiles?sort=password_asc", admin.Token, nil)
	require.Equal(t, http.StatusBadRequest, response.Code)
}

func TestListPoets(t *testing.T) {
	f := setup(t)
	neil := f.Named(t, "neil@welton.edu", "Neil Perry")
	f.Named(t, "", "Charlie Dalton")
	nameless := f.SignUp(t, "")

	response := f.Do(t, http.MethodGet, "/poets?sort=display_name_asc", "", nil)
	require.Equal(t, http.StatusOK, response.Code)
	result := testenv.Decode[query.Result[profiles.Profile]](t, response)
	require.Equal(t, 2, result.Total)
	require.Equal(t, "Charlie Dalton", result.Items[0].Name())
	require.Equal(t, "Neil Perry", result.Items[1].Name())
	for _, poet := range result.Items {
		require.NotEqual(t, nameless.Id, poet.Id)
		require.Empty(t, poet.Email)
	}

	// names are searched, emails aren't
	response = f.Do(t, http.MethodGet, "/poets?search=welton", "", nil)
	require.Equal(t, 0, testenv.Decode[query.Result[profiles.Profile]](t, response).Total)

	response = f.Do(t, http.MethodGet, "/poets?search=PERRY", neil.Token, nil)
	result = testenv.Decode[query.Result[profiles.Profile]](t, response)
	require.Equal(t, 1, result.Total)
	require.Equal(t, "neil@welton.edu", result.Items[0].Email)

	response = f.Do(t, http.MethodGet, "/poets?sort=email_asc", "", nil)
	require.Equal(t, http.StatusBadRequest, response.Code)
}

func TestSetRole(t *testing.T) {
	f := setup(t)
	keating := f.Named(t, testenv.MainAdminEmail, "John Keating")
	user := f.Named(t, "", "Steven Meeks")

	response := f.Do(t, http.MethodPut, "/profiles/"+user.Id+"/role", user.Token,
		profiles.SetRoleData{Role: roles.SemiAdmin})
	require.Equal(t, http.StatusForbidden, response.Code)

	response = f.Do(t, http.MethodPut, "/profiles/"+user.Id+"/role", keating.Token,
		profiles.SetRoleData{Role: roles.SemiAdmin})
	require.Equal(t, http.StatusOK, response.Code)
	require.Equal(t, roles.SemiAdmin, testenv.Decode[profiles.Profile](t, response).Role)

	// semi-admins can't grant roles, and nobody can touch the main admin
	response = f.Do(t, http.MethodPut, "/profiles/"+keating.Id+"/role", user.Token,
		profiles.SetRoleData{Role: roles.User})
	require.Equal(t, http.StatusForbidden, response.Code)
	response = f.Do(t, http.MethodPut, "/profiles/"+keating.Id+"/role", keating.Token,
		profiles.SetRoleData{Role: roles.User})
	require.Equal(t, http.StatusForbidden, response.Code)

	response = f.Do(t, http.MethodPut, "/profiles/"+user.Id+"/role", keating.Token,
		profiles.SetRoleData{Role: roles.Admin})
	require.Equal(t, http.StatusBadRequest, response.Code)
}

func TestHandleFollow(t *testing.T) {
	f := setup(t)
	follower := f.Named(t, "", "Neil Perry")
	target := f.Named(t, "", "Todd Anderson")

	follow := func(isFollowing bool) int {
		return f.Do(t, http.MethodPost, "/rpc/handle_follow", follower.Token,
			profiles.FollowData{TargetUserId: target.Id, IsFollowing: isFollowing}).Code
	}

	require.Equal(t, http.StatusOK, follow(false))
	require.Equal(t, http.StatusConflict, follow(false))

	profile := testenv.Decode[profiles.Profile](t, f.Do(t, http.MethodGet, "/profiles/"+target.Id, "", nil))
	require.Equal(t, []string{follower.Id}, profile.Followers)
	require.True(t, profile.HasFollower(follower.Id))
	profile = testenv.Decode[profiles.Profile](t, f.Do(t, http.MethodGet, "/profiles/"+follower.Id, "", nil))
	require.Equal(t, []string{target.Id}, profile.Following)

	relations := testenv.Decode[[]profiles.Relation](t, f.Do(t, http.MethodGet, "/profiles/"+target.Id+"/followers", "", nil))
	require.Len(t, relations, 1)
	require.Equal(t, "Neil Perry", *relations[0].DisplayName)

	require.Equal(t, http.StatusOK, follow(true))
	require.Equal(t, http.StatusConflict, follow(true))
	profile = testenv.Decode[profiles.Profile](t, f.Do(t, http.MethodGet, "/profiles/"+target.Id, "", nil))
	require.Empty(t, profile.Followers)

	response := f.Do(t, http.MethodPost, "/rpc/handle_follow", follower.Token,
		profiles.FollowData{TargetUserId: follower.Id})
	require.Equal(t, http.StatusBadRequest, response.Code)
	response = f.Do(t, http.MethodPost, "/rpc/handle_follow", follower.Token,
		profiles.FollowData{TargetUserId: gofakeit.UUID()})
	require.Equal(t, http.StatusNotFound, response.Code)
}

func TestDeleteProfiles(t *testing.T) {
	f := setup(t)
	keating := f.Named(t, testenv.MainAdminEmail, "John Keating")
	semi := f.Named(t, "", "Gerard Pitts")
	f.Promote(t, semi, string(roles.SemiAdmin))

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.SignUp(t, "").Id)
	}

	response := f.Do(t, http.MethodDelete, "/profiles/"+keating.Id, semi.Token, nil)
	require.Equal(t, http.StatusForbidden, response.Code)

	response = f.Do(t, http.MethodDelete, "/profiles?id="+ids[0]+"&id="+ids[2]+"&id="+ids[4]+"&id="+keating.Id, semi.Token, nil)
	require.Equal(t, http.StatusOK, response.Code)
	require.Equal(t, int64(3), testenv.Decode[profiles.DeletedResult](t, response).Deleted)

	for i, id := range ids {
		code := f.Do(t, http.MethodGet, "/profiles/"+id, "", nil).Code
		if i%2 == 0 {
			require.Equal(t, http.StatusNotFound, code)
		} else {
			require.Equal(t, http.StatusOK, code)
		}
	}
	require.Equal(t, http.StatusOK, f.Do(t, http.MethodGet, "/profiles/"+keating.Id, "", nil).Code)

	// account deletion by the owner also ends its sessions
	account := f.SignUp(t, "")
	require.Equal(t, http.StatusNoContent, f.Do(t, http.MethodDelete, "/profiles/"+account.Id, account.Token, nil).Code)
	require.Equal(t, http.StatusUnauthorized, f.Do(t, http.MethodGet, "/auth/session", account.Token, nil).Code)
}

func TestBulkDeleteAnnouncesRemovedRowsOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	keating := f.Named(t, testenv.MainAdminEmail, "John Keating")
	todd := f.Named(t, "", "Todd Anderson")
	var unknown = gofakeit.UUID()

	subscribe := func(id string) *realtime.Subscription {
		subscription, err := f.broker.Subscribe(ctx, profiles.Table, id)
		require.NoError(t, err)
		t.Cleanup(subscription.Close)
		return subscription
	}
	spared, removed, missing := subscribe(keating.Id), subscribe(todd.Id), subscribe(unknown)

	response := f.Do(t, http.MethodDelete, "/profiles?id="+keating.Id+"&id="+todd.Id+"&id="+unknown, keating.Token, nil)
	require.Equal(t, http.StatusOK, response.Code)
	require.Equal(t, int64(1), testenv.Decode[profiles.DeletedResult](t, response).Deleted)
	require.Equal(t, http.StatusOK, f.Do(t, http.MethodGet, "/profiles/"+keating.Id, "", nil).Code)

	// the memory broker delivers while the request is being served
	require.Len(t, removed.Events, 1)
	require.Equal(t, realtime.Delete, (<-removed.Events).Type)
	require.Empty(t, spared.Events)
	require.Empty(t, missing.Events)
}

func TestUploadPhoto(t *testing.T) {
	f := setup(t)
	account := f.SignUp(t, "")
	other := f.SignUp(t, "")

	upload := func(token, id, contentType string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="my face.png"`)
		header.Set("Content-Type", contentType)
		part, err := form.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG"))
		require.NoError(t, err)
		require.NoError(t, form.Close())

		request := httptest.NewRequest(http.MethodPost, "/profiles/"+id+"/photo", &body)
		request.Header.Set("Content-Type", form.FormDataContentType())
		request.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()
		f.Engine.Handler().ServeHTTP(recorder, request)
		return recorder
	}

	require.Equal(t, http.StatusForbidden, upload(other.Token, account.Id, "image/png").Code)
	require.Equal(t, http.StatusBadRequest, upload(account.Token, account.Id, "text/plain").Code)

	response := upload(account.Token, account.Id, "image/png")
	require.Equal(t, http.StatusCreated, response.Code)
	result := testenv.Decode[profiles.PhotoResult](t, response)
	require.True(t, strings.HasPrefix(result.Path, account.Id+"/"))
	require.True(t, strings.HasSuffix(result.Path, "-my-face.png"))
	require.Equal(t, "http://localhost/storage/"+result.Path, result.URL)

	content, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(result.Path)))
	require.NoError(t, err)
	require.Equal(t, "\x89PNG", string(content))
}
