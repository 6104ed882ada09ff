package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/roles"
)

func (c *Client) GetProfile(ctx context.Context, id string) (profile profiles.Profile, err error) {
	err = c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(id), nil, nil, &profile)
	return profile, err
}

func (c *Client) ListProfiles(ctx context.Context, params query.Params) (result query.Result[profiles.Profile], err error) {
	err = c.do(ctx, http.MethodGet, "/profiles", params.Values(), nil, &result)
	return result, err
}

// ListPoets pages through the public directory of named profiles.
func (c *Client) ListPoets(ctx context.Context, params query.Params) (result query.Result[profiles.Profile], err error) {
	err = c.do(ctx, http.MethodGet, "/poets", params.Values(), nil, &result)
	return result, err
}

func (c *Client) UpdateProfile(ctx context.Context, id string, data profiles.UpdateProfileData) (profile profiles.Profile, err error) {
	err = c.do(ctx, http.MethodPut, "/profiles/"+url.PathEscape(id), nil, data, &profile)
	return profile, err
}

func (c *Client) SetRole(ctx context.Context, id string, role roles.Role) (profile profiles.Profile, err error) {
	err = c.do(ctx, http.MethodPut, "/profiles/"+url.PathEscape(id)+"/role", nil, profiles.SetRoleData{Role: role}, &profile)
	return profile, err
}

func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/profiles/"+url.PathEscape(id), nil, nil, nil)
}

// DeleteProfiles removes every given profile in one call and returns how many were deleted.
func (c *Client) DeleteProfiles(ctx context.Context, ids []string) (int64, error) {
	var result profiles.DeletedResult
	err := c.do(ctx, http.MethodDelete, "/profiles", url.Values{"id": ids}, nil, &result)
	return result.Deleted, err
}

func (c *Client) Followers(ctx context.Context, id string) (relations []profiles.Relation, err error) {
	err = c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(id)+"/followers", nil, nil, &relations)
	return relations, err
}

func (c *Client) Following(ctx context.Context, id string) (relations []profiles.Relation, err error) {
	err = c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(id)+"/following", nil, nil, &relations)
	return relations, err
}

// HandleFollow toggles the follow relation with target; isFollowing is the caller's current state.
func (c *Client) HandleFollow(ctx context.Context, targetId string, isFollowing bool) (bool, error) {
	var result profiles.FollowResult
	err := c.do(ctx, http.MethodPost, "/rpc/handle_follow", nil,
		profiles.FollowData{TargetUserId: targetId, IsFollowing: isFollowing}, &result)
	return result.Following, err
}

// UploadPhoto stores an image under the profile's prefix and returns its path and public URL.
func (c *Client) UploadPhoto(ctx context.Context, profileId, fileName, contentType string, content io.Reader) (result profiles.PhotoResult, err error) {
	var body bytes.Buffer
	var form = multipart.NewWriter(&body)
	var header = make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return result, err
	}
	if _, err = io.Copy(part, content); err != nil {
		return result, err
	}
	if err = form.Close(); err != nil {
		return result, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/profiles/"+url.PathEscape(profileId)+"/photo", nil), &body)
	if err != nil {
		return result, err
	}
	request.Header.Set("Content-Type", form.FormDataContentType())
	return result, c.send(request, &result)
}
