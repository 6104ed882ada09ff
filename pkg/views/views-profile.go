package views

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/silktrader/deadpoets/pkg/client"
	"github.com/silktrader/deadpoets/pkg/listing"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/session"
	"github.com/sirupsen/logrus"
)

type ProfileGateway interface {
	listing.NoteLister
	GetProfile(ctx context.Context, id string) (profiles.Profile, error)
	UpdateProfile(ctx context.Context, id string, data profiles.UpdateProfileData) (profiles.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
	UploadPhoto(ctx context.Context, profileId, fileName, contentType string, content io.Reader) (profiles.PhotoResult, error)
	HandleFollow(ctx context.Context, targetId string, isFollowing bool) (bool, error)
	Followers(ctx context.Context, id string) ([]profiles.Relation, error)
	Following(ctx context.Context, id string) ([]profiles.Relation, error)
	SignOut(ctx context.Context) error
}

// Viewer is the session of whoever looks at the page.
type Viewer interface {
	Snapshot() session.Snapshot
	Refresh(ctx context.Context)
}

type ProfileConfig struct {
	Gateway   ProfileGateway
	Viewer    Viewer
	Logger    logrus.FieldLogger
	ProfileId string
}

// ProfileView is the page of a single profile along with its poems, newest first.
type ProfileView struct {
	gateway ProfileGateway
	viewer  Viewer
	logger  logrus.FieldLogger
	id      string

	Poems *listing.Collection[notes.Note]

	mu        sync.Mutex
	profile   *profiles.Profile
	departed  bool
	following bool
	deletion  confirmation
}

func NewProfileView(cfg ProfileConfig) (*ProfileView, error) {
	if cfg.Gateway == nil || cfg.Viewer == nil || cfg.Logger == nil {
		return nil, errors.New("gateway, viewer and logger are required")
	}
	if cfg.ProfileId == "" {
		return nil, errors.New("profile id is required")
	}
	var logger = cfg.Logger.WithField("profile", cfg.ProfileId)
	poems, err := listing.New(listing.Config[notes.Note]{
		Fetch:    cfg.Gateway.ListNotes,
		Id:       func(note notes.Note) string { return note.Id },
		PageSize: listing.PoemsPageSize,
		Filters:  listing.Filters{Sort: query.DefaultSort, UserId: cfg.ProfileId},
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &ProfileView{gateway: cfg.Gateway, viewer: cfg.Viewer, logger: logger, id: cfg.ProfileId, Poems: poems}, nil
}

// Load fetches the profile, then its first page of poems. A missing profile marks the poet as departed.
func (v *ProfileView) Load(ctx context.Context) error {
	profile, err := v.gateway.GetProfile(ctx, v.id)
	if errors.Is(err, client.ErrNotFound) {
		v.mu.Lock()
		v.profile, v.departed = nil, true
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		v.logger.WithError(err).Error("can't load profile")
		return err
	}

	v.mu.Lock()
	v.profile, v.departed = &profile, false
	v.mu.Unlock()

	if err = v.Poems.Load(ctx); err != nil && !errors.Is(err, listing.ErrSuperseded) {
		return err
	}
	return nil
}

func (v *ProfileView) Profile() (profiles.Profile, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.profile == nil {
		return profiles.Profile{}, false
	}
	return *v.profile, true
}

func (v *ProfileView) Departed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.departed
}

func (v *ProfileView) IsOwner() bool {
	return v.viewer.Snapshot().UserId() == v.id
}

// IsFollowing reads the viewer's own following list, which the session keeps current.
func (v *ProfileView) IsFollowing() bool {
	var snapshot = v.viewer.Snapshot()
	return snapshot.Profile != nil && slices.Contains(snapshot.Profile.Following, v.id)
}

// ToggleFollow follows or unfollows the profile, then refreshes the viewer's session and reloads the page.
func (v *ProfileView) ToggleFollow(ctx context.Context) error {
	var snapshot = v.viewer.Snapshot()
	switch {
	case !snapshot.SignedIn():
		return ErrSignedOut
	case snapshot.UserId() == v.id:
		return ErrSelfFollow
	case v.Departed():
		return ErrProfileDeparted
	}

	v.mu.Lock()
	if v.following {
		v.mu.Unlock()
		return ErrAlreadyRunning
	}
	v.following = true
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.following = false
		v.mu.Unlock()
	}()

	if _, err := v.gateway.HandleFollow(ctx, v.id, v.IsFollowing()); err != nil {
		v.logger.WithError(err).Warn("can't toggle follow")
		return err
	}
	v.viewer.Refresh(ctx)
	return v.Load(ctx)
}

// Followers lists who follows the profile.
func (v *ProfileView) Followers(ctx context.Context) ([]profiles.Relation, error) {
	return v.gateway.Followers(ctx, v.id)
}

// Following lists whom the profile follows.
func (v *ProfileView) Following(ctx context.Context) ([]profiles.Relation, error) {
	return v.gateway.Following(ctx, v.id)
}

// Edit saves the owner's changes, adopts the returned row and refreshes the session.
func (v *ProfileView) Edit(ctx context.Context, data profiles.UpdateProfileData) error {
	if !v.IsOwner() {
		return ErrNotOwner
	}
	if err := data.Validate(); err != nil {
		return err
	}
	profile, err := v.gateway.UpdateProfile(ctx, v.id, data)
	if err != nil {
		v.logger.WithError(err).Warn("can't save profile")
		return err
	}
	v.mu.Lock()
	v.profile, v.departed = &profile, false
	v.mu.Unlock()
	v.viewer.Refresh(ctx)
	return nil
}

// UploadPhoto stores a new picture and returns its public URL, to be saved with the next edit.
func (v *ProfileView) UploadPhoto(ctx context.Context, fileName, contentType string, content io.Reader) (string, error) {
	if !v.IsOwner() {
		return "", ErrNotOwner
	}
	result, err := v.gateway.UploadPhoto(ctx, v.id, fileName, contentType, content)
	if err != nil {
		v.logger.WithError(err).Warn("can't upload photo")
		return "", err
	}
	return result.URL, nil
}

// RequestDelete opens the confirmation step of the account deletion.
func (v *ProfileView) RequestDelete() error {
	if !v.IsOwner() {
		return ErrNotOwner
	}
	v.mu.Lock()
	v.deletion.request()
	v.mu.Unlock()
	return nil
}

func (v *ProfileView) CancelDelete() {
	v.mu.Lock()
	v.deletion.cancel()
	v.mu.Unlock()
}

// ConfirmDelete removes the account, signs out and returns the home path.
func (v *ProfileView) ConfirmDelete(ctx context.Context) (string, error) {
	v.mu.Lock()
	var requested = v.deletion.consume()
	v.mu.Unlock()
	if !requested {
		return "", ErrNotConfirmed
	}
	if !v.IsOwner() {
		return "", ErrNotOwner
	}

	if err := v.gateway.DeleteProfile(ctx, v.id); err != nil {
		v.logger.WithError(err).Warn("can't delete account")
		return "", err
	}
	// the platform already revoked the session along with the account
	if err := v.gateway.SignOut(ctx); err != nil {
		v.logger.WithError(err).Debug("sign out after account deletion")
	}
	v.mu.Lock()
	v.profile, v.departed = nil, true
	v.mu.Unlock()
	return HomePath, nil
}
