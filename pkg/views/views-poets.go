package views

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/silktrader/deadpoets/pkg/listing"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/sirupsen/logrus"
)

type PoetsGateway interface {
	listing.PoetLister
	HandleFollow(ctx context.Context, targetId string, isFollowing bool) (bool, error)
}

type PoetsConfig struct {
	Gateway PoetsGateway
	Viewer  Viewer
	Logger  logrus.FieldLogger
}

// PoetsView is the directory of named profiles, with a follow button on every row.
type PoetsView struct {
	gateway PoetsGateway
	viewer  Viewer
	logger  logrus.FieldLogger

	Poets *listing.Browser[profiles.Profile]

	mu       sync.Mutex
	toggling map[string]struct{}
}

// NewPoetsView builds the directory; ctx bounds the loads triggered by its search box.
func NewPoetsView(ctx context.Context, cfg PoetsConfig) (*PoetsView, error) {
	if cfg.Gateway == nil || cfg.Viewer == nil || cfg.Logger == nil {
		return nil, errors.New("gateway, viewer and logger are required")
	}
	poets, err := listing.Poets(ctx, cfg.Gateway, listing.Config[profiles.Profile]{Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	return &PoetsView{
		gateway:  cfg.Gateway,
		viewer:   cfg.Viewer,
		logger:   cfg.Logger,
		Poets:    poets,
		toggling: make(map[string]struct{}),
	}, nil
}

func (v *PoetsView) Load(ctx context.Context) error {
	if err := v.Poets.Load(ctx); err != nil && !errors.Is(err, listing.ErrSuperseded) {
		return err
	}
	return nil
}

// IsFollowing reads the viewer's own following list.
func (v *PoetsView) IsFollowing(id string) bool {
	var snapshot = v.viewer.Snapshot()
	return snapshot.Profile != nil && slices.Contains(snapshot.Profile.Following, id)
}

// CanFollow tells whether the row gets a follow button: signed in viewers, never on their own row.
func (v *PoetsView) CanFollow(id string) bool {
	var snapshot = v.viewer.Snapshot()
	return snapshot.SignedIn() && snapshot.UserId() != id
}

func (v *PoetsView) Toggling(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, found := v.toggling[id]
	return found
}

// ToggleFollow follows or unfollows a poet from the list, then refreshes the viewer's session so that every row's
// button reflects the new following list.
func (v *PoetsView) ToggleFollow(ctx context.Context, id string) error {
	var snapshot = v.viewer.Snapshot()
	switch {
	case !snapshot.SignedIn():
		return ErrSignedOut
	case snapshot.UserId() == id:
		return ErrSelfFollow
	}

	v.mu.Lock()
	if _, found := v.toggling[id]; found {
		v.mu.Unlock()
		return ErrAlreadyRunning
	}
	v.toggling[id] = struct{}{}
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		delete(v.toggling, id)
		v.mu.Unlock()
	}()

	if _, err := v.gateway.HandleFollow(ctx, id, v.IsFollowing(id)); err != nil {
		v.logger.WithError(err).WithField("profile", id).Warn("can't toggle follow")
		return err
	}
	v.viewer.Refresh(ctx)
	return nil
}

// Close drops a pending search.
func (v *PoetsView) Close() {
	v.Poets.Close()
}
