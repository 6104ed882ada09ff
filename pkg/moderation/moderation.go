/*
Package moderation implements the actions of the admin dashboard: approving and rejecting submissions, granting and
revoking the semi-admin role, editing poems and deleting rows in bulk. After each action the affected dashboard tab
is reloaded.
*/
package moderation

import (
	"context"
	"errors"
	"sync"

	"github.com/silktrader/deadpoets/pkg/listing"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/silktrader/deadpoets/pkg/session"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotAdmin        = errors.New("only admins can moderate")
	ErrNotMainAdmin    = errors.New("only the main admin can change roles")
	ErrMainAdminImmune = errors.New("the main admin's role can't be changed")
	ErrInFlight        = errors.New("a role change for this user is already in flight")
	ErrUnsupportedTab  = errors.New("bulk deletion isn't available on this tab")
)

type Gateway interface {
	ApproveSubmission(ctx context.Context, id string) (notes.Note, error)
	RejectSubmission(ctx context.Context, id string) error
	SetRole(ctx context.Context, id string, role roles.Role) (profiles.Profile, error)
	UpdateNote(ctx context.Context, id string, data notes.EditNoteData) (notes.Note, error)
	DeleteNotes(ctx context.Context, ids []string) (int64, error)
	DeleteProfiles(ctx context.Context, ids []string) (int64, error)
}

// Viewer exposes the moderator's own session.
type Viewer interface {
	Snapshot() session.Snapshot
}

// Refresher reloads a dashboard tab; *listing.Dashboard is one.
type Refresher interface {
	Refresh(ctx context.Context, tab listing.Tab) error
}

type Config struct {
	Gateway        Gateway
	Viewer         Viewer
	Logger         logrus.FieldLogger
	MainAdminEmail string
	// Dashboard is optional
	Dashboard Refresher
}

type Moderator struct {
	gateway        Gateway
	viewer         Viewer
	logger         logrus.FieldLogger
	mainAdminEmail string
	dashboard      Refresher

	mu       sync.Mutex
	toggling map[string]struct{}
}

func New(cfg Config) (*Moderator, error) {
	if cfg.Gateway == nil || cfg.Viewer == nil || cfg.Logger == nil {
		return nil, errors.New("gateway, viewer and logger are required")
	}
	return &Moderator{
		gateway:        cfg.Gateway,
		viewer:         cfg.Viewer,
		logger:         cfg.Logger,
		mainAdminEmail: cfg.MainAdminEmail,
		dashboard:      cfg.Dashboard,
		toggling:       make(map[string]struct{}),
	}, nil
}

func (m *Moderator) requireAdmin() error {
	if !m.viewer.Snapshot().IsAdmin {
		return ErrNotAdmin
	}
	return nil
}

// refresh reloads tabs after a successful action; failures only leave the dashboard stale.
func (m *Moderator) refresh(ctx context.Context, tabs ...listing.Tab) {
	if m.dashboard == nil {
		return
	}
	for _, tab := range tabs {
		if err := m.dashboard.Refresh(ctx, tab); err != nil && !errors.Is(err, listing.ErrSuperseded) {
			m.logger.WithError(err).WithField("tab", tab).Warn("can't refresh dashboard")
		}
	}
}

// Approve publishes a submission. The platform inserts the poem and drops the submission in a single transaction.
func (m *Moderator) Approve(ctx context.Context, submissionId string) (notes.Note, error) {
	if err := m.requireAdmin(); err != nil {
		return notes.Note{}, err
	}
	note, err := m.gateway.ApproveSubmission(ctx, submissionId)
	if err != nil {
		m.logger.WithError(err).WithField("submission", submissionId).Warn("can't approve submission")
		return notes.Note{}, err
	}
	m.logger.WithField("submission", submissionId).WithField("note", note.Id).Info("submission approved")
	m.refresh(ctx, listing.SubmissionsTab, listing.PoemsTab)
	return note, nil
}

// Reject discards a submission.
func (m *Moderator) Reject(ctx context.Context, submissionId string) error {
	if err := m.requireAdmin(); err != nil {
		return err
	}
	if err := m.gateway.RejectSubmission(ctx, submissionId); err != nil {
		m.logger.WithError(err).WithField("submission", submissionId).Warn("can't reject submission")
		return err
	}
	m.logger.WithField("submission", submissionId).Info("submission rejected")
	m.refresh(ctx, listing.SubmissionsTab)
	return nil
}

// CanToggleRole tells whether the role toggle should be offered for a profile.
func (m *Moderator) CanToggleRole(profile profiles.Profile) bool {
	return m.viewer.Snapshot().IsMainAdmin && !roles.IsMainAdminEmail(profile.Email, m.mainAdminEmail)
}

// Toggling reports whether a role change for the profile is in flight.
func (m *Moderator) Toggling(profileId string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, found := m.toggling[profileId]
	return found
}

// ToggleSemiAdmin grants or revokes the semi-admin role. The main admin's account is never touched, whoever asks.
func (m *Moderator) ToggleSemiAdmin(ctx context.Context, profile profiles.Profile) (profiles.Profile, error) {
	if roles.IsMainAdminEmail(profile.Email, m.mainAdminEmail) {
		return profile, ErrMainAdminImmune
	}
	if !m.viewer.Snapshot().IsMainAdmin {
		return profile, ErrNotMainAdmin
	}

	m.mu.Lock()
	if _, found := m.toggling[profile.Id]; found {
		m.mu.Unlock()
		return profile, ErrInFlight
	}
	m.toggling[profile.Id] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.toggling, profile.Id)
		m.mu.Unlock()
	}()

	var role = roles.Toggled(profile.Role)
	updated, err := m.gateway.SetRole(ctx, profile.Id, role)
	if err != nil {
		m.logger.WithError(err).WithField("profile", profile.Id).Warn("can't change role")
		return profile, err
	}
	m.logger.WithField("profile", profile.Id).WithField("role", role).Info("role changed")
	m.refresh(ctx, listing.UsersTab)
	return updated, nil
}

// EditPoem saves changes to any poem.
func (m *Moderator) EditPoem(ctx context.Context, noteId string, data notes.EditNoteData) (notes.Note, error) {
	if err := m.requireAdmin(); err != nil {
		return notes.Note{}, err
	}
	if err := data.Validate(); err != nil {
		return notes.Note{}, err
	}
	note, err := m.gateway.UpdateNote(ctx, noteId, data)
	if err != nil {
		m.logger.WithError(err).WithField("note", noteId).Warn("can't edit poem")
		return notes.Note{}, err
	}
	m.refresh(ctx, listing.PoemsTab)
	return note, nil
}
