package views

import (
	"context"
	"errors"
	"sync"

	"github.com/silktrader/deadpoets/pkg/client"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/sirupsen/logrus"
)

type NoteGateway interface {
	GetNote(ctx context.Context, id string) (notes.Note, error)
	UpdateNote(ctx context.Context, id string, data notes.EditNoteData) (notes.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

type NoteConfig struct {
	Gateway NoteGateway
	Logger  logrus.FieldLogger
	// ViewerId is the signed in user, empty for anonymous readers
	ViewerId string
}

// NoteView is the page of a single poem.
type NoteView struct {
	gateway  NoteGateway
	logger   logrus.FieldLogger
	viewerId string

	mu       sync.Mutex
	note     *notes.Note
	missing  bool
	deletion confirmation
}

func NewNoteView(cfg NoteConfig) (*NoteView, error) {
	if cfg.Gateway == nil || cfg.Logger == nil {
		return nil, errors.New("gateway and logger are required")
	}
	return &NoteView{gateway: cfg.Gateway, logger: cfg.Logger, viewerId: cfg.ViewerId}, nil
}

// Load fetches the poem. A missing poem isn't an error: Missing reports it.
func (v *NoteView) Load(ctx context.Context, id string) error {
	note, err := v.gateway.GetNote(ctx, id)
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case errors.Is(err, client.ErrNotFound):
		v.note, v.missing = nil, true
		return nil
	case err != nil:
		v.logger.WithError(err).WithField("note", id).Error("can't load poem")
		return err
	}
	v.note, v.missing = &note, false
	return nil
}

// Note returns the loaded poem.
func (v *NoteView) Note() (notes.Note, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.note == nil {
		return notes.Note{}, false
	}
	return *v.note, true
}

func (v *NoteView) Missing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.missing
}

// IsOwner tells whether the edit and delete actions should be offered.
func (v *NoteView) IsOwner() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.note != nil && v.viewerId != "" && v.viewerId == v.note.UserId
}

// Edit saves the changes and adopts the returned row. On failure the poem is left as it was.
func (v *NoteView) Edit(ctx context.Context, data notes.EditNoteData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	if v.note == nil {
		v.mu.Unlock()
		return ErrNotLoaded
	}
	var id = v.note.Id
	v.mu.Unlock()

	note, err := v.gateway.UpdateNote(ctx, id, data)
	if err != nil {
		v.logger.WithError(err).WithField("note", id).Warn("can't save poem")
		return err
	}
	v.mu.Lock()
	v.note = &note
	v.mu.Unlock()
	return nil
}

// RequestDelete opens the confirmation step.
func (v *NoteView) RequestDelete() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.note == nil {
		return ErrNotLoaded
	}
	v.deletion.request()
	return nil
}

func (v *NoteView) CancelDelete() {
	v.mu.Lock()
	v.deletion.cancel()
	v.mu.Unlock()
}

func (v *NoteView) DeleteRequested() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deletion.requested
}

// ConfirmDelete deletes the poem and returns the owner's profile path to navigate to.
func (v *NoteView) ConfirmDelete(ctx context.Context) (string, error) {
	v.mu.Lock()
	if !v.deletion.consume() {
		v.mu.Unlock()
		return "", ErrNotConfirmed
	}
	if v.note == nil {
		v.mu.Unlock()
		return "", ErrNotLoaded
	}
	var note = *v.note
	v.mu.Unlock()

	if err := v.gateway.DeleteNote(ctx, note.Id); err != nil {
		v.logger.WithError(err).WithField("note", note.Id).Warn("can't delete poem")
		return "", err
	}
	v.mu.Lock()
	v.note, v.missing = nil, true
	v.mu.Unlock()
	return ProfilePath(note.UserId), nil
}
