package moderation

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/silktrader/deadpoets/pkg/listing"
)

var (
	ErrNothingSelected = errors.New("nothing selected")
	ErrNotRequested    = errors.New("deletion must be requested before it's confirmed")
)

// Selection is the set of rows ticked on a dashboard tab, along with the two phase deletion of those rows.
type Selection struct {
	mu        sync.Mutex
	ids       map[string]struct{}
	requested bool
}

func NewSelection() *Selection {
	return &Selection{ids: make(map[string]struct{})}
}

// Toggle ticks or unticks a row; any change withdraws a pending deletion request.
func (s *Selection) Toggle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.ids[id]; found {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
	s.requested = false
}

// SelectAll ticks every visible row, or unticks them all when they're all ticked already.
func (s *Selection) SelectAll(visible []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all = len(visible) > 0
	for _, id := range visible {
		if _, found := s.ids[id]; !found {
			all = false
			break
		}
	}
	for _, id := range visible {
		if all {
			delete(s.ids, id)
		} else {
			s.ids[id] = struct{}{}
		}
	}
	s.requested = false
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
	s.requested = false
}

func (s *Selection) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.ids[id]
	return found
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Ids returns the selected ids in order.
func (s *Selection) Ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *Selection) sorted() []string {
	var ids = make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RequestDelete opens the confirmation step.
func (s *Selection) RequestDelete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return ErrNothingSelected
	}
	s.requested = true
	return nil
}

func (s *Selection) CancelDelete() {
	s.mu.Lock()
	s.requested = false
	s.mu.Unlock()
}

func (s *Selection) DeleteRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested
}

// claim consumes the deletion request and returns the ids to delete.
func (s *Selection) claim() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.requested {
		return nil, ErrNotRequested
	}
	s.requested = false
	if len(s.ids) == 0 {
		return nil, ErrNothingSelected
	}
	return s.sorted(), nil
}

// ConfirmDelete removes every selected row of a tab in one call, then clears the selection. On failure the selection
// is kept and the request has to be made again.
func (m *Moderator) ConfirmDelete(ctx context.Context, tab listing.Tab, selection *Selection) (int64, error) {
	if err := m.requireAdmin(); err != nil {
		return 0, err
	}
	var remove func(context.Context, []string) (int64, error)
	switch tab {
	case listing.PoemsTab:
		remove = m.gateway.DeleteNotes
	case listing.UsersTab:
		remove = m.gateway.DeleteProfiles
	default:
		return 0, ErrUnsupportedTab
	}

	ids, err := selection.claim()
	if err != nil {
		return 0, err
	}
	deleted, err := remove(ctx, ids)
	if err != nil {
		m.logger.WithError(err).WithField("tab", tab).Warn("bulk deletion failed")
		return 0, err
	}
	selection.Clear()
	m.logger.WithField("tab", tab).WithField("deleted", deleted).Info("rows deleted")
	m.refresh(ctx, tab)
	return deleted, nil
}
