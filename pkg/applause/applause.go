/*
Package applause implements the optimistic applause toggle of a poem.

A tap flips the flag and moves the count by one before the platform answers. A failure restores the exact prior
values; a success adopts the platform's count. Either way the button then cools down, and taps arriving while a
toggle is pending or cooling down are refused rather than queued.
*/
package applause

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/sirupsen/logrus"
)

const DefaultCooldown = 300 * time.Millisecond

var (
	ErrSignedOut   = errors.New("sign in to applaud")
	ErrPending     = errors.New("a toggle is already pending")
	ErrCoolingDown = errors.New("applause is cooling down")
)

type State int

const (
	Idle State = iota
	Pending
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Gateway interface {
	HasApplauded(ctx context.Context, noteId string) (bool, error)
	ToggleApplause(ctx context.Context, noteId string, isApplauded bool) (notes.ApplauseResult, error)
}

type Config struct {
	Gateway  Gateway
	Logger   logrus.FieldLogger
	Cooldown time.Duration
}

// View is what a renderer shows.
type View struct {
	Count     int
	Applauded bool
	State     State
	Disabled  bool
}

type Button struct {
	gateway  Gateway
	logger   logrus.FieldLogger
	cooldown time.Duration
	noteId   string

	mu        sync.Mutex
	signedIn  bool
	count     int
	applauded bool
	state     State
	coolUntil time.Time
}

// NewButton starts from the note's count as loaded; signedIn tells whether the viewer may applaud at all.
func NewButton(cfg Config, note notes.Note, signedIn bool) (*Button, error) {
	if cfg.Gateway == nil || cfg.Logger == nil {
		return nil, errors.New("gateway and logger are required")
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Button{
		gateway:  cfg.Gateway,
		logger:   cfg.Logger.WithField("note", note.Id),
		cooldown: cfg.Cooldown,
		noteId:   note.Id,
		signedIn: signedIn,
		count:    note.ApplauseCount,
	}, nil
}

func (b *Button) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return View{
		Count:     b.count,
		Applauded: b.applauded,
		State:     b.state,
		Disabled:  !b.signedIn || b.state == Pending || time.Now().Before(b.coolUntil),
	}
}

// Check asks the platform whether the viewer applauded already. Failures are logged and leave the flag unset.
func (b *Button) Check(ctx context.Context) {
	b.mu.Lock()
	var signedIn = b.signedIn
	b.mu.Unlock()
	if !signedIn {
		return
	}

	applauded, err := b.gateway.HasApplauded(ctx, b.noteId)
	if err != nil {
		b.logger.WithError(err).Warn("can't check applause")
		return
	}
	b.mu.Lock()
	if b.state != Pending {
		b.applauded = applauded
	}
	b.mu.Unlock()
}

// Toggle applauds or withdraws the applause. The returned error is meant for the viewer.
func (b *Button) Toggle(ctx context.Context) error {
	b.mu.Lock()
	switch {
	case !b.signedIn:
		b.mu.Unlock()
		return ErrSignedOut
	case b.state == Pending:
		b.mu.Unlock()
		return ErrPending
	case time.Now().Before(b.coolUntil):
		b.mu.Unlock()
		return ErrCoolingDown
	}

	var count, applauded = b.count, b.applauded
	b.state = Pending
	b.applauded = !applauded
	if applauded {
		b.count--
	} else {
		b.count++
	}
	b.mu.Unlock()

	result, err := b.gateway.ToggleApplause(ctx, b.noteId, applauded)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.coolUntil = time.Now().Add(b.cooldown)
	if err != nil {
		b.logger.WithError(err).Warn("applause rolled back")
		b.count, b.applauded = count, applauded
		b.state = RolledBack
		return err
	}
	b.count, b.applauded = result.ApplauseCount, result.Applauded
	b.state = Committed
	return nil
}
