package views

import (
	"context"
	"errors"
	"sync"

	"github.com/silktrader/deadpoets/pkg/submissions"
	"github.com/sirupsen/logrus"
)

type Submitter interface {
	Submit(ctx context.Context, data submissions.SubmitData) (submissions.Submission, error)
}

// SubmitForm sends poems to the moderation queue. Input is checked locally against the platform's rules before
// anything is sent, and a second submission can't start while one is in flight.
type SubmitForm struct {
	gateway Submitter
	logger  logrus.FieldLogger

	mu         sync.Mutex
	submitting bool
}

func NewSubmitForm(gateway Submitter, logger logrus.FieldLogger) (*SubmitForm, error) {
	if gateway == nil || logger == nil {
		return nil, errors.New("gateway and logger are required")
	}
	return &SubmitForm{gateway: gateway, logger: logger}, nil
}

func (f *SubmitForm) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Submit validates and sends the poem, returning the pending submission.
func (f *SubmitForm) Submit(ctx context.Context, data submissions.SubmitData) (submissions.Submission, error) {
	if err := data.Validate(); err != nil {
		return submissions.Submission{}, err
	}

	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return submissions.Submission{}, ErrAlreadyRunning
	}
	f.submitting = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	submission, err := f.gateway.Submit(ctx, data)
	if err != nil {
		f.logger.WithError(err).Warn("can't submit poem")
		return submissions.Submission{}, err
	}
	f.logger.WithField("submission", submission.Id).Info("poem submitted for review")
	return submission, nil
}
