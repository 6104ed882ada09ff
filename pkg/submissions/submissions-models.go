package submissions

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/ntime"
)

const (
	MaxTitle       = notes.MaxTitle
	MaxDescription = 150

	// Pending is the only status a stored submission can have: approval and rejection both remove the row.
	Pending = "pending"
)

// Submission is a poem awaiting moderation.
type Submission struct {
	Id          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Content     string      `json:"content"`
	Tags        notes.Tags  `json:"tags"`
	PoetName    string      `json:"poet_name"`
	UserId      string      `json:"user_id"`
	Status      string      `json:"status"`
	SubmittedAt ntime.NTime `json:"submitted_at"`
}

type SubmitData struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	Tags        notes.Tags `json:"tags"`
}

func (data SubmitData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Title, validation.Required, validation.Length(1, MaxTitle)),
		validation.Field(&data.Description, validation.Length(0, MaxDescription)),
		validation.Field(&data.Content, validation.Required),
		validation.Field(&data.Tags, notes.ValidTags),
	)
}
