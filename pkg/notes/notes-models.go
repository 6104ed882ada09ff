package notes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/silktrader/deadpoets/pkg/ntime"
)

const (
	MaxTitle   = 50
	MaxPreview = 150
	MaxTags    = 10
	MaxTag     = 40
)

// Note is a published poem. ApplauseCount is computed from the applauses table on every read.
type Note struct {
	Id            string      `json:"id"`
	Title         string      `json:"title"`
	Preview       string      `json:"preview"`
	Content       string      `json:"content"`
	Tags          Tags        `json:"tags"`
	PoetName      string      `json:"poet_name"`
	UserId        string      `json:"user_id"`
	ApplauseCount int         `json:"applause_count"`
	CreatedAt     ntime.NTime `json:"created_at"`
}

// Tags is an ordered list of labels, stored as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	encoded, err := json.Marshal([]string(t))
	return string(encoded), err
}

func (t *Tags) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("tags: can't scan %T", value)
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return err
	}
	if tags == nil {
		tags = []string{}
	}
	*t = tags
	return nil
}

// Normalised trims labels and drops blanks and repetitions, keeping the first occurrence's position.
func (t Tags) Normalised() Tags {
	var seen = make(map[string]bool, len(t))
	var normalised = make(Tags, 0, len(t))
	for _, tag := range t {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalised = append(normalised, tag)
	}
	return normalised
}

// Contains reports whether every given tag is among t.
func (t Tags) Contains(tags ...string) bool {
	for _, wanted := range tags {
		var found bool
		for _, tag := range t {
			if tag == wanted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ValidTags checks the number and length of labels, for notes and submissions alike. Tags being a driver.Valuer,
// stock length rules would measure its JSON encoding instead.
var ValidTags = validation.By(func(value interface{}) error {
	tags, _ := value.(Tags)
	if len(tags) > MaxTags {
		return validation.NewError("validation_too_many_tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	for _, tag := range tags {
		if length := utf8.RuneCountInString(strings.TrimSpace(tag)); length == 0 || length > MaxTag {
			return validation.NewError("validation_tag_length", fmt.Sprintf("tags must be 1 to %d characters long", MaxTag))
		}
	}
	return nil
})

// EditNoteData carries the fields owners and admins may change.
type EditNoteData struct {
	Title   string `json:"title"`
	Preview string `json:"preview"`
	Content string `json:"content"`
	Tags    Tags   `json:"tags"`
}

func (data EditNoteData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Title, validation.Required, validation.Length(1, MaxTitle)),
		validation.Field(&data.Preview, validation.Length(0, MaxPreview)),
		validation.Field(&data.Content, validation.Required),
		validation.Field(&data.Tags, ValidTags),
	)
}

// NewNote is what approval copies from a submission.
type NewNote struct {
	Title    string
	Preview  string
	Content  string
	Tags     Tags
	PoetName string
	UserId   string
}

// ApplauseData toggles an applause; IsApplauded is the caller's state before the toggle.
type ApplauseData struct {
	NoteId      string `json:"note_id"`
	IsApplauded bool   `json:"is_applauded"`
}

func (data ApplauseData) Validate() error {
	return validation.ValidateStruct(&data, validation.Field(&data.NoteId, validation.Required))
}

type ApplauseResult struct {
	ApplauseCount int  `json:"applause_count"`
	Applauded     bool `json:"applauded"`
}

type ApplauseStatus struct {
	Applauded bool `json:"applauded"`
}

type DeletedResult struct {
	Deleted int64 `json:"deleted"`
}
