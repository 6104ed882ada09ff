package profiles

import (
	"errors"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/silktrader/deadpoets/pkg/ntime"
	"github.com/silktrader/deadpoets/pkg/roles"
)

const (
	MaxDisplayName = 50
	MaxBioWords    = 50
)

// Profile is an account's public face. A nil DisplayName marks an account whose owner never completed the setup.
type Profile struct {
	Id          string      `json:"id"`
	Email       string      `json:"email,omitempty"`
	DisplayName *string     `json:"display_name"`
	Bio         string      `json:"bio"`
	PhotoURL    string      `json:"photo_url"`
	Role        roles.Role  `json:"role"`
	Followers   []string    `json:"followers"`
	Following   []string    `json:"following"`
	Created     ntime.NTime `json:"created"`
	Updated     ntime.NTime `json:"updated"`
}

// IsComplete reports whether the profile went through the setup step.
func (p Profile) IsComplete() bool {
	return p.DisplayName != nil && strings.TrimSpace(*p.DisplayName) != ""
}

// Name returns the display name, or an empty string for incomplete profiles.
func (p Profile) Name() string {
	if p.DisplayName == nil {
		return ""
	}
	return *p.DisplayName
}

// HasFollower reports whether the given profile id follows p.
func (p Profile) HasFollower(id string) bool {
	for _, follower := range p.Followers {
		if follower == id {
			return true
		}
	}
	return false
}

// Relation is an entry of a followers or following list.
type Relation struct {
	Id          string      `json:"id"`
	DisplayName *string     `json:"display_name"`
	PhotoURL    string      `json:"photo_url"`
	Date        ntime.NTime `json:"date"`
}

type UpdateProfileData struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	PhotoURL    string `json:"photo_url"`
}

func (data UpdateProfileData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.DisplayName, validation.By(trimmedLength(1, MaxDisplayName))),
		validation.Field(&data.Bio, validation.By(maxWords(MaxBioWords))),
		validation.Field(&data.PhotoURL, is.URL),
	)
}

// normalised trims the fields the way they are stored.
func (data UpdateProfileData) normalised() UpdateProfileData {
	data.DisplayName = strings.TrimSpace(data.DisplayName)
	data.Bio = strings.TrimSpace(data.Bio)
	data.PhotoURL = strings.TrimSpace(data.PhotoURL)
	return data
}

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func trimmedLength(min, max int) validation.RuleFunc {
	return func(value interface{}) error {
		var length = utf8.RuneCountInString(strings.TrimSpace(value.(string)))
		if length < min || length > max {
			return validation.NewError("validation_length_out_of_range", "the length must be between {{.min}} and {{.max}}").
				SetParams(map[string]interface{}{"min": min, "max": max})
		}
		return nil
	}
}

func maxWords(max int) validation.RuleFunc {
	return func(value interface{}) error {
		if CountWords(value.(string)) > max {
			return validation.NewError("validation_too_many_words", "must be at most {{.max}} words").
				SetParams(map[string]interface{}{"max": max})
		}
		return nil
	}
}

type SetRoleData struct {
	Role roles.Role `json:"role"`
}

func (data SetRoleData) Validate() error {
	return validation.ValidateStruct(&data, validation.Field(&data.Role,
		validation.Required,
		validation.In(roles.Assignable...),
	))
}

// FollowData toggles a follow relation; IsFollowing is the caller's state before the toggle.
type FollowData struct {
	TargetUserId string `json:"target_user_id"`
	IsFollowing  bool   `json:"is_following"`
}

func (data FollowData) Validate() error {
	return validation.ValidateStruct(&data, validation.Field(&data.TargetUserId, validation.Required, is.UUID))
}

type FollowResult struct {
	Following bool `json:"following"`
}

type PhotoResult struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type DeletedResult struct {
	Deleted int64 `json:"deleted"`
}

var errNoIds = errors.New("at least one id is required")
