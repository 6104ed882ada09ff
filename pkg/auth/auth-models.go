package auth

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/silktrader/deadpoets/pkg/roles"
)

// Identity is the authenticated requester, as resolved from a live session.
type Identity struct {
	Id          string
	Email       string
	DisplayName string
	Role        roles.Role
	SessionId   string
	roles.Flags
}

// User is the session's public view of an account.
type User struct {
	Id    string `json:"id"`
	Email string `json:"email"`
}

// Session is returned on sign up and sign in; Token goes in the Authorization header as a bearer token.
type Session struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	User    User      `json:"user"`
}

type CredentialsData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (data CredentialsData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.Email, validation.Required, is.EmailFormat),
		validation.Field(&data.Password, validation.Required, validation.Length(8, 72)),
	)
}

// normalisedEmail is used for both storage and lookups.
func (data CredentialsData) normalisedEmail() string {
	return strings.ToLower(strings.TrimSpace(data.Email))
}
