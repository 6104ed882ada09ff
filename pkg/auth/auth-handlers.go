package auth

import (
	"errors"
	"net/http"
	"time"

	JSON "github.com/silktrader/deadpoets/pkg/json-utilities"
	"github.com/silktrader/deadpoets/pkg/rest"
	"golang.org/x/crypto/bcrypt"
)

// Sessions bundles what the session routes need.
type Sessions struct {
	Repository    *Repository
	Tokens        *Tokens
	Authenticator *Authenticator
	TTL           time.Duration
}

func RegisterHandlers(engine *rest.Engine, s Sessions) {
	engine.Post("/auth/signup", signUp(s))
	engine.Post("/auth/session", signIn(s))
	engine.Get("/auth/session", getSession(), s.Authenticator.Auth)
	engine.Delete("/auth/session", signOut(s.Repository), s.Authenticator.Auth)
}

// signUp handles the POST "/auth/signup" route, creating an account along with its first session
func signUp(s Sessions) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[CredentialsData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(data.Password), bcrypt.DefaultCost)
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}

		var email = data.normalisedEmail()
		id, err := s.Repository.CreateAccount(email, string(hash))
		if errors.Is(err, ErrEmailTaken) {
			JSON.Conflict(writer, "An account with this email already exists")
			return
		} else if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}

		if session, err := s.open(id, email); err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			rest.Logger(request).WithField("profile", id).Info("account created")
			JSON.Created(writer, session)
		}
	}
}

// signIn handles the POST "/auth/session" route
func signIn(s Sessions) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[CredentialsData](writer, request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		var email = data.normalisedEmail()
		id, hash, err := s.Repository.GetCredentials(email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			JSON.InternalServerError(writer, request, err)
			return
		}

		// unknown emails and wrong passwords are indistinguishable to the client
		if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(data.Password)) != nil {
			writer.Header().Set("WWW-Authenticate", "Bearer")
			JSON.Unauthorised(writer)
			return
		}

		if session, err := s.open(id, email); err != nil {
			JSON.InternalServerError(writer, request, err)
		} else {
			JSON.Created(writer, session)
		}
	}
}

// getSession handles the GET "/auth/session" route
func getSession() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var identity = MustGetUser(request)
		JSON.Ok(writer, User{Id: identity.Id, Email: identity.Email})
	}
}

// signOut handles the DELETE "/auth/session" route
func signOut(ar *Repository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var identity = MustGetUser(request)
		if err := ar.DeleteSession(identity.SessionId); err != nil && !errors.Is(err, ErrNotFound) {
			JSON.InternalServerError(writer, request, err)
			return
		}
		JSON.NoContent(writer)
	}
}

func (s Sessions) open(profileId, email string) (Session, error) {
	var expires = s.Tokens.now().Add(s.TTL).UTC()
	sessionId, err := s.Repository.CreateSession(profileId, expires)
	if err != nil {
		return Session{}, err
	}
	token, err := s.Tokens.Issue(profileId, email, sessionId, expires)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Expires: expires, User: User{Id: profileId, Email: email}}, nil
}
