package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	JSON "github.com/silktrader/deadpoets/pkg/json-utilities"
	"github.com/silktrader/deadpoets/pkg/rest"
	"github.com/silktrader/deadpoets/pkg/roles"
)

/* There are two solutions to avoiding cyclic imports between `auth` and `profiles` packages:
1. merge the two in the profiles package
2. adopt and maintain an interface as a dependency in the auth package
*/

type contextKey int

const identityKey contextKey = iota

type identityChecker interface {
	GetSessionIdentity(sessionId, profileId string, now time.Time) (Identity, error)
}

// Authenticator verifies bearer tokens and makes sure their sessions are still alive.
type Authenticator struct {
	checker        identityChecker
	tokens         *Tokens
	mainAdminEmail string
}

func NewAuthenticator(checker identityChecker, tokens *Tokens, mainAdminEmail string) *Authenticator {
	return &Authenticator{checker: checker, tokens: tokens, mainAdminEmail: mainAdminEmail}
}

// MainAdminEmail is the configured primary admin account.
func (a *Authenticator) MainAdminEmail() string {
	return a.mainAdminEmail
}

// Auth rejects requests lacking a valid bearer token; accepted requests carry the requester's Identity.
func (a *Authenticator) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {

		token, err := parseBearer(request)
		if err != nil {
			reportUnauthorised(w)
			return
		}

		claims, err := a.tokens.Parse(token)
		if err != nil {
			rest.Logger(request).WithError(err).Debug("rejected token")
			reportUnauthorised(w)
			return
		}

		// signed out or expired sessions invalidate otherwise valid tokens
		identity, err := a.checker.GetSessionIdentity(claims.ID, claims.Subject, a.tokens.now())
		if errors.Is(err, ErrNotFound) {
			reportUnauthorised(w)
			return
		} else if err != nil {
			JSON.InternalServerError(w, request, err)
			return
		}
		identity.Flags = roles.Derive(identity.Email, identity.Role, a.mainAdminEmail)

		// create a new context, stemming from the original one, adding the identity for future reference
		next.ServeHTTP(w, request.WithContext(context.WithValue(request.Context(), identityKey, identity)))
	})
}

// Optional attaches the requester's identity when a valid bearer token is present and lets anonymous requests
// through otherwise; invalid tokens are treated as absent.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {
		token, err := parseBearer(request)
		if err != nil {
			next.ServeHTTP(w, request)
			return
		}
		claims, err := a.tokens.Parse(token)
		if err != nil {
			next.ServeHTTP(w, request)
			return
		}
		identity, err := a.checker.GetSessionIdentity(claims.ID, claims.Subject, a.tokens.now())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				rest.Logger(request).WithError(err).Warn("can't resolve optional identity")
			}
			next.ServeHTTP(w, request)
			return
		}
		identity.Flags = roles.Derive(identity.Email, identity.Role, a.mainAdminEmail)
		next.ServeHTTP(w, request.WithContext(context.WithValue(request.Context(), identityKey, identity)))
	})
}

// AdminOnly must follow Auth; it admits main admins, admins and semi-admins.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {
		if identity, found := GetUser(request); !found || !identity.IsAdmin {
			JSON.Forbidden(w)
			return
		}
		next.ServeHTTP(w, request)
	})
}

// MainAdminOnly must follow Auth; it admits only the primary admin account.
func MainAdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {
		if identity, found := GetUser(request); !found || !identity.IsMainAdmin {
			JSON.Forbidden(w)
			return
		}
		next.ServeHTTP(w, request)
	})
}

// parseBearer extracts the token from the authorization header.
func parseBearer(request *http.Request) (string, error) {
	var header = request.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(header[7:]); token != "" {
			return token, nil
		}
	}
	return "", errors.New("bad authorization header")
}

// GetUser returns the identity attached by Auth, if any.
func GetUser(request *http.Request) (Identity, bool) {
	identity, found := request.Context().Value(identityKey).(Identity)
	return identity, found
}

// MustGetUser panics when the Auth middleware is missing from a route, which is a programming error.
func MustGetUser(request *http.Request) Identity {
	identity, found := GetUser(request)
	if !found {
		panic("auth: route registered without the Auth middleware")
	}
	return identity
}

// WithIdentity attaches an identity to a context, for handlers exercised without the middleware chain.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func reportUnauthorised(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
}
