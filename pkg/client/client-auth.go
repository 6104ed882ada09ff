package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/silktrader/deadpoets/pkg/auth"
)

// SignUp registers an account and starts its session.
func (c *Client) SignUp(ctx context.Context, email, password string) (auth.Session, error) {
	return c.open(ctx, "/auth/signup", email, password)
}

// SignIn starts a session and notifies listeners.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	return c.open(ctx, "/auth/session", email, password)
}

func (c *Client) open(ctx context.Context, path, email, password string) (session auth.Session, err error) {
	if err = c.do(ctx, http.MethodPost, path, nil, auth.CredentialsData{Email: email, Password: password}, &session); err != nil {
		return session, err
	}
	c.SetToken(session.Token)
	var user = session.User
	c.notify(SignedIn, &user)
	return session, nil
}

// SignOut ends the session. The local token is dropped even when the platform can't be reached.
func (c *Client) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	var err = c.do(ctx, http.MethodDelete, "/auth/session", nil, nil, nil)
	if errors.Is(err, ErrUnauthorised) {
		err = nil
	}
	c.SetToken("")
	c.notify(SignedOut, nil)
	return err
}

// Session returns the signed in user, or nil when there's no valid session.
func (c *Client) Session(ctx context.Context) (*auth.User, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var user auth.User
	err := c.do(ctx, http.MethodGet, "/auth/session", nil, nil, &user)
	if errors.Is(err, ErrUnauthorised) {
		// expired or revoked
		c.SetToken("")
		c.notify(SignedOut, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
