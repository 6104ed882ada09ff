/*
Package views holds the page controllers: a poem, a profile, the submission form and the poets directory.

Ownership checks only decide which actions are offered. The platform enforces permissions on its own, and any
refusal comes back as an error from the action.
*/
package views

import (
	"errors"
	"net/url"
)

var (
	ErrNotLoaded       = errors.New("nothing loaded yet")
	ErrNotOwner        = errors.New("only the owner can do this")
	ErrSignedOut       = errors.New("sign in first")
	ErrSelfFollow      = errors.New("you can't follow yourself")
	ErrNotConfirmed    = errors.New("deletion must be requested before it's confirmed")
	ErrAlreadyRunning  = errors.New("already in progress")
	ErrProfileDeparted = errors.New("this profile no longer exists")
)

const HomePath = "/"

// ProfilePath is where a profile page lives.
func ProfilePath(id string) string {
	return "/profile/" + url.PathEscape(id)
}

// NotePath is where a poem page lives.
func NotePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

// confirmation is the two phase guard of destructive actions.
type confirmation struct {
	requested bool
}

func (c *confirmation) request() { c.requested = true }
func (c *confirmation) cancel()  { c.requested = false }

// consume clears a pending request, reporting whether there was one.
func (c *confirmation) consume() bool {
	var requested = c.requested
	c.requested = false
	return requested
}
