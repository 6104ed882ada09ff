// Package guard decides where a navigation should be redirected, given the current session.
package guard

import "github.com/silktrader/deadpoets/pkg/session"

const (
	HomePath  = "/"
	LoginPath = "/login"
	SetupPath = "/setup-profile"
)

// Route describes a navigation target.
type Route struct {
	Path      string
	Protected bool
	AdminOnly bool
}

// Redirect returns the path to redirect to and true, or false when navigation may proceed. Nothing is decided while
// the session is loading. Rules are checked in order:
//
//  1. signed in users without a complete profile are sent to the setup page, and never away from it;
//  2. users with a complete profile have nothing to do on the setup page;
//  3. protected routes need a user;
//  4. admin-only routes need the admin flag.
func Redirect(snapshot session.Snapshot, route Route) (string, bool) {
	if snapshot.Loading {
		return "", false
	}

	if snapshot.SignedIn() {
		var onSetup = route.Path == SetupPath
		switch {
		case snapshot.IsNew && !onSetup:
			return SetupPath, true
		case snapshot.IsNew:
			return "", false
		case onSetup:
			return HomePath, true
		}
	}

	if route.Protected && !snapshot.SignedIn() {
		return LoginPath, true
	}
	if route.AdminOnly && !snapshot.IsAdmin {
		return HomePath, true
	}
	return "", false
}

// Navigate follows redirects from route until a page can be shown. Redirect targets are unguarded pages, so the chain
// is at most two steps long.
func Navigate(snapshot session.Snapshot, route Route) string {
	for range 3 {
		target, redirect := Redirect(snapshot, route)
		if !redirect {
			return route.Path
		}
		route = Route{Path: target}
	}
	return route.Path
}
