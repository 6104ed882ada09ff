// Package roles derives administrative flags from a profile's email and stored role.
package roles

import "strings"

type Role string

const (
	User      Role = "user"
	SemiAdmin Role = "semi-admin"
	Admin     Role = "admin"
)

// Assignable lists the roles that can be granted or revoked through the role toggle.
var Assignable = []interface{}{User, SemiAdmin}

// Flags are the derived permission booleans.
type Flags struct {
	IsAdmin     bool `json:"is_admin"`
	IsMainAdmin bool `json:"is_main_admin"`
}

// Derive computes the flags for an account. The main admin is the single account whose email matches the configured
// primary admin email; an empty configured email designates nobody.
func Derive(email string, role Role, mainAdminEmail string) Flags {
	var main = IsMainAdminEmail(email, mainAdminEmail)
	return Flags{
		IsMainAdmin: main,
		IsAdmin:     main || role == SemiAdmin || role == Admin,
	}
}

// IsMainAdminEmail compares emails case-insensitively.
func IsMainAdminEmail(email, mainAdminEmail string) bool {
	return mainAdminEmail != "" && strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(mainAdminEmail))
}

// Toggled returns the role a semi-admin toggle moves to.
func Toggled(current Role) Role {
	if current == SemiAdmin {
		return User
	}
	return SemiAdmin
}
