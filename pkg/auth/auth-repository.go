package auth

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/silktrader/deadpoets/pkg/ntime"
	"github.com/silktrader/deadpoets/pkg/rest"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/silktrader/deadpoets/pkg/storage/sqlite"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email is already registered")
)

type Repository struct {
	Connection *sql.DB
}

func NewRepository(connection *sql.DB) *Repository {
	return &Repository{connection}
}

// CreateAccount registers a profile without a display name, which marks it as new until its owner completes it.
func (ar *Repository) CreateAccount(email, passwordHash string) (id string, err error) {
	id = rest.MustGetNewUUID()
	var now = ntime.Now()
	_, err = ar.Connection.Exec(`
		INSERT INTO profiles (id, email, password, role, created, updated) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, passwordHash, roles.User, now, now)
	if sqlite.IsConstraint(err, sqlite3.ErrConstraintUnique) {
		return "", ErrEmailTaken
	}
	return id, err
}

// GetCredentials returns the profile id and password hash registered for an email.
func (ar *Repository) GetCredentials(email string) (id string, passwordHash string, err error) {
	err = ar.Connection.QueryRow(`SELECT id, password FROM profiles WHERE email = ?`, email).Scan(&id, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return id, passwordHash, err
}

func (ar *Repository) CreateSession(profileId string, expires time.Time) (sessionId string, err error) {
	sessionId = rest.MustGetNewUUID()
	_, err = ar.Connection.Exec(`INSERT INTO sessions (id, profile_id, created, expires) VALUES (?, ?, ?, ?)`,
		sessionId, profileId, ntime.Now(), ntime.From(expires))
	return sessionId, err
}

// GetSessionIdentity resolves a live session into the identity of its owner; expired sessions count as missing.
func (ar *Repository) GetSessionIdentity(sessionId, profileId string, now time.Time) (identity Identity, err error) {
	var displayName sql.NullString
	err = ar.Connection.QueryRow(`
		SELECT profiles.id, email, display_name, role
		FROM sessions JOIN profiles ON sessions.profile_id = profiles.id
		WHERE sessions.id = ? AND profiles.id = ? AND expires > ?`,
		sessionId, profileId, ntime.From(now),
	).Scan(&identity.Id, &identity.Email, &displayName, &identity.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	identity.DisplayName = displayName.String
	identity.SessionId = sessionId
	return identity, err
}

func (ar *Repository) DeleteSession(sessionId string) error {
	result, err := ar.Connection.Exec(`DELETE FROM sessions WHERE id = ?`, sessionId)
	if err != nil {
		return err
	}
	if deleted, err := result.RowsAffected(); err != nil {
		return err
	} else if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredSessions is run on start up; errors are safe to ignore.
func (ar *Repository) PurgeExpiredSessions(now time.Time) (int64, error) {
	result, err := ar.Connection.Exec(`DELETE FROM sessions WHERE expires <= ?`, ntime.From(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
