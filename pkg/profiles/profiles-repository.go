package profiles

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/silktrader/deadpoets/pkg/ntime"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/silktrader/deadpoets/pkg/storage/sqlite"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrSelfFollow   = errors.New("profiles can't follow themselves")
	ErrDupFollower  = errors.New("already following")
	ErrNotFollowing = errors.New("not following")
)

// SortColumns whitelists the sortable fields of the profiles collection.
var SortColumns = map[string]string{
	"created_at":   "created",
	"display_name": "display_name",
	"email":        "email",
}

// followers and followed ids are aggregated on read, so they can't drift from the follows table
const profileColumns = `
	id, email, display_name, bio, photo_url, role,
	COALESCE((SELECT group_concat(follower) FROM follows WHERE target = profiles.id), ''),
	COALESCE((SELECT group_concat(target) FROM follows WHERE follower = profiles.id), ''),
	created, updated`

type Repository struct {
	Connection *sql.DB
}

func NewRepository(connection *sql.DB) *Repository {
	return &Repository{connection}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (profile Profile, err error) {
	var displayName sql.NullString
	var followers, following string
	if err = row.Scan(&profile.Id, &profile.Email, &displayName, &profile.Bio, &profile.PhotoURL, &profile.Role,
		&followers, &following, &profile.Created, &profile.Updated); err != nil {
		return profile, err
	}
	if displayName.Valid {
		profile.DisplayName = &displayName.String
	}
	profile.Followers = splitIds(followers)
	profile.Following = splitIds(following)
	return profile, nil
}

// splitIds always returns a non nil slice, which encodes as an empty JSON array.
func splitIds(aggregate string) []string {
	if aggregate == "" {
		return []string{}
	}
	return strings.Split(aggregate, ",")
}

func (pr *Repository) GetById(id string) (Profile, error) {
	profile, err := scanProfile(pr.Connection.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return profile, err
}

// List returns a window of profiles whose display name or email contains the search term.
func (pr *Repository) List(params query.Params) (query.Result[Profile], error) {
	return pr.list(params, `WHERE (display_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`, 2)
}

// ListPoets returns a window of the profiles with a display name, searched by name only.
func (pr *Repository) ListPoets(params query.Params) (query.Result[Profile], error) {
	return pr.list(params, `WHERE display_name IS NOT NULL AND display_name LIKE ? ESCAPE '\'`, 1)
}

// list runs filter with the search pattern bound to each of its placeholders.
func (pr *Repository) list(params query.Params, filter string, placeholders int) (result query.Result[Profile], err error) {
	var args = make([]any, 0, placeholders+2)
	for range placeholders {
		args = append(args, query.LikePattern(params.Search))
	}

	if err = pr.Connection.QueryRow(`SELECT count(*) FROM profiles `+filter, args...).Scan(&result.Total); err != nil {
		return result, err
	}

	rows, err := pr.Connection.Query(`SELECT `+profileColumns+` FROM profiles `+filter+` `+
		query.OrderBy(params.Sort, SortColumns, "created")+` LIMIT ? OFFSET ?`,
		append(args, params.Limit, params.Offset)...)
	if err != nil {
		return result, err
	}
	defer sqlite.CloseRows(rows)

	result.Items = make([]Profile, 0, params.Limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, profile)
	}
	return result, rows.Err()
}

// Update stores the editable fields and returns the updated row.
func (pr *Repository) Update(id string, data UpdateProfileData) (Profile, error) {
	data = data.normalised()
	result, err := pr.Connection.Exec(`
		UPDATE profiles SET display_name = ?, bio = ?, photo_url = ?, updated = ? WHERE id = ?`,
		data.DisplayName, data.Bio, data.PhotoURL, ntime.Now(), id)
	if err := expectOne(result, err); err != nil {
		return Profile{}, err
	}
	return pr.GetById(id)
}

func (pr *Repository) SetRole(id string, role roles.Role) (Profile, error) {
	result, err := pr.Connection.Exec(`UPDATE profiles SET role = ?, updated = ? WHERE id = ?`, role, ntime.Now(), id)
	if err := expectOne(result, err); err != nil {
		return Profile{}, err
	}
	return pr.GetById(id)
}

// Delete removes a profile; notes, applauses, follows, sessions and submissions cascade.
func (pr *Repository) Delete(id string) error {
	result, err := pr.Connection.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	return expectOne(result, err)
}

// DeleteMany removes the given profiles, sparing the account registered with the protected email, and returns the
// ids of the rows actually deleted.
func (pr *Repository) DeleteMany(ids []string, protectedEmail string) ([]string, error) {
	if len(ids) == 0 {
		return nil, errNoIds
	}
	var args = make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, protectedEmail)
	rows, err := pr.Connection.Query(`DELETE FROM profiles WHERE id IN (?`+strings.Repeat(", ?", len(ids)-1)+`)
		AND email != ? COLLATE NOCASE RETURNING id`, args...)
	if err != nil {
		return nil, err
	}
	defer sqlite.CloseRows(rows)

	var deleted = make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// expectOne maps statements affecting no rows onto ErrNotFound.
func expectOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
