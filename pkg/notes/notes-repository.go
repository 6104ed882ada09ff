package notes

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/silktrader/deadpoets/pkg/ntime"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/rest"
	"github.com/silktrader/deadpoets/pkg/storage/sqlite"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDupApplause  = errors.New("already applauded")
	ErrNotApplauded = errors.New("not applauded")
	errNoIds        = errors.New("at least one id is required")
)

// SortColumns whitelists the sortable fields of the notes collection.
var SortColumns = map[string]string{
	"created_at":     "created_at",
	"applause_count": "applause_count",
	"title":          "title COLLATE NOCASE",
}

// the count is computed on read so that it can't drift from the applauses rows
const noteColumns = `
	id, title, preview, content, tags, poet_name, user_id,
	(SELECT count(*) FROM applauses WHERE note_id = notes.id) AS applause_count,
	created_at`

// Execer is satisfied by both *sql.DB and *sql.Tx, letting inserts join a caller's transaction.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type Store struct {
	Connection *sql.DB
}

func NewStore(connection *sql.DB) *Store {
	return &Store{connection}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (note Note, err error) {
	err = row.Scan(&note.Id, &note.Title, &note.Preview, &note.Content, &note.Tags, &note.PoetName, &note.UserId,
		&note.ApplauseCount, &note.CreatedAt)
	return note, err
}

func (ns *Store) Get(id string) (Note, error) {
	note, err := scanNote(ns.Connection.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	return note, err
}

/*
List returns a window of notes matching every filter: the search term must appear in the title or the poet's name,
each requested tag must be among the note's tags, and the optional user id restricts results to one owner.
*/
func (ns *Store) List(params query.Params) (result query.Result[Note], err error) {
	var pattern = query.LikePattern(params.Search)
	var conditions = []string{`(title LIKE ? ESCAPE '\' OR poet_name LIKE ? ESCAPE '\')`}
	var args = []any{pattern, pattern}
	for _, tag := range params.Tags {
		conditions = append(conditions, `EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE value = ?)`)
		args = append(args, tag)
	}
	if params.UserId != "" {
		conditions = append(conditions, `user_id = ?`)
		args = append(args, params.UserId)
	}
	var filter = ` WHERE ` + strings.Join(conditions, ` AND `)

	if err = ns.Connection.QueryRow(`SELECT count(*) FROM notes`+filter, args...).Scan(&result.Total); err != nil {
		return result, err
	}

	rows, err := ns.Connection.Query(`SELECT `+noteColumns+` FROM notes`+filter+` `+
		query.OrderBy(params.Sort, SortColumns, "created_at")+` LIMIT ? OFFSET ?`,
		append(args, params.Limit, params.Offset)...)
	if err != nil {
		return result, err
	}
	defer sqlite.CloseRows(rows)

	result.Items = make([]Note, 0, params.Limit)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, note)
	}
	return result, rows.Err()
}

// Insert publishes a note through the given executor, usually an approval's transaction.
func (ns *Store) Insert(executor Execer, data NewNote) (Note, error) {
	var note = Note{
		Id:        rest.MustGetNewUUID(),
		Title:     data.Title,
		Preview:   data.Preview,
		Content:   data.Content,
		Tags:      data.Tags.Normalised(),
		PoetName:  data.PoetName,
		UserId:    data.UserId,
		CreatedAt: ntime.Now(),
	}
	_, err := executor.Exec(`
		INSERT INTO notes (id, title, preview, content, tags, poet_name, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		note.Id, note.Title, note.Preview, note.Content, note.Tags, note.PoetName, note.UserId, note.CreatedAt)
	return note, err
}

// Update replaces the editable fields and returns the stored row.
func (ns *Store) Update(id string, data EditNoteData) (Note, error) {
	result, err := ns.Connection.Exec(`UPDATE notes SET title = ?, preview = ?, content = ?, tags = ? WHERE id = ?`,
		strings.TrimSpace(data.Title), strings.TrimSpace(data.Preview), data.Content, data.Tags.Normalised(), id)
	if err = expectOne(result, err); err != nil {
		return Note{}, err
	}
	return ns.Get(id)
}

func (ns *Store) Delete(id string) error {
	result, err := ns.Connection.Exec(`DELETE FROM notes WHERE id = ?`, id)
	return expectOne(result, err)
}

func (ns *Store) DeleteMany(ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, errNoIds
	}
	var args = make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	result, err := ns.Connection.Exec(`DELETE FROM notes WHERE id IN (?`+strings.Repeat(", ?", len(ids)-1)+`)`, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetOwner returns the id of the profile that owns a note.
func (ns *Store) GetOwner(id string) (owner string, err error) {
	err = ns.Connection.QueryRow(`SELECT user_id FROM notes WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return owner, err
}

/*
ToggleApplause adds or removes a user's applause, given the user's prior state, and returns the new count. A user
applauds a note at most once: the primary key on (user_id, note_id) refuses duplicates.
*/
func (ns *Store) ToggleApplause(userId, noteId string, isApplauded bool) (result ApplauseResult, err error) {
	tx, err := ns.Connection.Begin()
	if err != nil {
		return result, err
	}

	// rolling back after a transaction commit will result in a safe NOP
	defer tx.Rollback()

	var exists bool
	if err = tx.QueryRow(`SELECT EXISTS (SELECT TRUE FROM notes WHERE id = ?)`, noteId).Scan(&exists); err != nil {
		return result, err
	}
	if !exists {
		return result, ErrNotFound
	}

	if isApplauded {
		removal, err := tx.Exec(`DELETE FROM applauses WHERE user_id = ? AND note_id = ?`, userId, noteId)
		if err != nil {
			return result, err
		}
		if removed, err := removal.RowsAffected(); err != nil {
			return result, err
		} else if removed == 0 {
			return result, ErrNotApplauded
		}
	} else {
		_, err = tx.Exec(`INSERT INTO applauses (user_id, note_id, date) VALUES (?, ?, ?)`, userId, noteId, ntime.Now())
		if sqlite.IsConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
			return result, ErrDupApplause
		}
		if err != nil {
			return result, err
		}
	}

	if err = tx.QueryRow(`SELECT count(*) FROM applauses WHERE note_id = ?`, noteId).Scan(&result.ApplauseCount); err != nil {
		return result, err
	}
	result.Applauded = !isApplauded
	return result, tx.Commit()
}

func (ns *Store) HasApplauded(userId, noteId string) (applauded bool, err error) {
	err = ns.Connection.QueryRow(
		`SELECT EXISTS (SELECT TRUE FROM applauses WHERE user_id = ? AND note_id = ?)`, userId, noteId,
	).Scan(&applauded)
	return applauded, err
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
