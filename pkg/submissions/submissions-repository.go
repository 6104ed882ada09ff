package submissions

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/ntime"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/rest"
	"github.com/silktrader/deadpoets/pkg/storage/sqlite"
)

var ErrNotFound = errors.New("not found")

// SortColumns whitelists the sortable fields of the pending queue.
var SortColumns = map[string]string{
	"created_at": "submitted_at",
	"title":      "title COLLATE NOCASE",
}

const submissionColumns = `id, title, description, content, tags, poet_name, user_id, status, submitted_at`

type Store struct {
	Connection *sql.DB
	Notes      *notes.Store
}

func NewStore(connection *sql.DB, notesStore *notes.Store) *Store {
	return &Store{connection, notesStore}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (submission Submission, err error) {
	err = row.Scan(&submission.Id, &submission.Title, &submission.Description, &submission.Content, &submission.Tags,
		&submission.PoetName, &submission.UserId, &submission.Status, &submission.SubmittedAt)
	return submission, err
}

// Submit queues a poem under the given poet name.
func (ss *Store) Submit(userId, poetName string, data SubmitData) (Submission, error) {
	var submission = Submission{
		Id:          rest.MustGetNewUUID(),
		Title:       strings.TrimSpace(data.Title),
		Description: strings.TrimSpace(data.Description),
		Content:     data.Content,
		Tags:        data.Tags.Normalised(),
		PoetName:    poetName,
		UserId:      userId,
		Status:      Pending,
		SubmittedAt: ntime.Now(),
	}
	_, err := ss.Connection.Exec(`
		INSERT INTO poem_submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		submission.Id, submission.Title, submission.Description, submission.Content, submission.Tags,
		submission.PoetName, submission.UserId, submission.Status, submission.SubmittedAt)
	return submission, err
}

func (ss *Store) Get(id string) (Submission, error) {
	submission, err := scanSubmission(ss.Connection.QueryRow(
		`SELECT `+submissionColumns+` FROM poem_submissions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	return submission, err
}

// ListPending returns a window of the queue, newest first unless told otherwise.
func (ss *Store) ListPending(params query.Params) (result query.Result[Submission], err error) {
	var pattern = query.LikePattern(params.Search)
	const filter = ` WHERE status = 'pending' AND (title LIKE ? ESCAPE '\' OR poet_name LIKE ? ESCAPE '\')`

	if err = ss.Connection.QueryRow(`SELECT count(*) FROM poem_submissions`+filter, pattern, pattern).
		Scan(&result.Total); err != nil {
		return result, err
	}

	rows, err := ss.Connection.Query(`SELECT `+submissionColumns+` FROM poem_submissions`+filter+` `+
		query.OrderBy(params.Sort, SortColumns, "submitted_at")+` LIMIT ? OFFSET ?`,
		pattern, pattern, params.Limit, params.Offset)
	if err != nil {
		return result, err
	}
	defer sqlite.CloseRows(rows)

	result.Items = make([]Submission, 0, params.Limit)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, submission)
	}
	return result, rows.Err()
}

/*
Approve publishes a submission as a note and removes it from the queue. Both writes share one transaction, so a
submission is never left pending once its note exists, nor lost without one.
*/
func (ss *Store) Approve(id string) (notes.Note, error) {
	tx, err := ss.Connection.Begin()
	if err != nil {
		return notes.Note{}, err
	}

	// rolling back after a transaction commit will result in a safe NOP
	defer tx.Rollback()

	submission, err := scanSubmission(tx.QueryRow(`SELECT `+submissionColumns+` FROM poem_submissions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, ErrNotFound
	} else if err != nil {
		return notes.Note{}, err
	}

	note, err := ss.Notes.Insert(tx, notes.NewNote{
		Title:    submission.Title,
		Preview:  submission.Description,
		Content:  submission.Content,
		Tags:     submission.Tags,
		PoetName: submission.PoetName,
		UserId:   submission.UserId,
	})
	if err != nil {
		return notes.Note{}, err
	}

	if _, err = tx.Exec(`DELETE FROM poem_submissions WHERE id = ?`, id); err != nil {
		return notes.Note{}, err
	}
	return note, tx.Commit()
}

// Reject discards a submission.
func (ss *Store) Reject(id string) error {
	result, err := ss.Connection.Exec(`DELETE FROM poem_submissions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rejected, err := result.RowsAffected(); err != nil {
		return err
	} else if rejected == 0 {
		return ErrNotFound
	}
	return nil
}
