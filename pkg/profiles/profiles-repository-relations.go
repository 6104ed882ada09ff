package profiles

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
	"github.com/silktrader/deadpoets/pkg/ntime"
	"github.com/silktrader/deadpoets/pkg/storage/sqlite"
)

/*
ToggleFollow flips the follow relation between two profiles, given the follower's prior state, and returns the new
state. Both the existence check and the write happen in one transaction so that the relation can't outlive its target.
*/
func (pr *Repository) ToggleFollow(followerId, targetId string, isFollowing bool) (following bool, err error) {
	if followerId == targetId {
		return false, ErrSelfFollow
	}

	tx, err := pr.Connection.Begin()
	if err != nil {
		return false, err
	}

	// rolling back after a transaction commit will result in a safe NOP
	defer tx.Rollback()

	var exists bool
	if err = tx.QueryRow(`SELECT EXISTS (SELECT TRUE FROM profiles WHERE id = ?)`, targetId).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}

	if isFollowing {
		result, err := tx.Exec(`DELETE FROM follows WHERE follower = ? AND target = ?`, followerId, targetId)
		if err != nil {
			return false, err
		}
		if removed, err := result.RowsAffected(); err != nil {
			return false, err
		} else if removed == 0 {
			return false, ErrNotFollowing
		}
	} else {
		_, err = tx.Exec(`INSERT INTO follows (follower, target, date) VALUES (?, ?, ?)`,
			followerId, targetId, ntime.Now())

		// detects whether the requester is already among the target's followers
		if sqlite.IsConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
			return false, ErrDupFollower
		}
		if err != nil {
			return false, err
		}
	}

	return !isFollowing, tx.Commit()
}

// GetFollowers lists the profiles following id, most recent first.
func (pr *Repository) GetFollowers(id string) ([]Relation, error) {
	return pr.relations(`
		SELECT id, display_name, photo_url, date
		FROM follows JOIN profiles ON follows.follower = profiles.id
		WHERE target = ? ORDER BY date DESC`, id)
}

// GetFollowing lists the profiles id follows, most recent first.
func (pr *Repository) GetFollowing(id string) ([]Relation, error) {
	return pr.relations(`
		SELECT id, display_name, photo_url, date
		FROM follows JOIN profiles ON follows.target = profiles.id
		WHERE follower = ? ORDER BY date DESC`, id)
}

func (pr *Repository) relations(statement, id string) ([]Relation, error) {
	if _, err := pr.GetById(id); err != nil {
		return nil, err
	}

	rows, err := pr.Connection.Query(statement, id)
	if err != nil {
		return nil, err
	}
	defer sqlite.CloseRows(rows)

	var relations = make([]Relation, 0)
	for rows.Next() {
		var relation Relation
		var displayName sql.NullString
		if err = rows.Scan(&relation.Id, &displayName, &relation.PhotoURL, &relation.Date); err != nil {
			return relations, err
		}
		if displayName.Valid {
			relation.DisplayName = &displayName.String
		}
		relations = append(relations, relation)
	}
	return relations, rows.Err()
}

// IsFollowing reports whether follower follows target; errors count as not following.
func (pr *Repository) IsFollowing(followerId, targetId string) (exists bool) {
	var err = pr.Connection.QueryRow(
		`SELECT TRUE FROM follows WHERE follower = ? AND target = ?`, followerId, targetId,
	).Scan(&exists)
	return err == nil && exists
}
