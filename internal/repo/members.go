package repo

import (
	"context"
	"database/sql"
)

// ListMembers returns the employee id set of a project.
func (r Repo) ListMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM project_members WHERE project_id=? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) AddMemberTx(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id, user_id) VALUES (?,?)`, projectID, userID)
	return err
}

func (r Repo) RemoveMemberTx(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceMembersTx swaps the whole member set, used by full project updates.
func (r Repo) ReplaceMembersTx(ctx context.Context, tx *sql.Tx, projectID string, userIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=?`, projectID); err != nil {
		return err
	}
	for _, id := range userIDs {
		if err := r.AddMemberTx(ctx, tx, projectID, id); err != nil {
			return err
		}
	}
	return nil
}
