package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"worknest/internal/domain"
	"worknest/internal/scope"
)

// TaskFilters are store-level filter clauses for task listings.
type TaskFilters struct {
	ProjectID     string
	StageID       string
	TitleContains string
	Priority      string
	AssignedTo    string
}

const taskColumns = `id,project_id,stage_id,title,COALESCE(description,''),priority,assigned_to,images_json,created_at,updated_at`

func scanTaskRow(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignedTo, images sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.StageID, &t.Title, &t.Description, &t.Priority, &assignedTo, &images, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if images.Valid && images.String != "" {
		_ = json.Unmarshal([]byte(images.String), &t.Images)
	}
	return t, nil
}

func encodeImages(images []string) any {
	if len(images) == 0 {
		return nil
	}
	data, err := json.Marshal(images)
	if err != nil {
		return nil
	}
	return string(data)
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,stage_id,title,description,priority,assigned_to,images_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.StageID, t.Title, nullable(t.Description), t.Priority, nullableStringPtr(t.AssignedTo), encodeImages(t.Images), t.CreatedAt, t.UpdatedAt)
	return translateWrite(err)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTaskRow(row.Scan)
}

func (r Repo) GetTaskScoped(ctx context.Context, sc scope.Scope, id string) (domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id=?`
	args := []any{id}
	if clause, scopeArgs := sc.Predicate(scope.Tasks); clause != "" {
		query += " AND " + clause
		args = append(args, scopeArgs...)
	}
	return scanTaskRow(r.DB.QueryRowContext(ctx, query, args...).Scan)
}

func taskWhere(sc scope.Scope, f TaskFilters) (string, []any) {
	var clauses []string
	var args []any
	if clause, scopeArgs := sc.Predicate(scope.Tasks); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, scopeArgs...)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.StageID != "" {
		clauses = append(clauses, "stage_id=?")
		args = append(args, f.StageID)
	}
	if f.TitleContains != "" {
		clauses = append(clauses, "LOWER(title) LIKE '%' || LOWER(?) || '%'")
		args = append(args, f.TitleContains)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListTasks(ctx context.Context, sc scope.Scope, f TaskFilters, sort Sort, page Page) ([]domain.Task, error) {
	where, args := taskWhere(sc, f)
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + orderClause(sort) + ` LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasks(ctx context.Context, sc scope.Scope, f TaskFilters) (int, error) {
	where, args := taskWhere(sc, f)
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET stage_id=?, title=?, description=?, priority=?, assigned_to=?, images_json=?, updated_at=? WHERE id=?`,
		t.StageID, t.Title, nullable(t.Description), t.Priority, nullableStringPtr(t.AssignedTo), encodeImages(t.Images), t.UpdatedAt, t.ID)
	if err != nil {
		return translateWrite(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
