package repo

import (
	"context"
	"database/sql"
	"strings"

	"worknest/internal/domain"
	"worknest/internal/scope"
)

// StageFilters are store-level filter clauses for stage listings.
type StageFilters struct {
	ProjectID    string
	NameContains string
	Position     *int
	Color        string
}

const stageColumns = `id,project_id,name,position,color,created_at,updated_at`

func scanStageRow(scan func(dest ...any) error) (domain.Stage, error) {
	var s domain.Stage
	var color sql.NullString
	err := scan(&s.ID, &s.ProjectID, &s.Name, &s.Position, &color, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if color.Valid {
		s.Color = &color.String
	}
	return s, nil
}

func (r Repo) InsertStageTx(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stages(id,project_id,name,position,color,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, s.Position, nullableStringPtr(s.Color), s.CreatedAt, s.UpdatedAt)
	return translateWrite(err)
}

func (r Repo) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM stages WHERE id=?`, id)
	return scanStageRow(row.Scan)
}

func (r Repo) GetStageScoped(ctx context.Context, sc scope.Scope, id string) (domain.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE id=?`
	args := []any{id}
	if clause, scopeArgs := sc.Predicate(scope.Stages); clause != "" {
		query += " AND " + clause
		args = append(args, scopeArgs...)
	}
	return scanStageRow(r.DB.QueryRowContext(ctx, query, args...).Scan)
}

func stageWhere(sc scope.Scope, f StageFilters) (string, []any) {
	var clauses []string
	var args []any
	if clause, scopeArgs := sc.Predicate(scope.Stages); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, scopeArgs...)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.NameContains != "" {
		clauses = append(clauses, "LOWER(name) LIKE '%' || LOWER(?) || '%'")
		args = append(args, f.NameContains)
	}
	if f.Position != nil {
		clauses = append(clauses, "position=?")
		args = append(args, *f.Position)
	}
	if f.Color != "" {
		clauses = append(clauses, "color=?")
		args = append(args, f.Color)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListStages(ctx context.Context, sc scope.Scope, f StageFilters, sort Sort, page Page) ([]domain.Stage, error) {
	where, args := stageWhere(sc, f)
	query := `SELECT ` + stageColumns + ` FROM stages` + where + orderClause(sort) + ` LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stage
	for rows.Next() {
		s, err := scanStageRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountStages(ctx context.Context, sc scope.Scope, f StageFilters) (int, error) {
	where, args := stageWhere(sc, f)
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM stages`+where, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdateStageTx(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	res, err := tx.ExecContext(ctx, `UPDATE stages SET name=?, position=?, color=?, updated_at=? WHERE id=?`,
		s.Name, s.Position, nullableStringPtr(s.Color), s.UpdatedAt, s.ID)
	if err != nil {
		return translateWrite(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteStageTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
