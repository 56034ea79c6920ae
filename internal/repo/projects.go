package repo

import (
	"context"
	"database/sql"
	"strings"

	"worknest/internal/domain"
	"worknest/internal/scope"
)

// ProjectFilters are store-level filter clauses derived from request query
// parameters. Zero values mean "no filter".
type ProjectFilters struct {
	NameContains        string
	DescriptionContains string
	CreatedFrom         string
	CreatedTo           string
}

const projectColumns = `id,name,COALESCE(description,''),created_by,manager_id,created_at,updated_at`

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var managerID sql.NullString
	err := scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &managerID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if managerID.Valid {
		p.ManagerID = &managerID.String
	}
	return p, nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_by,manager_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedBy, nullableStringPtr(p.ManagerID), p.CreatedAt, p.UpdatedAt)
	return translateWrite(err)
}

// GetProject fetches a project regardless of read scope. Mutation paths use
// it so a missing project is reported before any permission check.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	p, err := scanProjectRow(row.Scan)
	if err != nil {
		return p, err
	}
	p.EmployeeIDs, err = r.ListMembers(ctx, p.ID)
	return p, err
}

// GetProjectScoped fetches a project visible to the given scope.
func (r Repo) GetProjectScoped(ctx context.Context, sc scope.Scope, id string) (domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id=?`
	args := []any{id}
	if clause, scopeArgs := sc.Predicate(scope.Projects); clause != "" {
		query += " AND " + clause
		args = append(args, scopeArgs...)
	}
	p, err := scanProjectRow(r.DB.QueryRowContext(ctx, query, args...).Scan)
	if err != nil {
		return p, err
	}
	p.EmployeeIDs, err = r.ListMembers(ctx, p.ID)
	return p, err
}

func projectWhere(sc scope.Scope, f ProjectFilters) (string, []any) {
	var clauses []string
	var args []any
	if clause, scopeArgs := sc.Predicate(scope.Projects); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, scopeArgs...)
	}
	if f.NameContains != "" {
		clauses = append(clauses, "LOWER(name) LIKE '%' || LOWER(?) || '%'")
		args = append(args, f.NameContains)
	}
	if f.DescriptionContains != "" {
		clauses = append(clauses, "LOWER(COALESCE(description,'')) LIKE '%' || LOWER(?) || '%'")
		args = append(args, f.DescriptionContains)
	}
	if f.CreatedFrom != "" && f.CreatedTo != "" {
		clauses = append(clauses, "created_at >= ? AND created_at <= ?")
		args = append(args, f.CreatedFrom, f.CreatedTo)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListProjects(ctx context.Context, sc scope.Scope, f ProjectFilters, sort Sort, page Page) ([]domain.Project, error) {
	where, args := projectWhere(sc, f)
	query := `SELECT ` + projectColumns + ` FROM projects` + where + orderClause(sort) + ` LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		members, err := r.ListMembers(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].EmployeeIDs = members
	}
	return res, nil
}

func (r Repo) CountProjects(ctx context.Context, sc scope.Scope, f ProjectFilters) (int, error) {
	where, args := projectWhere(sc, f)
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`+where, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, description=?, manager_id=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.Description), nullableStringPtr(p.ManagerID), p.UpdatedAt, p.ID)
	if err != nil {
		return translateWrite(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
