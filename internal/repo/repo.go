package repo

import (
	"database/sql"
	"errors"
	"strings"
)

// Repo is the SQL store for projects, stages, tasks and audit events.
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Sort is a validated ORDER BY column and direction. Callers must only pass
// columns from the per-resource allow lists; values never come from request
// input directly.
type Sort struct {
	Column    string
	Direction string
}

// Page is an OFFSET/LIMIT window.
type Page struct {
	Limit  int
	Offset int
}

func orderClause(s Sort) string {
	dir := "ASC"
	if strings.EqualFold(s.Direction, "desc") {
		dir = "DESC"
	}
	return " ORDER BY " + s.Column + " " + dir + ", id " + dir
}

// translateWrite maps UNIQUE violations from the driver to ErrConflict.
func translateWrite(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrConflict
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
