package authz

import (
	"net/http"

	"worknest/internal/domain"
)

// Error carries the HTTP status the server should surface.
type Error struct {
	Status  int
	Message string
}

func (e Error) Error() string { return e.Message }

// ErrNoFields rejects a patch whose effective field set is empty.
var ErrNoFields = Error{Status: http.StatusBadRequest, Message: "No valid fields provided for update"}

const stageOnlyMessage = "Access denied: Employees can only update the task stage"

func forbidden(msg string) Error {
	if msg == "" {
		msg = "Access denied"
	}
	return Error{Status: http.StatusForbidden, Message: msg}
}

// ProjectRef is the ownership view of a project that mutation decisions need.
type ProjectRef struct {
	CreatedBy string
	ManagerID *string
	MemberIDs []string
}

func (p ProjectRef) owner(userID string) bool {
	if p.CreatedBy == userID {
		return true
	}
	return p.ManagerID != nil && *p.ManagerID == userID
}

func (p ProjectRef) member(userID string) bool {
	for _, id := range p.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CanCreateProject decides who may create a new project.
func CanCreateProject(user domain.User) error {
	switch user.Role {
	case domain.RoleAdmin, domain.RoleManager:
		return nil
	default:
		return forbidden("Access denied: only admins and managers can create projects")
	}
}

// CanCreate decides create access for a resource inside a project. Callers
// must have resolved the project first: a missing project is "not found",
// never a permission failure.
func CanCreate(user domain.User, ref ProjectRef) error {
	switch user.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleManager:
		if ref.owner(user.ID) {
			return nil
		}
		return forbidden("Access denied: you do not manage this project")
	default:
		return forbidden("")
	}
}

// CanUpdate decides full-replace access. Also the rule for non-task patches.
func CanUpdate(user domain.User, ref ProjectRef) error {
	switch user.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleManager:
		if ref.owner(user.ID) {
			return nil
		}
		return forbidden("Access denied: you do not manage this project")
	default:
		return forbidden("")
	}
}

// CanDelete decides delete access. Deliberately narrower than CanUpdate: a
// manager must be the project creator, being manager_id is not enough.
func CanDelete(user domain.User, ref ProjectRef) error {
	switch user.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleManager:
		if ref.CreatedBy == user.ID {
			return nil
		}
		return forbidden("Access denied: only the project creator can delete this resource")
	default:
		return forbidden("")
	}
}

// CheckTaskPatch decides a partial task update. fields is the effective key
// set of the patch body (unknown keys already dropped, never empty).
//
// Admins and owning managers may patch anything. A manager who is merely a
// project member, and every employee, may only move the task between stages:
// the key set must be exactly {stageId}.
func CheckTaskPatch(user domain.User, ref ProjectRef, fields []string) error {
	switch user.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleManager:
		if ref.owner(user.ID) {
			return nil
		}
		if ref.member(user.ID) {
			return stageOnly(fields)
		}
		return forbidden("Access denied: you do not manage this project")
	case domain.RoleEmployee:
		if ref.member(user.ID) {
			return stageOnly(fields)
		}
		return forbidden("")
	default:
		return forbidden("")
	}
}

func stageOnly(fields []string) error {
	if len(fields) == 1 && fields[0] == "stageId" {
		return nil
	}
	return forbidden(stageOnlyMessage)
}
