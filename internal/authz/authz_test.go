package authz

import (
	"errors"
	"net/http"
	"testing"

	"worknest/internal/domain"
)

func str(s string) *string { return &s }

func user(role domain.Role, id string) domain.User {
	return domain.User{ID: id, Role: role}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ae Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected authz.Error, got %T: %v", err, err)
	}
	return ae.Status
}

func TestCanCreateProject(t *testing.T) {
	if err := CanCreateProject(user(domain.RoleAdmin, "a")); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if err := CanCreateProject(user(domain.RoleManager, "m")); err != nil {
		t.Fatalf("manager: %v", err)
	}
	if got := statusOf(t, CanCreateProject(user(domain.RoleEmployee, "e"))); got != http.StatusForbidden {
		t.Fatalf("employee should be denied, got %d", got)
	}
	if got := statusOf(t, CanCreateProject(user(domain.ParseRole("ROLE_ROOT"), "x"))); got != http.StatusForbidden {
		t.Fatalf("unknown role should be denied, got %d", got)
	}
}

func TestUpdateOwnership(t *testing.T) {
	ref := ProjectRef{CreatedBy: "creator", ManagerID: str("boss"), MemberIDs: []string{"emp"}}

	cases := []struct {
		name string
		u    domain.User
		want int
	}{
		{"admin", user(domain.RoleAdmin, "anyone"), 0},
		{"manager as creator", user(domain.RoleManager, "creator"), 0},
		{"manager as manager_id", user(domain.RoleManager, "boss"), 0},
		{"manager unrelated", user(domain.RoleManager, "other"), http.StatusForbidden},
		{"manager as member only", user(domain.RoleManager, "emp"), http.StatusForbidden},
		{"employee member", user(domain.RoleEmployee, "emp"), http.StatusForbidden},
		{"unknown role", user(domain.ParseRole("weird"), "creator"), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CanUpdate(tc.u, ref)
			if tc.want == 0 && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if tc.want != 0 {
				if got := statusOf(t, err); got != tc.want {
					t.Fatalf("expected %d, got %d", tc.want, got)
				}
			}
		})
	}
}

func TestDeleteRequiresCreator(t *testing.T) {
	ref := ProjectRef{CreatedBy: "creator", ManagerID: str("boss")}

	if err := CanDelete(user(domain.RoleAdmin, "anyone"), ref); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if err := CanDelete(user(domain.RoleManager, "creator"), ref); err != nil {
		t.Fatalf("creator: %v", err)
	}
	// Being manager_id is enough to update but not to delete.
	if got := statusOf(t, CanDelete(user(domain.RoleManager, "boss"), ref)); got != http.StatusForbidden {
		t.Fatalf("manager_id holder should not delete, got %d", got)
	}
	if got := statusOf(t, CanDelete(user(domain.RoleEmployee, "emp"), ref)); got != http.StatusForbidden {
		t.Fatalf("employee should not delete, got %d", got)
	}
}

func TestTaskPatchFieldRestriction(t *testing.T) {
	ref := ProjectRef{CreatedBy: "creator", ManagerID: str("boss"), MemberIDs: []string{"manager-1", "emp-1"}}

	// Admins and owning managers may send any field set.
	if err := CheckTaskPatch(user(domain.RoleAdmin, "anyone"), ref, []string{"priority", "title"}); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if err := CheckTaskPatch(user(domain.RoleManager, "boss"), ref, []string{"priority"}); err != nil {
		t.Fatalf("owning manager: %v", err)
	}

	// A manager who is only a member may move the stage and nothing else.
	if err := CheckTaskPatch(user(domain.RoleManager, "manager-1"), ref, []string{"stageId"}); err != nil {
		t.Fatalf("member manager stage move: %v", err)
	}
	err := CheckTaskPatch(user(domain.RoleManager, "manager-1"), ref, []string{"priority", "stageId"})
	if got := statusOf(t, err); got != http.StatusForbidden {
		t.Fatalf("member manager multi-field patch should be denied, got %d", got)
	}

	// Employees are restricted identically.
	if err := CheckTaskPatch(user(domain.RoleEmployee, "emp-1"), ref, []string{"stageId"}); err != nil {
		t.Fatalf("employee stage move: %v", err)
	}
	err = CheckTaskPatch(user(domain.RoleEmployee, "emp-1"), ref, []string{"title"})
	var ae Error
	if !errors.As(err, &ae) || ae.Status != http.StatusForbidden {
		t.Fatalf("employee title patch should be 403, got %v", err)
	}
	if ae.Message != "Access denied: Employees can only update the task stage" {
		t.Fatalf("unexpected message %q", ae.Message)
	}

	// Outside the project entirely.
	if got := statusOf(t, CheckTaskPatch(user(domain.RoleEmployee, "stranger"), ref, []string{"stageId"})); got != http.StatusForbidden {
		t.Fatalf("non-member employee should be denied, got %d", got)
	}
	if got := statusOf(t, CheckTaskPatch(user(domain.ParseRole("ROLE_NOPE"), "creator"), ref, []string{"stageId"})); got != http.StatusForbidden {
		t.Fatalf("unknown role should be denied, got %d", got)
	}
}

func TestErrNoFields(t *testing.T) {
	if ErrNoFields.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", ErrNoFields.Status)
	}
	if ErrNoFields.Message != "No valid fields provided for update" {
		t.Fatalf("unexpected message %q", ErrNoFields.Message)
	}
}
