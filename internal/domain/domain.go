package domain

// Role is the closed set of roles a requesting user can carry. Anything the
// token presents outside the three known literals parses to RoleUnknown,
// which is denied everywhere.
type Role int

const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleManager
	RoleEmployee
)

const (
	roleAdminLiteral    = "ROLE_ADMIN"
	roleManagerLiteral  = "ROLE_MANAGER"
	roleEmployeeLiteral = "ROLE_EMPLOYEE"
)

// ParseRole maps a token role claim to a Role.
func ParseRole(s string) Role {
	switch s {
	case roleAdminLiteral:
		return RoleAdmin
	case roleManagerLiteral:
		return RoleManager
	case roleEmployeeLiteral:
		return RoleEmployee
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return roleAdminLiteral
	case RoleManager:
		return roleManagerLiteral
	case RoleEmployee:
		return roleEmployeeLiteral
	default:
		return "ROLE_UNKNOWN"
	}
}

// User is a reference to an identity-service user: only what the verified
// token carries. Display details come from the directory service at read time.
type User struct {
	ID   string
	Role Role
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"created_by"`
	ManagerID   *string  `json:"manager_id,omitempty"`
	EmployeeIDs []string `json:"employee_ids,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Stage struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Position  int     `json:"position"`
	Color     *string `json:"color,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// ValidPriority reports whether p is one of the task priority literals.
func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	StageID     string   `json:"stage_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	AssignedTo  *string  `json:"assigned_to,omitempty"`
	Images      []string `json:"images,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
