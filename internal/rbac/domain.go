package rbac

// Role is a user's role within one company.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
)

// CanWrite reports whether the role may post, void, or change configuration.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleAccountant
}

// Membership links a user to a company.
type Membership struct {
	UserID    int64 `json:"user_id"`
	CompanyID int64 `json:"company_id"`
	Role      Role  `json:"role"`
}
