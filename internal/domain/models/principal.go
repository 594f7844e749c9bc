package models

// Role describes what a verified caller is allowed to do.
type Role string

const (
	RoleRequester Role = "requester"
	RoleApprover  Role = "approver"
	RoleAdmin     Role = "admin"
)

// Principal is a verified caller as returned by the identity provider.
type Principal struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Branch string `json:"branch"`
}

// CanTransition reports whether the principal may run approve/reject/dispatch/
// receive/delete operations. Requesters may only create and list within their
// own branch.
func (p Principal) CanTransition() bool {
	return p.Role == RoleApprover || p.Role == RoleAdmin
}
