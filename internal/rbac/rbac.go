package rbac

import "github.com/repledger/backend/internal/models"

// Permission constants
const (
	PermSubmitRequest = "submit_request"
	PermViewOwn       = "view_own"
	PermReviewRequest = "review_request"
	PermManageEvents  = "manage_events"
)

// RolePermissions is the coarse gate applied at the HTTP layer. Organizer
// authority itself is re-checked against the ledger by the services.
var RolePermissions = map[string][]string{
	models.RoleMember: {
		PermSubmitRequest, PermViewOwn,
	},
	models.RoleOrganizer: {
		PermReviewRequest, PermManageEvents,
		// Organizer sessions carry no identity, so they cannot submit.
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
