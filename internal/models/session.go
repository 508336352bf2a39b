package models

const (
	RoleMember    = "member"
	RoleOrganizer = "organizer"
)

// Session is the authenticated caller, passed explicitly to every service call.
// Identity is empty for organizer sessions opened with a wallet proof alone.
type Session struct {
	Identity string `json:"identity,omitempty"`
	Wallet   string `json:"wallet"`
	Role     string `json:"role"`
}
