package domain

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleVerifier   Role = "verifier"
	// RoleSystem is used for transitions driven by receipt validation.
	RoleSystem Role = "system"
)

// Actor is an already-authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) Privileged() bool {
	return a.Role == RoleSuperAdmin
}

// SystemActor drives automated transitions.
var SystemActor = Actor{ID: "system", Role: RoleSystem}
