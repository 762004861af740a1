package model

// Actor is the authenticated caller as asserted by the identity service.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (a Actor) IsDonor() bool {
	return a.Role == RoleDonor
}

func (a Actor) IsOrganization() bool {
	return a.Role == RoleOrganization
}

func (a Actor) IsModerator() bool {
	return a.Role == RoleModerator
}
