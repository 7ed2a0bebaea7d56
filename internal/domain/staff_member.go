package domain

import "time"

// StaffMember models an operational user who can be linked to an Official Account follower.
type StaffMember struct {
	ID             string
	OwnerIdentity  string
	Name           string
	OfficialOpenID *string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Bound reports whether the staff member already has a linked platform identity.
func (s *StaffMember) Bound() bool {
	return s != nil && s.OfficialOpenID != nil && *s.OfficialOpenID != ""
}
