package model

import "fmt"

// Role is the closed set of capabilities a signed-in user may hold.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

// ParseRole rejects any role outside the closed set.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleParticipant, RoleOrganizer, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}
