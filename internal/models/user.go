package models

import (
	"errors"
	"fmt"
)

// Role distinguishes parents from children in a family
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

// User is the signed-in identity of a session. It is either a ParentUser
// backed by a remote credential or a ChildUser selected from a family roster.
type User interface {
	UserID() string
	UserRole() Role
	UserFamilyID() string
}

// ParentUser is a user whose id was issued by the credential service
type ParentUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FamilyID string `json:"familyId"`
}

func (p ParentUser) UserID() string       { return p.ID }
func (p ParentUser) UserRole() Role       { return RoleParent }
func (p ParentUser) UserFamilyID() string { return p.FamilyID }

// ChildUser is a user identified by its family member row. Children have no
// credentials of their own.
type ChildUser struct {
	MemberID string `json:"id"`
	FamilyID string `json:"familyId"`
}

func (c ChildUser) UserID() string       { return c.MemberID }
func (c ChildUser) UserRole() Role       { return RoleChild }
func (c ChildUser) UserFamilyID() string { return c.FamilyID }

// StoredUser is the JSON shape of a user in local storage
type StoredUser struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
	FamilyID string `json:"familyId,omitempty"`
}

// ErrInvalidStoredUser is returned when a cached user record cannot describe
// a valid parent or child
var ErrInvalidStoredUser = errors.New("invalid stored user")

// EncodeUser converts a user into its storage record
func EncodeUser(u User) StoredUser {
	s := StoredUser{
		ID:       u.UserID(),
		Role:     u.UserRole(),
		FamilyID: u.UserFamilyID(),
	}
	if p, ok := u.(ParentUser); ok {
		s.Email = p.Email
	}
	return s
}

// Decode converts a storage record back into a user
func (s StoredUser) Decode() (User, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidStoredUser)
	}
	switch s.Role {
	case RoleParent:
		return ParentUser{ID: s.ID, Email: s.Email, FamilyID: s.FamilyID}, nil
	case RoleChild:
		if s.Email != "" {
			return nil, fmt.Errorf("%w: child with email", ErrInvalidStoredUser)
		}
		return ChildUser{MemberID: s.ID, FamilyID: s.FamilyID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidStoredUser, s.Role)
	}
}
