package models

import "time"

// Family is the top-level tenant grouping a parent and their children
type Family struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code" db:"family_code"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	OwnerID   string    `json:"ownerId" db:"created_by"`
}

// FamilyMember is a parent or child profile scoped to one family
type FamilyMember struct {
	ID        string    `json:"id" db:"id"`
	FamilyID  string    `json:"familyId" db:"family_id"`
	UserID    *string   `json:"userId,omitempty" db:"user_id"`
	Name      string    `json:"name" db:"display_name"`
	Age       *int      `json:"age,omitempty" db:"age"`
	Avatar    *string   `json:"avatar,omitempty" db:"avatar_url"`
	Role      Role      `json:"role" db:"role"`
	Points    int       `json:"points" db:"points"`
	Level     int       `json:"level" db:"level"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// IsChild returns true if the member is a child profile
func (m *FamilyMember) IsChild() bool {
	return m.Role == RoleChild
}

// Owns reports whether the member row belongs to the given user. Parents are
// matched by their credential id, children by the member id itself.
func (m *FamilyMember) Owns(u User) bool {
	if u == nil {
		return false
	}
	switch u.UserRole() {
	case RoleParent:
		return m.Role == RoleParent && m.UserID != nil && *m.UserID == u.UserID()
	case RoleChild:
		return m.Role == RoleChild && m.ID == u.UserID()
	}
	return false
}
