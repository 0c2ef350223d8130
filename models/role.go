package models

import "time"

// Role names used for authorization.
const (
	RoleAdministrator = "administrator"
	RoleUser          = "user"
)

// Role represents user roles with numeric primary key. Administrators see
// every capture; users only their own.
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}

// DefaultRoles are seeded on migration.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleAdministrator, Description: "full access"},
		{Name: RoleUser, Description: "own captures only"},
	}
}
