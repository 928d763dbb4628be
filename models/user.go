package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an authenticated account. PasswordHash is never serialized.
type User struct {
	gorm.Model
	Login        string     `json:"login" gorm:"uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	FullName     string     `json:"fullName"`
	PasswordHash string     `json:"-"`
	Status       string     `json:"status" gorm:"type:varchar(20);default:'active'"`
	PhotoURL     string     `json:"photoUrl"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	Roles        []Role     `json:"roles,omitempty" gorm:"many2many:user_roles;"`
}

// Role groups permissions. The "admin" role short-circuits permission checks.
type Role struct {
	gorm.Model
	Name        string       `json:"name" gorm:"uniqueIndex;not null"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions,omitempty" gorm:"many2many:role_permissions;"`
}

// Permission is a named capability checked by the route middleware.
type Permission struct {
	gorm.Model
	Name        string `json:"name" gorm:"uniqueIndex;not null"`
	Description string `json:"description"`
	Category    string `json:"category" gorm:"not null"`
}

// GetUserPermissions returns the distinct permissions a user holds through
// their roles.
func GetUserPermissions(db *gorm.DB, userID uint) ([]Permission, error) {
	var user User
	if err := db.Preload("Roles.Permissions").First(&user, userID).Error; err != nil {
		return nil, err
	}

	permissionMap := make(map[uint]Permission)
	for _, role := range user.Roles {
		for _, permission := range role.Permissions {
			permissionMap[permission.ID] = permission
		}
	}

	permissions := make([]Permission, 0, len(permissionMap))
	for _, permission := range permissionMap {
		permissions = append(permissions, permission)
	}
	return permissions, nil
}
