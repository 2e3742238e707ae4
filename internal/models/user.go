package models

import "time"

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleBoss    UserRole = "boss"
	RoleManager UserRole = "manager"
	RoleStaff   UserRole = "staff"
)

var roleRank = map[UserRole]int{
	RoleStaff:   1,
	RoleManager: 2,
	RoleBoss:    3,
	RoleAdmin:   4,
}

func (r UserRole) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast: admin > boss > manager > staff
func (r UserRole) AtLeast(min UserRole) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

type User struct {
	ID           uint `gorm:"primaryKey"`
	StoreID      *uint
	Store        *Store
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
