package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents an authenticated account. Every user belongs to a
// tenant and a role; company membership is optional. A user without a
// company is a supported state and sees tenant-wide data.
type User struct {
	ID        uint  `json:"id" gorm:"primaryKey"`
	TenantID  uint  `json:"tenant_id" gorm:"not null;uniqueIndex:idx_users_tenant_email"`
	CompanyID *uint `json:"company_id,omitempty" gorm:"index"`
	RoleID    uint  `json:"role_id" gorm:"index;not null"`

	FirstName string `json:"first_name" gorm:"type:varchar(50);not null"`
	LastName  string `json:"last_name" gorm:"type:varchar(50)"`
	// Email is unique within a tenant, not globally.
	Email        string `json:"email" gorm:"type:varchar(100);not null;uniqueIndex:idx_users_tenant_email"`
	PasswordHash string `json:"-" gorm:"type:varchar(255);not null"`
	Phone        string `json:"phone,omitempty" gorm:"type:varchar(30)"`

	IsActive            bool       `json:"is_active" gorm:"not null;default:true"`
	FailedLoginAttempts int        `json:"-" gorm:"not null;default:0"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Tenant  Tenant   `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	Company *Company `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	Role    Role     `json:"role,omitempty" gorm:"foreignKey:RoleID"`
}

// IsSuperAdmin reports whether the user's role bypasses tenant scoping.
func (u *User) IsSuperAdmin() bool {
	return u.Role.Name == RoleSuperAdmin
}

// HasRole reports whether the user's role name is one of the given names.
func (u *User) HasRole(names ...string) bool {
	for _, n := range names {
		if u.Role.Name == n {
			return true
		}
	}
	return false
}

// HasPermission reports whether the user's role carries the permission.
func (u *User) HasPermission(perm string) bool {
	return u.Role.HasPermission(perm)
}

// IsLocked reports whether the account is under a login lock at the
// given instant.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// RegisterFailedLogin records a failed password check. Reaching
// maxAttempts consecutive failures locks the account until now+lockFor.
func (u *User) RegisterFailedLogin(now time.Time, maxAttempts int, lockFor time.Duration) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		until := now.Add(lockFor)
		u.LockedUntil = &until
	}
}

// ResetLoginState clears the lockout bookkeeping after a successful
// login and records the login time.
func (u *User) ResetLoginState(now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
}
