package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant statuses
const (
	TenantStatusActive       = "active"
	TenantStatusSuspended    = "suspended"
	TenantStatusCancelled    = "cancelled"
	TenantStatusTrialExpired = "trial_expired"
)

// Tenant plans
const (
	PlanTrial      = "trial"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Tenant represents a customer account and is the top-level isolation
// boundary. Every Company, User, Client and Lead carries a TenantID.
type Tenant struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Name      string `json:"name" gorm:"type:varchar(100);not null"`
	Subdomain string `json:"subdomain" gorm:"type:varchar(63);uniqueIndex;not null"`
	Status    string `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	Plan      string `json:"plan" gorm:"type:varchar(20);not null;default:'trial'"`

	// Seat and storage quotas. Current counters are only ever moved with
	// the guarded atomic updates in pkg/database.
	MaxUsers         int `json:"max_users" gorm:"not null;default:5"`
	CurrentUsers     int `json:"current_users" gorm:"not null;default:0"`
	MaxStorageMB     int `json:"max_storage_mb" gorm:"not null;default:512"`
	CurrentStorageMB int `json:"current_storage_mb" gorm:"not null;default:0"`

	Settings string `json:"settings,omitempty" gorm:"type:jsonb"`

	TrialStart *time.Time `json:"trial_start,omitempty"`
	TrialEnd   *time.Time `json:"trial_end,omitempty"`

	AdminUserID    *uint      `json:"admin_user_id,omitempty" gorm:"index"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsActive reports whether the tenant may serve regular traffic.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// TrialExpired reports whether the tenant is on a trial plan whose
// window has elapsed.
func (t *Tenant) TrialExpired(now time.Time) bool {
	if t.Plan != PlanTrial || t.TrialEnd == nil {
		return false
	}
	return now.After(*t.TrialEnd)
}
