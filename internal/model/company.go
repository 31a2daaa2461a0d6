package model

import (
	"time"

	"gorm.io/gorm"
)

// Per-seat monthly pricing by plan, in cents.
var planSeatPriceCents = map[string]int64{
	PlanTrial:      0,
	PlanBasic:      900,
	PlanPro:        2900,
	PlanEnterprise: 7900,
}

// Company is a sub-organization inside a tenant. TenantID is set at
// creation and never updated afterwards.
type Company struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	TenantID uint `json:"tenant_id" gorm:"index;not null"`

	Name    string `json:"name" gorm:"type:varchar(100);not null"`
	Email   string `json:"email,omitempty" gorm:"type:varchar(100)"`
	Phone   string `json:"phone,omitempty" gorm:"type:varchar(30)"`
	Address string `json:"address,omitempty" gorm:"type:text"`

	Plan         string `json:"plan" gorm:"type:varchar(20);not null;default:'basic'"`
	MaxUsers     int    `json:"max_users" gorm:"not null;default:5"`
	CurrentUsers int    `json:"current_users" gorm:"not null;default:0"`

	// MonthlyPriceCents is recomputed whenever plan or seat limit changes.
	MonthlyPriceCents int64 `json:"monthly_price_cents" gorm:"not null;default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// ComputeMonthlyPrice derives the company's monthly price from its plan
// and seat limit.
func (c *Company) ComputeMonthlyPrice() int64 {
	return planSeatPriceCents[c.Plan] * int64(c.MaxUsers)
}
