package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client statuses
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
	ClientStatusArchived = "archived"
)

// Client is a confirmed customer record owned by a company within a
// tenant. AssignedToID routes work to a user and does not affect
// ownership or scoping.
type Client struct {
	ID uint `json:"id" gorm:"primaryKey"`
	// ExternalID is the stable identifier exposed to integrations; the
	// numeric primary key stays internal.
	ExternalID   string `json:"external_id" gorm:"type:uuid;uniqueIndex;not null"`
	TenantID     uint   `json:"tenant_id" gorm:"index;not null"`
	CompanyID    uint   `json:"company_id" gorm:"index;not null"`
	AssignedToID *uint  `json:"assigned_to_id,omitempty" gorm:"index"`

	Name        string `json:"name" gorm:"type:varchar(100);not null"`
	Email       string `json:"email,omitempty" gorm:"type:varchar(100)"`
	Phone       string `json:"phone,omitempty" gorm:"type:varchar(30)"`
	CompanyName string `json:"company_name,omitempty" gorm:"type:varchar(100)"`
	Status      string `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	Notes       string `json:"notes,omitempty" gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	AssignedTo *User `json:"assigned_to,omitempty" gorm:"foreignKey:AssignedToID"`
}

// BeforeCreate assigns the external identifier.
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ExternalID == "" {
		c.ExternalID = uuid.NewString()
	}
	return nil
}
