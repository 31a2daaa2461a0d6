package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lead statuses
const (
	LeadStatusNew         = "new"
	LeadStatusContacted   = "contacted"
	LeadStatusQualified   = "qualified"
	LeadStatusProposal    = "proposal"
	LeadStatusNegotiation = "negotiation"
	LeadStatusClosedWon   = "closed_won"
	LeadStatusClosedLost  = "closed_lost"
)

// ErrLeadAlreadyConverted is returned when a second conversion of the
// same lead is attempted.
var ErrLeadAlreadyConverted = errors.New("lead has already been converted")

// Lead is a prospective sales opportunity. A lead converts into a Client
// exactly once; conversion is one-directional and forces the terminal
// closed_won status.
type Lead struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	ExternalID   string `json:"external_id" gorm:"type:uuid;uniqueIndex;not null"`
	TenantID     uint   `json:"tenant_id" gorm:"index;not null"`
	CompanyID    uint   `json:"company_id" gorm:"index;not null"`
	AssignedToID *uint  `json:"assigned_to_id,omitempty" gorm:"index"`

	Name                string `json:"name" gorm:"type:varchar(100);not null"`
	Email               string `json:"email,omitempty" gorm:"type:varchar(100)"`
	Phone               string `json:"phone,omitempty" gorm:"type:varchar(30)"`
	Source              string `json:"source,omitempty" gorm:"type:varchar(50)"`
	Status              string `json:"status" gorm:"type:varchar(20);not null;default:'new'"`
	EstimatedValueCents int64  `json:"estimated_value_cents" gorm:"not null;default:0"`
	Notes               string `json:"notes,omitempty" gorm:"type:text"`

	ConvertedToClient bool       `json:"converted_to_client" gorm:"not null;default:false"`
	ClientID          *uint      `json:"client_id,omitempty" gorm:"index"`
	ConvertedAt       *time.Time `json:"converted_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	AssignedTo *User `json:"assigned_to,omitempty" gorm:"foreignKey:AssignedToID"`
}

// BeforeCreate assigns the external identifier.
func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ExternalID == "" {
		l.ExternalID = uuid.NewString()
	}
	return nil
}

// CanConvert reports whether the lead is still eligible for conversion.
func (l *Lead) CanConvert() error {
	if l.ConvertedToClient {
		return ErrLeadAlreadyConverted
	}
	return nil
}

// MarkConverted records a completed conversion into the given client.
func (l *Lead) MarkConverted(clientID uint, at time.Time) {
	l.ConvertedToClient = true
	l.ClientID = &clientID
	l.ConvertedAt = &at
	l.Status = LeadStatusClosedWon
}
