package model

import (
	"testing"
	"time"
)

func TestLeadConversionIsOneTime(t *testing.T) {
	lead := Lead{ID: 1, Status: LeadStatusQualified}

	if err := lead.CanConvert(); err != nil {
		t.Fatalf("fresh lead should be convertible, got %v", err)
	}

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lead.MarkConverted(7, at)

	if !lead.ConvertedToClient {
		t.Fatalf("conversion flag not set")
	}
	if lead.ClientID == nil || *lead.ClientID != 7 {
		t.Fatalf("client id not recorded: %v", lead.ClientID)
	}
	if lead.ConvertedAt == nil || !lead.ConvertedAt.Equal(at) {
		t.Fatalf("conversion timestamp not recorded: %v", lead.ConvertedAt)
	}
	if lead.Status != LeadStatusClosedWon {
		t.Fatalf("conversion must force closed_won, got %q", lead.Status)
	}

	if err := lead.CanConvert(); err != ErrLeadAlreadyConverted {
		t.Fatalf("second conversion: got %v, want ErrLeadAlreadyConverted", err)
	}
}

func TestLeadConversionOverridesPriorStatus(t *testing.T) {
	lead := Lead{ID: 2, Status: LeadStatusNegotiation}
	lead.MarkConverted(9, time.Now())
	if lead.Status != LeadStatusClosedWon {
		t.Fatalf("got %q, want %q", lead.Status, LeadStatusClosedWon)
	}
}
