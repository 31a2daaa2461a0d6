package model

import (
	"testing"
	"time"
)

func TestTenantTrialExpired(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	tests := []struct {
		name   string
		tenant Tenant
		want   bool
	}{
		{"trial inside window", Tenant{Plan: PlanTrial, TrialEnd: &future}, false},
		{"trial past window", Tenant{Plan: PlanTrial, TrialEnd: &past}, true},
		{"trial without end date", Tenant{Plan: PlanTrial}, false},
		{"paid plan never expires", Tenant{Plan: PlanPro, TrialEnd: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tenant.TrialExpired(now); got != tt.want {
				t.Fatalf("TrialExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTenantIsActive(t *testing.T) {
	if !(&Tenant{Status: TenantStatusActive}).IsActive() {
		t.Fatalf("active tenant reported inactive")
	}
	for _, status := range []string{TenantStatusSuspended, TenantStatusCancelled, TenantStatusTrialExpired} {
		if (&Tenant{Status: status}).IsActive() {
			t.Fatalf("%s tenant reported active", status)
		}
	}
}
