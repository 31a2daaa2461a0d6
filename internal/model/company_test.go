package model

import "testing"

func TestCompanyComputeMonthlyPrice(t *testing.T) {
	tests := []struct {
		name     string
		plan     string
		maxUsers int
		want     int64
	}{
		{"trial is free", PlanTrial, 50, 0},
		{"basic single seat", PlanBasic, 1, 900},
		{"basic five seats", PlanBasic, 5, 4500},
		{"pro ten seats", PlanPro, 10, 29000},
		{"enterprise hundred seats", PlanEnterprise, 100, 790000},
		{"zero seats", PlanPro, 0, 0},
		{"unknown plan", "unknown", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Company{Plan: tt.plan, MaxUsers: tt.maxUsers}
			if got := c.ComputeMonthlyPrice(); got != tt.want {
				t.Fatalf("ComputeMonthlyPrice() = %d, want %d", got, tt.want)
			}
		})
	}
}
