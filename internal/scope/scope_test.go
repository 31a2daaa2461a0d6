package scope

import (
	"testing"

	"crm-service/internal/model"
)

func userWithRole(id, tenantID uint, role string, companyID *uint) *model.User {
	return &model.User{
		ID:        id,
		TenantID:  tenantID,
		CompanyID: companyID,
		Role:      model.Role{Name: role},
	}
}

func uintPtr(v uint) *uint { return &v }

func TestCanAccessTenant(t *testing.T) {
	superAdmin := userWithRole(1, 1, model.RoleSuperAdmin, nil)
	if !CanAccessTenant(superAdmin, 42) {
		t.Fatalf("super_admin should reach any tenant")
	}

	admin := userWithRole(2, 7, model.RoleTenantAdmin, nil)
	if !CanAccessTenant(admin, 7) {
		t.Fatalf("tenant_admin should reach its own tenant")
	}
	if CanAccessTenant(admin, 8) {
		t.Fatalf("tenant_admin must not reach another tenant")
	}
}

func TestCanAccessCompany(t *testing.T) {
	tests := []struct {
		name      string
		user      *model.User
		tenantID  uint
		companyID uint
		want      bool
	}{
		{
			name:      "super admin crosses tenants",
			user:      userWithRole(1, 1, model.RoleSuperAdmin, nil),
			tenantID:  9,
			companyID: 3,
			want:      true,
		},
		{
			name:      "tenant mismatch denies regardless of role",
			user:      userWithRole(2, 1, model.RoleTenantAdmin, nil),
			tenantID:  2,
			companyID: 3,
			want:      false,
		},
		{
			name:      "tenant admin crosses companies within tenant",
			user:      userWithRole(3, 1, model.RoleTenantAdmin, uintPtr(5)),
			tenantID:  1,
			companyID: 6,
			want:      true,
		},
		{
			name:      "company admin crosses companies within tenant",
			user:      userWithRole(4, 1, model.RoleCompanyAdmin, uintPtr(5)),
			tenantID:  1,
			companyID: 6,
			want:      true,
		},
		{
			name:      "sales rep bound to own company",
			user:      userWithRole(5, 1, model.RoleSalesRep, uintPtr(5)),
			tenantID:  1,
			companyID: 5,
			want:      true,
		},
		{
			name:      "sales rep denied foreign company",
			user:      userWithRole(6, 1, model.RoleSalesRep, uintPtr(5)),
			tenantID:  1,
			companyID: 6,
			want:      false,
		},
		{
			name:      "company-less user sees tenant-wide",
			user:      userWithRole(7, 1, model.RoleUser, nil),
			tenantID:  1,
			companyID: 99,
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanAccessCompany(tt.user, tt.tenantID, tt.companyID)
			if got != tt.want {
				t.Fatalf("CanAccessCompany() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckUserWriteSelfGuards(t *testing.T) {
	actor := userWithRole(10, 1, model.RoleTenantAdmin, nil)
	actor.RoleID = 2

	inactive := false
	if err := CheckUserWrite(actor, actor, UserUpdate{IsActive: &inactive}); err != ErrSelfDeactivate {
		t.Fatalf("self deactivation: got %v, want ErrSelfDeactivate", err)
	}

	otherRole := uint(3)
	if err := CheckUserWrite(actor, actor, UserUpdate{RoleID: &otherRole}); err != ErrSelfRoleChange {
		t.Fatalf("self role change: got %v, want ErrSelfRoleChange", err)
	}

	// Re-submitting the current role is a no-op, not a violation.
	sameRole := actor.RoleID
	if err := CheckUserWrite(actor, actor, UserUpdate{RoleID: &sameRole}); err != nil {
		t.Fatalf("same-role self update: got %v, want nil", err)
	}
}

func TestCheckUserWriteUnprivileged(t *testing.T) {
	actor := userWithRole(11, 1, model.RoleSalesRep, uintPtr(2))
	target := userWithRole(12, 1, model.RoleSalesRep, uintPtr(2))

	role := uint(4)
	if err := CheckUserWrite(actor, target, UserUpdate{RoleID: &role}); err != ErrFieldNotAllowed {
		t.Fatalf("role change by sales_rep: got %v, want ErrFieldNotAllowed", err)
	}

	if err := CheckUserWrite(actor, target, UserUpdate{}); err != nil {
		t.Fatalf("plain profile update by sales_rep: got %v, want nil", err)
	}
}

func TestCheckUserWriteTenantBoundary(t *testing.T) {
	actor := userWithRole(13, 1, model.RoleTenantAdmin, nil)
	target := userWithRole(14, 2, model.RoleUser, nil)

	if err := CheckUserWrite(actor, target, UserUpdate{}); err != ErrTargetOutOfScope {
		t.Fatalf("cross-tenant write: got %v, want ErrTargetOutOfScope", err)
	}

	superAdmin := userWithRole(15, 1, model.RoleSuperAdmin, nil)
	if err := CheckUserWrite(superAdmin, target, UserUpdate{}); err != nil {
		t.Fatalf("super_admin cross-tenant write: got %v, want nil", err)
	}
}

func TestCheckUserDelete(t *testing.T) {
	superAdmin := userWithRole(20, 1, model.RoleSuperAdmin, nil)
	if err := CheckUserDelete(superAdmin, superAdmin); err != ErrSelfDelete {
		t.Fatalf("self delete by super_admin: got %v, want ErrSelfDelete", err)
	}

	admin := userWithRole(21, 1, model.RoleTenantAdmin, nil)
	foreign := userWithRole(22, 2, model.RoleUser, nil)
	if err := CheckUserDelete(admin, foreign); err != ErrTargetOutOfScope {
		t.Fatalf("cross-tenant delete: got %v, want ErrTargetOutOfScope", err)
	}

	local := userWithRole(23, 1, model.RoleUser, nil)
	if err := CheckUserDelete(admin, local); err != nil {
		t.Fatalf("in-tenant delete: got %v, want nil", err)
	}
}
