package model

import "testing"

func TestRolePermissionList(t *testing.T) {
	r := Role{Permissions: `["view_leads","create_leads"]`}

	perms := r.PermissionList()
	if len(perms) != 2 {
		t.Fatalf("got %d permissions, want 2", len(perms))
	}
	if !r.HasPermission(PermViewLeads) {
		t.Fatalf("missing view_leads")
	}
	if r.HasPermission(PermDeleteLeads) {
		t.Fatalf("unexpected delete_leads")
	}

	malformed := Role{Permissions: "not json"}
	if malformed.HasPermission(PermViewLeads) {
		t.Fatalf("malformed permission blob should grant nothing")
	}
}

func TestDefaultRolePermissions(t *testing.T) {
	defaults := DefaultRolePermissions()

	names := []string{RoleSuperAdmin, RoleTenantAdmin, RoleCompanyAdmin, RoleManager, RoleSalesRep, RoleUser}
	for _, name := range names {
		if _, ok := defaults[name]; !ok {
			t.Fatalf("missing default bundle for %s", name)
		}
	}
	if len(defaults) != len(names) {
		t.Fatalf("got %d role bundles, want %d", len(defaults), len(names))
	}

	has := func(perms []string, want string) bool {
		for _, p := range perms {
			if p == want {
				return true
			}
		}
		return false
	}

	if !has(defaults[RoleSuperAdmin], PermManageTenants) {
		t.Fatalf("super_admin must carry manage_tenants")
	}
	for _, name := range []string{RoleTenantAdmin, RoleCompanyAdmin, RoleManager, RoleSalesRep, RoleUser} {
		if has(defaults[name], PermManageTenants) {
			t.Fatalf("%s must not carry manage_tenants", name)
		}
	}

	if !has(defaults[RoleSalesRep], PermConvertLeads) {
		t.Fatalf("sales_rep must carry convert_leads")
	}
	if has(defaults[RoleUser], PermDeleteUsers) {
		t.Fatalf("user must not carry delete_users")
	}
}
