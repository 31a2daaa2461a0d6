package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Role names. The set is closed: roles are reference data created once
// and looked up by name.
const (
	RoleSuperAdmin   = "super_admin"
	RoleTenantAdmin  = "tenant_admin"
	RoleCompanyAdmin = "company_admin"
	RoleManager      = "manager"
	RoleSalesRep     = "sales_rep"
	RoleUser         = "user"
)

// Permission vocabulary (resource + action pairs).
const (
	PermViewUsers   = "view_users"
	PermCreateUsers = "create_users"
	PermEditUsers   = "edit_users"
	PermDeleteUsers = "delete_users"

	PermViewCompanies   = "view_companies"
	PermCreateCompanies = "create_companies"
	PermEditCompanies   = "edit_companies"
	PermDeleteCompanies = "delete_companies"

	PermViewClients   = "view_clients"
	PermCreateClients = "create_clients"
	PermEditClients   = "edit_clients"
	PermDeleteClients = "delete_clients"

	PermViewLeads    = "view_leads"
	PermCreateLeads  = "create_leads"
	PermEditLeads    = "edit_leads"
	PermDeleteLeads  = "delete_leads"
	PermConvertLeads = "convert_leads"
	PermAssignLeads  = "assign_leads"

	PermViewDashboard  = "view_dashboard"
	PermManageTenants  = "manage_tenants"
	PermManageSettings = "manage_settings"
)

// Role is a named permission bundle assigned to a user.
type Role struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"type:varchar(30);uniqueIndex;not null"`
	DisplayName string `json:"display_name" gorm:"type:varchar(60);not null"`
	// Permissions is stored as a JSON string array.
	Permissions  string `json:"-" gorm:"type:jsonb;not null;default:'[]'"`
	IsSystemRole bool   `json:"is_system_role" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PermissionList decodes the stored permission array.
func (r *Role) PermissionList() []string {
	var perms []string
	if err := json.Unmarshal([]byte(r.Permissions), &perms); err != nil {
		return nil
	}
	return perms
}

// HasPermission reports whether the role contains the permission string.
func (r *Role) HasPermission(perm string) bool {
	for _, p := range r.PermissionList() {
		if p == perm {
			return true
		}
	}
	return false
}

var allPermissions = []string{
	PermViewUsers, PermCreateUsers, PermEditUsers, PermDeleteUsers,
	PermViewCompanies, PermCreateCompanies, PermEditCompanies, PermDeleteCompanies,
	PermViewClients, PermCreateClients, PermEditClients, PermDeleteClients,
	PermViewLeads, PermCreateLeads, PermEditLeads, PermDeleteLeads,
	PermConvertLeads, PermAssignLeads,
	PermViewDashboard, PermManageTenants, PermManageSettings,
}

// DefaultRolePermissions maps each system role to its permission bundle.
func DefaultRolePermissions() map[string][]string {
	return map[string][]string{
		RoleSuperAdmin: allPermissions,
		RoleTenantAdmin: {
			PermViewUsers, PermCreateUsers, PermEditUsers, PermDeleteUsers,
			PermViewCompanies, PermCreateCompanies, PermEditCompanies, PermDeleteCompanies,
			PermViewClients, PermCreateClients, PermEditClients, PermDeleteClients,
			PermViewLeads, PermCreateLeads, PermEditLeads, PermDeleteLeads,
			PermConvertLeads, PermAssignLeads,
			PermViewDashboard, PermManageSettings,
		},
		RoleCompanyAdmin: {
			PermViewUsers, PermCreateUsers, PermEditUsers,
			PermViewCompanies, PermEditCompanies,
			PermViewClients, PermCreateClients, PermEditClients, PermDeleteClients,
			PermViewLeads, PermCreateLeads, PermEditLeads, PermDeleteLeads,
			PermConvertLeads, PermAssignLeads,
			PermViewDashboard,
		},
		RoleManager: {
			PermViewUsers,
			PermViewClients, PermCreateClients, PermEditClients,
			PermViewLeads, PermCreateLeads, PermEditLeads,
			PermConvertLeads, PermAssignLeads,
			PermViewDashboard,
		},
		RoleSalesRep: {
			PermViewClients, PermCreateClients, PermEditClients,
			PermViewLeads, PermCreateLeads, PermEditLeads, PermConvertLeads,
			PermViewDashboard,
		},
		RoleUser: {
			PermViewClients, PermViewLeads, PermViewDashboard,
		},
	}
}

var roleDisplayNames = map[string]string{
	RoleSuperAdmin:   "Super Administrator",
	RoleTenantAdmin:  "Tenant Administrator",
	RoleCompanyAdmin: "Company Administrator",
	RoleManager:      "Manager",
	RoleSalesRep:     "Sales Representative",
	RoleUser:         "User",
}

// SeedRoles creates the system roles if they do not exist yet. Existing
// roles keep their row but have their permission bundle refreshed, so a
// vocabulary change lands on restart.
func SeedRoles(db *gorm.DB) error {
	for name, perms := range DefaultRolePermissions() {
		raw, err := json.Marshal(perms)
		if err != nil {
			return err
		}

		var role Role
		result := db.Where("name = ?", name).First(&role)
		if result.Error != nil {
			role = Role{
				Name:         name,
				DisplayName:  roleDisplayNames[name],
				Permissions:  string(raw),
				IsSystemRole: true,
			}
			if err := db.Create(&role).Error; err != nil {
				return err
			}
			continue
		}

		if err := db.Model(&role).Update("permissions", string(raw)).Error; err != nil {
			return err
		}
	}
	return nil
}
