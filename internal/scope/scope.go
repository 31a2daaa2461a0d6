// Package scope implements the tenant/company data-isolation rules.
// Every handler that touches tenant-owned data goes through these
// functions instead of comparing identifiers inline, so the rule set
// lives in exactly one place.
package scope

import (
	"errors"

	"crm-service/internal/model"

	"gorm.io/gorm"
)

// ErrAccessDenied is the single outcome for any scope violation.
var ErrAccessDenied = errors.New("access denied")

// CanAccessTenant reports whether the user may touch data owned by the
// given tenant. super_admin bypasses tenant scoping entirely; everyone
// else is bound to their own tenant.
func CanAccessTenant(user *model.User, tenantID uint) bool {
	if user.IsSuperAdmin() {
		return true
	}
	return user.TenantID == tenantID
}

// CanAccessCompany reports whether the user may touch data owned by the
// given company of the given tenant. Rules, in order:
//   - super_admin bypasses all scoping.
//   - a tenant mismatch always denies.
//   - tenant_admin and company_admin may reach any company of their own
//     tenant (the company's tenant membership must already be validated
//     by the caller via CompanyInTenant).
//   - any other user with a company assignment is bound to that company.
//   - a user with no company assignment has tenant-wide reach. This is
//     deliberate and must not be "fixed" into a denial.
func CanAccessCompany(user *model.User, tenantID, companyID uint) bool {
	if user.IsSuperAdmin() {
		return true
	}
	if user.TenantID != tenantID {
		return false
	}
	if user.HasRole(model.RoleTenantAdmin, model.RoleCompanyAdmin) {
		return true
	}
	if user.CompanyID == nil {
		return true
	}
	return *user.CompanyID == companyID
}

// CompanyInTenant verifies that a company belongs to the given tenant.
// Used before honoring an explicit cross-company query from an elevated
// role.
func CompanyInTenant(db *gorm.DB, companyID, tenantID uint) (bool, error) {
	var count int64
	err := db.Model(&model.Company{}).
		Where("id = ? AND tenant_id = ?", companyID, tenantID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Filter narrows a query to the records the user may see. super_admin
// queries are returned unfiltered. Other users are pinned to their
// tenant; users with a company assignment (below tenant_admin) are
// further pinned to that company. requestedCompanyID lets elevated
// roles ask for a specific company; the caller validates tenant
// membership of that company first.
func Filter(db *gorm.DB, user *model.User, requestedCompanyID *uint) *gorm.DB {
	if user.IsSuperAdmin() {
		if requestedCompanyID != nil {
			return db.Where("company_id = ?", *requestedCompanyID)
		}
		return db
	}

	db = db.Where("tenant_id = ?", user.TenantID)

	if user.HasRole(model.RoleTenantAdmin, model.RoleCompanyAdmin) {
		if requestedCompanyID != nil {
			return db.Where("company_id = ?", *requestedCompanyID)
		}
		if user.CompanyID != nil && user.HasRole(model.RoleCompanyAdmin) {
			return db.Where("company_id = ?", *user.CompanyID)
		}
		return db
	}

	if user.CompanyID != nil {
		return db.Where("company_id = ?", *user.CompanyID)
	}

	// No company assignment: tenant-wide visibility.
	return db
}
