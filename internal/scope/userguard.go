package scope

import (
	"errors"

	"crm-service/internal/model"
)

// Errors returned by the user-write guards. All map to 403 at the
// handler layer.
var (
	ErrSelfDeactivate   = errors.New("cannot deactivate your own account")
	ErrSelfRoleChange   = errors.New("cannot change your own role")
	ErrSelfDelete       = errors.New("cannot delete your own account")
	ErrFieldNotAllowed  = errors.New("changing role, company or active state requires an admin role")
	ErrTargetOutOfScope = errors.New("target user is outside your scope")
)

// UserUpdate describes the sensitive fields of a user-write request.
// Nil pointers mean the field is untouched.
type UserUpdate struct {
	RoleID    *uint
	CompanyID *uint
	IsActive  *bool
}

// privileged roles may change role/company/active state on other
// accounts within their scope.
func privileged(actor *model.User) bool {
	return actor.HasRole(model.RoleSuperAdmin, model.RoleTenantAdmin, model.RoleCompanyAdmin)
}

// CheckUserWrite validates an update of target by actor. It runs before
// any mutation; a non-nil error aborts the request with no partial
// write.
func CheckUserWrite(actor, target *model.User, upd UserUpdate) error {
	if !CanAccessTenant(actor, target.TenantID) {
		return ErrTargetOutOfScope
	}

	self := actor.ID == target.ID

	if self {
		if upd.IsActive != nil && !*upd.IsActive {
			return ErrSelfDeactivate
		}
		if upd.RoleID != nil && *upd.RoleID != actor.RoleID {
			return ErrSelfRoleChange
		}
	}

	if !privileged(actor) {
		if upd.RoleID != nil || upd.CompanyID != nil || upd.IsActive != nil {
			return ErrFieldNotAllowed
		}
	}

	return nil
}

// CheckUserDelete validates a delete of target by actor. Self-deletion
// is rejected for every role, super_admin included.
func CheckUserDelete(actor, target *model.User) error {
	if actor.ID == target.ID {
		return ErrSelfDelete
	}
	if !CanAccessTenant(actor, target.TenantID) {
		return ErrTargetOutOfScope
	}
	return nil
}
