package model

import (
	"testing"
	"time"
)

func TestUserIsLocked(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(30 * time.Minute)

	u := User{}
	if u.IsLocked(now) {
		t.Fatalf("user without lock reported locked")
	}

	u.LockedUntil = &future
	if !u.IsLocked(now) {
		t.Fatalf("user with future lock reported unlocked")
	}

	u.LockedUntil = &past
	if u.IsLocked(now) {
		t.Fatalf("expired lock still reported locked")
	}
}

func TestUserLockoutThreshold(t *testing.T) {
	const maxAttempts = 5
	lockFor := 30 * time.Minute
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	u := User{}
	for i := 1; i < maxAttempts; i++ {
		u.RegisterFailedLogin(now, maxAttempts, lockFor)
		if u.FailedLoginAttempts != i {
			t.Fatalf("after %d failures counter = %d", i, u.FailedLoginAttempts)
		}
		if u.IsLocked(now) {
			t.Fatalf("locked after only %d of %d failures", i, maxAttempts)
		}
	}

	// The Nth failure trips the lock, and it holds even though the next
	// password check would succeed: the lock is consulted first.
	u.RegisterFailedLogin(now, maxAttempts, lockFor)
	if !u.IsLocked(now) {
		t.Fatalf("not locked after %d failures", maxAttempts)
	}
	if !u.IsLocked(now.Add(lockFor - time.Second)) {
		t.Fatalf("lock released before the window elapsed")
	}
	if u.IsLocked(now.Add(lockFor)) {
		t.Fatalf("lock held past the window")
	}
}

func TestUserResetLoginState(t *testing.T) {
	now := time.Now()
	u := User{}
	for i := 0; i < 5; i++ {
		u.RegisterFailedLogin(now, 5, 30*time.Minute)
	}
	if !u.IsLocked(now) {
		t.Fatalf("setup: user not locked")
	}

	later := now.Add(time.Hour)
	u.ResetLoginState(later)
	if u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("reset left attempts=%d locked_until=%v", u.FailedLoginAttempts, u.LockedUntil)
	}
	if u.LastLoginAt == nil || !u.LastLoginAt.Equal(later) {
		t.Fatalf("login time not recorded: %v", u.LastLoginAt)
	}
	if u.IsLocked(later) {
		t.Fatalf("still locked after reset")
	}
}

func TestUserRoleHelpers(t *testing.T) {
	u := User{Role: Role{Name: RoleCompanyAdmin}}

	if u.IsSuperAdmin() {
		t.Fatalf("company_admin reported as super_admin")
	}
	if !u.HasRole(RoleTenantAdmin, RoleCompanyAdmin) {
		t.Fatalf("HasRole missed matching name")
	}
	if u.HasRole(RoleSalesRep, RoleUser) {
		t.Fatalf("HasRole matched wrong names")
	}
}
