package handler

import (
	"errors"
	"testing"

	"crm-service/internal/model"

	"gorm.io/gorm"
)

func TestValidSubdomain(t *testing.T) {
	valid := []string{"acme", "acme-corp", "a1", "x", "team42"}
	for _, s := range valid {
		if !validSubdomain(s) {
			t.Fatalf("%q rejected", s)
		}
	}

	invalid := []string{"", "-acme", "acme-", "ac me", "Acme", "acme.corp", "acme_corp"}
	for _, s := range invalid {
		if validSubdomain(s) {
			t.Fatalf("%q accepted", s)
		}
	}

	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if validSubdomain(string(long)) {
		t.Fatalf("64-char label accepted")
	}
	if !validSubdomain(string(long[:63])) {
		t.Fatalf("63-char label rejected")
	}
}

func TestLoginCandidate(t *testing.T) {
	if _, err := loginCandidate(nil); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("no match: got %v, want ErrRecordNotFound", err)
	}

	one := []model.User{{ID: 1, TenantID: 1}}
	candidate, err := loginCandidate(one)
	if err != nil {
		t.Fatalf("single match: %v", err)
	}
	if candidate.ID != 1 {
		t.Fatalf("single match picked user %d", candidate.ID)
	}

	// Same email in two tenants: without tenant context the login must
	// be rejected, never resolved by picking one.
	two := []model.User{{ID: 1, TenantID: 1}, {ID: 2, TenantID: 2}}
	if _, err := loginCandidate(two); !errors.Is(err, errAmbiguousAccount) {
		t.Fatalf("ambiguous match: got %v, want errAmbiguousAccount", err)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if !isDuplicateKey(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm.ErrDuplicatedKey not recognized")
	}
	if !isDuplicateKey(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_tenant_email" (SQLSTATE 23505)`)) {
		t.Fatalf("postgres unique violation not recognized")
	}
	if isDuplicateKey(errors.New("connection refused")) {
		t.Fatalf("unrelated error classified as duplicate key")
	}
}
