package jwtutil

import (
	"testing"

	"crm-service/pkg/config"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		SigningKey:      "test-signing-key",
		ExpirationHours: 1,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	util := NewJWTUtil(testJWTConfig())

	companyID := uint(4)
	token, err := util.GenerateToken("rep@acme.test", 12, 3, &companyID, "sales_rep")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := util.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Email != "rep@acme.test" {
		t.Fatalf("email = %q", claims.Email)
	}
	if claims.UserID != 12 || claims.TenantID != 3 {
		t.Fatalf("identity claims = user %d tenant %d", claims.UserID, claims.TenantID)
	}
	if claims.CompanyID == nil || *claims.CompanyID != 4 {
		t.Fatalf("company claim = %v", claims.CompanyID)
	}
	if claims.Role != "sales_rep" {
		t.Fatalf("role claim = %q", claims.Role)
	}
}

func TestValidateTokenWithoutCompany(t *testing.T) {
	util := NewJWTUtil(testJWTConfig())

	token, err := util.GenerateToken("admin@acme.test", 1, 3, nil, "tenant_admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := util.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.CompanyID != nil {
		t.Fatalf("company claim should be absent, got %v", *claims.CompanyID)
	}
}

func TestValidateTokenWrongKey(t *testing.T) {
	issuer := NewJWTUtil(&config.JWTConfig{SigningKey: "key-a", ExpirationHours: 1})
	verifier := NewJWTUtil(&config.JWTConfig{SigningKey: "key-b", ExpirationHours: 1})

	token, err := issuer.GenerateToken("u@acme.test", 1, 1, nil, "user")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatalf("token signed with a different key validated")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	util := NewJWTUtil(&config.JWTConfig{SigningKey: "test-signing-key", ExpirationHours: -1})

	token, err := util.GenerateToken("u@acme.test", 1, 1, nil, "user")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := util.ValidateToken(token); err == nil {
		t.Fatalf("expired token validated")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	util := NewJWTUtil(testJWTConfig())
	if _, err := util.ValidateToken("not.a.token"); err == nil {
		t.Fatalf("garbage token validated")
	}
}
