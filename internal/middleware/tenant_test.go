package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-service/pkg/config"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testTenantConfig() *config.TenantConfig {
	return &config.TenantConfig{
		ReservedSubdomains: []string{"www", "api", "app", "admin"},
		DevHosts:           []string{"localhost", "127.0.0.1"},
	}
}

func TestExtractSubdomain(t *testing.T) {
	cfg := testTenantConfig()

	tests := []struct {
		name string
		host string
		want string
	}{
		{"plain tenant host", "acme.example.com", "acme"},
		{"tenant host with port", "acme.example.com:8080", "acme"},
		{"uppercase label normalized", "ACME.example.com", "acme"},
		{"two labels is not a subdomain", "example.com", ""},
		{"deep subdomain takes first label", "acme.eu.example.com", "acme"},
		{"reserved www", "www.example.com", ""},
		{"reserved api", "api.example.com", ""},
		{"reserved admin", "admin.example.com", ""},
		{"dev host", "localhost", ""},
		{"dev host with port", "localhost:8080", ""},
		{"ipv4 literal", "192.168.1.10", ""},
		{"ipv4 literal with port", "192.168.1.10:8080", ""},
		{"ipv6 literal with port", "[::1]:8080", ""},
		{"empty host", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSubdomain(tt.host, cfg)
			if got != tt.want {
				t.Fatalf("ExtractSubdomain(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

// unreachableDB opens a gorm handle against a port nothing listens on.
// The connection is lazy, so construction succeeds and every query
// fails with a transport error.
func unreachableDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=none password=none dbname=none sslmode=disable",
	}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func testContext(host string, header map[string]string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = host
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestResolveTenantPropagatesStoreErrors(t *testing.T) {
	db := unreachableDB(t)
	cfg := testTenantConfig()

	// Subdomain lookup against a dead store must surface the error, not
	// degrade into "tenant not identified".
	c := testContext("acme.example.com", nil)
	if tenant, err := resolveTenant(c, db, cfg); err == nil {
		t.Fatalf("subdomain lookup: store error swallowed, got tenant=%v err=nil", tenant)
	}

	// Same for the X-Tenant-ID header path.
	c = testContext("localhost", map[string]string{"X-Tenant-ID": "1"})
	if tenant, err := resolveTenant(c, db, cfg); err == nil {
		t.Fatalf("header lookup: store error swallowed, got tenant=%v err=nil", tenant)
	}
}

func TestExtractSubdomainCustomReserved(t *testing.T) {
	cfg := &config.TenantConfig{
		ReservedSubdomains: []string{"status"},
		DevHosts:           nil,
	}

	if got := ExtractSubdomain("status.example.com", cfg); got != "" {
		t.Fatalf("reserved label resolved to %q, want empty", got)
	}
	if got := ExtractSubdomain("www.example.com", cfg); got != "www" {
		t.Fatalf("non-reserved www: got %q, want \"www\"", got)
	}
}
