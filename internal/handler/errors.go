package handler

import (
	"errors"
	"net/http"
	"strings"

	"crm-service/internal/model"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errSubdomainTaken   = errors.New("subdomain is already taken")
	errAmbiguousAccount = errors.New("multiple accounts match the email")
)

// loginCandidate picks the single account a login lookup matched. Email
// is unique per tenant, so more than one match means the request carried
// no tenant context and must be rejected rather than resolved by
// guessing.
func loginCandidate(matches []model.User) (*model.User, error) {
	switch len(matches) {
	case 0:
		return nil, gorm.ErrRecordNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, errAmbiguousAccount
	}
}

// storeError maps an uncategorized store-layer error to a client-facing
// response. Not-found and unique-constraint shapes get their own status;
// everything else is a 500 with a generic body so store internals never
// leak to the client.
func storeError(c echo.Context, log *zap.Logger, err error, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found"})
	case isDuplicateKey(err):
		return c.JSON(http.StatusConflict, echo.Map{"error": what + " already exists"})
	default:
		log.Error("Store operation failed", zap.String("resource", what), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// The postgres driver reports unique violations as SQLSTATE 23505.
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")
}
