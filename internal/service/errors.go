package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// Callers match these with errors.Is. Each is wrapped with a message meant
// for the end user, e.g. "invalid state: listing is no longer available".
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnauthorized = errors.New("unauthorized")
	ErrCodeMismatch = errors.New("verification code mismatch")
	ErrUnavailable  = errors.New("service unavailable")
)

// storeErr annotates a repository failure. Timeouts and dead connections
// become ErrUnavailable so callers can answer "try again" instead of 500.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
