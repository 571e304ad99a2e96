package sqlserver

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
	mssql "github.com/microsoft/go-mssqldb"
)

// SQL Server error numbers
// Full list: https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
const (
	errSelectDenied     = 229
	errColumnDenied     = 230
	errInvalidObject    = 208
	errLoginFailed      = 18456
	errCannotOpenDB     = 4060
	errQueryTimeout     = -2
	errLockTimeout      = 1222
	errServerNotFound   = 40532
	errFirewallRejected = 40615
)

// mapError translates go-mssqldb errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if e := database.ContextError(err, msg); e != nil {
		return e
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return errs.Wrap(classifyNumber(msErr.Number), fmt.Sprintf("%s: %s", msg, msErr.Message), err)
	}

	// Fallthrough: network and TLS errors
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classifyNumber(n int32) errs.ErrKind {
	switch n {
	case errSelectDenied, errColumnDenied:
		return errs.ErrKindPermissionDenied
	case errInvalidObject:
		return errs.ErrKindNotFound
	case errLoginFailed, errCannotOpenDB, errServerNotFound, errFirewallRejected:
		return errs.ErrKindConnectionFailed
	case errQueryTimeout, errLockTimeout:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
