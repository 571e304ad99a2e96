package redshift

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/lib/pq"
)

// mapError translates lib/pq errors into *errs.Error.
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

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errs.Wrap(classifyCode(pqErr.Code), fmt.Sprintf("%s: %s", msg, pqErr.Message), err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classifyCode(code pq.ErrorCode) errs.ErrKind {
	switch code {
	case "42501":
		return errs.ErrKindPermissionDenied
	case "42P01":
		return errs.ErrKindNotFound
	case "57014":
		return errs.ErrKindTimeout
	case "3D000":
		return errs.ErrKindConnectionFailed
	}
	switch code.Class() {
	case "08", "28":
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
