package database

import (
	"context"
	"errors"

	"github.com/koustreak/piiscan/internal/errs"
)

// ContextError maps context cancellation and deadline errors into
// *errs.Error. It returns nil for any other error so drivers can fall
// through to their own native classification:
//
//	if e := database.ContextError(err, msg); e != nil {
//	    return e
//	}
func ContextError(err error, msg string) *errs.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindCancelled, msg, err)
	default:
		return nil
	}
}
