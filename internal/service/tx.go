package service

import (
	"context"
	"errors"

	"github.com/noah-isme/obe-api/pkg/database"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
)

// transactor runs fn inside one database transaction carried by ctx.
type transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// translateTxError maps the error of a failed unit of work onto the API
// taxonomy. Typed errors raised inside the unit pass through unchanged.
func translateTxError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, database.ErrSerialization) {
		return appErrors.WrapAs(appErrors.ErrConcurrentModification, err, "")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.WrapAs(appErrors.ErrTransactionFailed, err, message)
}
