// internal/app/store/storeutil/storeutil.go
package storeutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Paginate returns *options.FindOptions with skip/limit given a 1-based page.
func Paginate(limit, page int64) *options.FindOptions {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	sk := (page - 1) * limit
	return options.Find().SetLimit(limit).SetSkip(sk)
}

// Classify wraps a driver error with the apperr kind it belongs to:
// a missing document is ErrNotFound, a unique index violation ErrConflict,
// a document rejected by the collection's JSON schema ErrValidation, and
// connection, selection or timeout failures ErrStoreUnavailable.
// Anything else is wrapped unchanged. op names the failed operation.
func Classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	case wafflemongo.IsDup(err):
		return fmt.Errorf("%s: %w: %v", op, apperr.ErrConflict, err)
	case isSchemaViolation(err):
		return fmt.Errorf("%s: %w: %v", op, apperr.ErrValidation, err)
	case IsUnavailable(err):
		return fmt.Errorf("%s: %w: %v", op, apperr.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	var sel topology.ServerSelectionError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.As(err, &sel),
		mongo.IsNetworkError(err),
		mongo.IsTimeout(err):
		return true
	}
	return false
}

// documentValidationFailure is the server code for a $jsonSchema rejection.
const documentValidationFailure = 121

func isSchemaViolation(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(documentValidationFailure)
}
