package handlers

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-maintenance/internal/codegen"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/lock"
)

// saveError marks a failed insert so it can be reported separately from
// lock or code-generation failures.
type saveError struct {
	err error
}

func (e *saveError) Error() string { return "save record: " + e.err.Error() }
func (e *saveError) Unwrap() error { return e.err }

func isSaveError(err error) bool {
	var se *saveError
	return errors.As(err, &se)
}

// insertWithCode draws a free code and inserts the record while holding the
// organisation's lock for resource, so two creates cannot pick the same code.
func insertWithCode(ctx context.Context, locker lock.Locker, codes *codegen.Generator, resource, organisationID string, insert func(code string) error) error {
	unlock, err := locker.Lock(ctx, lock.Key(resource, organisationID))
	if err != nil {
		return err
	}
	defer unlock()

	code, err := codes.Generate(ctx, organisationID)
	if err != nil {
		return err
	}
	if err := insert(code); err != nil {
		return &saveError{err: err}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID)
}
