package repository

import (
	"github.com/okian/booklend/internal/domain/model"
)

// NotFound builds the error returned for an absent row.
func NotFound(entity string, id int64) error {
	return model.Errorf(model.ErrNotFound, "%s not found: %d", entity, id)
}

// Conflict builds the error returned for a constraint violation.
func Conflict(format string, args ...any) error {
	return model.Errorf(model.ErrConflict, format, args...)
}
