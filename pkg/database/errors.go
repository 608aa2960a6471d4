package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return mapUniqueViolation(pqErr)

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})

	case strings.Contains(constraint, "quantity_within_initial"):
		return errors.Validation(map[string]string{
			"current_quantity": "must not exceed the initial quantity",
		})

	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: active, near_expiry, expired, depleted, blocked",
		})

	case strings.Contains(constraint, "movement_type_valid"):
		return errors.Validation(map[string]string{
			"movement_type": "is not a recognized movement type",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// mapUniqueViolation creates a domain error for unique constraint violations.
func mapUniqueViolation(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "batch_number"):
		return errors.DuplicateBatchNumber("", "")
	case strings.Contains(constraint, "products_name"):
		return errors.Conflict("a product with this name already exists")
	default:
		return errors.Conflict("a record with these values already exists")
	}
}
