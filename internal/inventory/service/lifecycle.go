package service

import (
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
)

// DaysUntilExpiry returns the number of whole calendar days between asOf and
// the expiration date. Both sides are truncated to midnight so a batch
// expiring today reports 0, not a negative fraction.
func DaysUntilExpiry(expiration, asOf time.Time) int {
	exp := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	now := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(now).Hours() / 24)
}

// RecomputeStatus derives a batch's status and sellability from its quantity
// and expiration date, relative to asOf. Precedence: depleted, then expired,
// then near_expiry, then active. A manually blocked batch is left untouched;
// only an explicit unblock releases it.
//
// The function is idempotent and called after every quantity change, so a
// batch's status never needs a background sweep to stay truthful.
func RecomputeStatus(batch *repository.Batch, nearExpiryDays int, asOf time.Time) {
	if batch.Status == repository.BatchStatusBlocked {
		batch.CanBeSold = false
		return
	}

	days := DaysUntilExpiry(batch.ExpirationDate, asOf)

	switch {
	case batch.CurrentQuantity == 0:
		batch.Status = repository.BatchStatusDepleted
		batch.CanBeSold = false
	case days < 0:
		batch.Status = repository.BatchStatusExpired
		batch.CanBeSold = false
	case days <= nearExpiryDays:
		// canBeSold is left as-is: a batch nearing expiry is still sellable
		// unless something already forced it off.
		batch.Status = repository.BatchStatusNearExpiry
	default:
		batch.Status = repository.BatchStatusActive
		batch.CanBeSold = true
	}
}
