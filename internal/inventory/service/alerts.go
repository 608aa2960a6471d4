package service

import (
	"context"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
)

// LowStockAlert flags a product at or below its low-stock threshold
type LowStockAlert struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	CurrentStock int    `json:"current_stock"`
	MinStock     int    `json:"min_stock"`
}

// ExpiryAlert flags a batch that is expiring or already expired
type ExpiryAlert struct {
	BatchID         string    `json:"batch_id"`
	ProductID       string    `json:"product_id"`
	BatchNumber     string    `json:"batch_number"`
	ExpirationDate  time.Time `json:"expiration_date"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	CurrentQuantity int       `json:"current_quantity"`
	EstimatedLoss   float64   `json:"estimated_loss"`
}

// AlertSummary weights the alert counts into severity buckets. The
// weighting is fixed business policy: expired stock is critical, expiring
// and low-stock are high, pending approvals are medium.
type AlertSummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
}

// AlertBundle is the point-in-time alert report. When a sub-report fails,
// Partial is set and the failure is listed in Errors while the remaining
// sections are still returned.
type AlertBundle struct {
	LowStock         []LowStockAlert        `json:"low_stock"`
	Expiring         []ExpiryAlert          `json:"expiring"`
	Expired          []ExpiryAlert          `json:"expired"`
	TotalLoss        float64                `json:"total_loss"`
	PendingApprovals []*repository.Movement `json:"pending_approvals"`
	Summary          AlertSummary           `json:"summary"`
	GeneratedAt      time.Time              `json:"generated_at"`
	Partial          bool                   `json:"partial"`
	Errors           []string               `json:"errors,omitempty"`
}

func summarize(lowStock, expiring, expired, pending int) AlertSummary {
	return AlertSummary{
		Total:    lowStock + expiring + expired + pending,
		Critical: expired,
		High:     expiring + lowStock,
		Medium:   pending,
	}
}

// GetAlertsSummary computes the four alert reports on demand. Each report
// is independent; one failing does not suppress the others.
func (s *InventoryService) GetAlertsSummary(ctx context.Context) (*AlertBundle, error) {
	now := time.Now()
	bundle := &AlertBundle{
		LowStock:         []LowStockAlert{},
		Expiring:         []ExpiryAlert{},
		Expired:          []ExpiryAlert{},
		PendingApprovals: []*repository.Movement{},
		GeneratedAt:      now,
	}

	fail := func(section string, err error) {
		bundle.Partial = true
		bundle.Errors = append(bundle.Errors, section+": "+err.Error())
		s.logger.WithError(err).Error().Str("section", section).Msg("Alert section failed")
	}

	products, err := s.products.ListLowStock(ctx)
	if err != nil {
		fail("low_stock", err)
	} else {
		for _, p := range products {
			bundle.LowStock = append(bundle.LowStock, LowStockAlert{
				ProductID:    p.ID,
				ProductName:  p.Name,
				CurrentStock: p.Stock,
				MinStock:     p.MinStock,
			})
		}
	}

	expiring, err := s.batches.ListExpiring(ctx, s.cfg.NearExpiryDays)
	if err != nil {
		fail("expiring", err)
	} else {
		for _, b := range expiring {
			bundle.Expiring = append(bundle.Expiring, ExpiryAlert{
				BatchID:         b.ID,
				ProductID:       b.ProductID,
				BatchNumber:     b.BatchNumber,
				ExpirationDate:  b.ExpirationDate,
				DaysUntilExpiry: DaysUntilExpiry(b.ExpirationDate, now),
				CurrentQuantity: b.CurrentQuantity,
				EstimatedLoss:   float64(b.CurrentQuantity) * b.PurchasePrice,
			})
		}
	}

	expired, err := s.batches.ListExpired(ctx)
	if err != nil {
		fail("expired", err)
	} else {
		for _, b := range expired {
			loss := float64(b.CurrentQuantity) * b.PurchasePrice
			bundle.Expired = append(bundle.Expired, ExpiryAlert{
				BatchID:         b.ID,
				ProductID:       b.ProductID,
				BatchNumber:     b.BatchNumber,
				ExpirationDate:  b.ExpirationDate,
				DaysUntilExpiry: DaysUntilExpiry(b.ExpirationDate, now),
				CurrentQuantity: b.CurrentQuantity,
				EstimatedLoss:   loss,
			})
			bundle.TotalLoss += loss
		}
	}

	pending, err := s.movements.ListPending(ctx)
	if err != nil {
		fail("pending_approvals", err)
	} else {
		s.attachActorNames(ctx, pending)
		bundle.PendingApprovals = pending
	}

	bundle.Summary = summarize(
		len(bundle.LowStock),
		len(bundle.Expiring),
		len(bundle.Expired),
		len(bundle.PendingApprovals),
	)
	return bundle, nil
}
