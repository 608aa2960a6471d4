package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// MovementType classifies an inventory movement. Values follow the catalog
// used on pharmacy paperwork, hence the Spanish names on the wire.
type MovementType string

const (
	MovementCompra              MovementType = "compra"
	MovementVenta               MovementType = "venta"
	MovementAjusteEntrada       MovementType = "ajuste_entrada"
	MovementAjusteSalida        MovementType = "ajuste_salida"
	MovementDevolucionCliente   MovementType = "devolucion_cliente"
	MovementDevolucionProveedor MovementType = "devolucion_proveedor"
	MovementDano                MovementType = "dano"
	MovementVencimiento         MovementType = "vencimiento"
	MovementDonacion            MovementType = "donacion"
)

// Valid reports whether the movement type is part of the catalog
func (t MovementType) Valid() bool {
	switch t {
	case MovementCompra, MovementVenta, MovementAjusteEntrada, MovementAjusteSalida,
		MovementDevolucionCliente, MovementDevolucionProveedor, MovementDano,
		MovementVencimiento, MovementDonacion:
		return true
	}
	return false
}

// Inbound reports whether the type increases stock. Everything else decreases it.
func (t MovementType) Inbound() bool {
	switch t {
	case MovementCompra, MovementAjusteEntrada, MovementDevolucionCliente:
		return true
	}
	return false
}

// Signed converts a positive magnitude into the signed quantity stored on
// the ledger: positive for inbound types, negative for outbound.
func (t MovementType) Signed(quantity int) int {
	if t.Inbound() {
		return quantity
	}
	return -quantity
}

// Movement is an append-only ledger entry. Quantity is signed, and
// PreviousStock/NewStock snapshot the product total around the entry so the
// ledger can be audited and replayed.
type Movement struct {
	ID            string       `db:"id" json:"id"`
	ProductID     string       `db:"product_id" json:"product_id"`
	BatchID       *string      `db:"batch_id" json:"batch_id,omitempty"`
	MovementType  MovementType `db:"movement_type" json:"movement_type"`
	Quantity      int          `db:"quantity" json:"quantity"`
	PreviousStock int          `db:"previous_stock" json:"previous_stock"`
	NewStock      int          `db:"new_stock" json:"new_stock"`
	UnitCost      *float64     `db:"unit_cost" json:"unit_cost,omitempty"`
	TotalValue    *float64     `db:"total_value" json:"total_value,omitempty"`
	UserID        string       `db:"user_id" json:"user_id"`
	Approved      bool         `db:"approved" json:"approved"`
	ApprovedBy    *string      `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedDate  *time.Time   `db:"approved_date" json:"approved_date,omitempty"`
	MovementDate  time.Time    `db:"movement_date" json:"movement_date"`
	Reason        *string      `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`

	// Display names resolved from the user cache, not persisted.
	UserName       *string `db:"-" json:"user_name,omitempty"`
	ApprovedByName *string `db:"-" json:"approved_by_name,omitempty"`
}

// MovementRepository handles the inventory ledger
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create appends a ledger entry inside a transaction
func (r *MovementRepository) Create(ctx context.Context, tx *sqlx.Tx, movement *Movement) error {
	if movement.ID == "" {
		movement.ID = uuid.New().String()
	}

	query := `
		INSERT INTO inventory_movements (
			id, product_id, batch_id, movement_type, quantity, previous_stock,
			new_stock, unit_cost, total_value, user_id, approved, movement_date, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		movement.ID, movement.ProductID, movement.BatchID, movement.MovementType,
		movement.Quantity, movement.PreviousStock, movement.NewStock,
		movement.UnitCost, movement.TotalValue, movement.UserID,
		movement.Approved, movement.MovementDate, movement.Reason,
	).Scan(&movement.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a ledger entry by ID
func (r *MovementRepository) GetByID(ctx context.Context, id string) (*Movement, error) {
	var movement Movement
	query := `SELECT * FROM inventory_movements WHERE id = $1`
	if err := r.db.GetContext(ctx, &movement, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("movement")
		}
		return nil, err
	}
	return &movement, nil
}

// GetForUpdate gets a ledger entry with a row lock, within a transaction
func (r *MovementRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Movement, error) {
	var movement Movement
	query := `SELECT * FROM inventory_movements WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &movement, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("movement")
		}
		return nil, err
	}
	return &movement, nil
}

// ListByProduct lists a product's ledger entries, newest first
func (r *MovementRepository) ListByProduct(ctx context.Context, productID string, page, perPage int) ([]*Movement, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM inventory_movements WHERE product_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, productID); err != nil {
		return nil, 0, err
	}

	var movements []*Movement
	query := `
		SELECT * FROM inventory_movements
		WHERE product_id = $1
		ORDER BY movement_date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &movements, query, productID, perPage, (page-1)*perPage); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// ListPending lists ledger entries awaiting supervisor approval, oldest first
func (r *MovementRepository) ListPending(ctx context.Context) ([]*Movement, error) {
	var movements []*Movement
	query := `
		SELECT * FROM inventory_movements
		WHERE approved = false
		ORDER BY movement_date, created_at
	`
	if err := r.db.SelectContext(ctx, &movements, query); err != nil {
		return nil, err
	}
	return movements, nil
}

// Approve marks a ledger entry approved inside a transaction
func (r *MovementRepository) Approve(ctx context.Context, tx *sqlx.Tx, id, approvedBy string, approvedDate time.Time) error {
	query := `
		UPDATE inventory_movements
		SET approved = true, approved_by = $2, approved_date = $3
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query, id, approvedBy, approvedDate)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("movement")
	}
	return nil
}

// Delete removes a ledger entry inside a transaction. Only unapproved
// entries are ever deleted; the service reverses their stock effect first.
func (r *MovementRepository) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM inventory_movements WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("movement")
	}
	return nil
}
