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

// Product represents a sellable pharmacy product. Stock is a denormalized
// running total: it always equals the sum of current_quantity across the
// product's non-deleted batches, and only ledger operations may change it.
type Product struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Stock     int       `db:"stock" json:"stock"`
	Price     float64   `db:"price" json:"price"`
	MinStock  int       `db:"min_stock" json:"min_stock"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProductRepository handles product persistence
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create creates a new product
func (r *ProductRepository) Create(ctx context.Context, product *Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}

	query := `
		INSERT INTO products (id, name, stock, price, min_stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		product.ID, product.Name, product.Stock, product.Price,
		product.MinStock, product.IsActive,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	var product Product
	query := `SELECT * FROM products WHERE id = $1 AND is_active = true`
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &product, nil
}

// GetForUpdate gets a product by ID with a row lock, within a transaction.
// Every stock mutation acquires this lock first so that read-modify-write of
// the running total is serialized per product.
func (r *ProductRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Product, error) {
	var product Product
	query := `SELECT * FROM products WHERE id = $1 AND is_active = true FOR UPDATE`
	if err := tx.GetContext(ctx, &product, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &product, nil
}

// List lists active products with pagination
func (r *ProductRepository) List(ctx context.Context, page, perPage int) ([]*Product, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM products WHERE is_active = true`); err != nil {
		return nil, 0, err
	}

	var products []*Product
	query := `
		SELECT * FROM products
		WHERE is_active = true
		ORDER BY name
		LIMIT $1 OFFSET $2
	`
	if err := r.db.SelectContext(ctx, &products, query, perPage, (page-1)*perPage); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Update updates a product's descriptive fields. Stock is deliberately not
// updatable here; only the ledger touches it.
func (r *ProductRepository) Update(ctx context.Context, product *Product) error {
	query := `
		UPDATE products SET name = $2, price = $3, min_stock = $4, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`
	result, err := r.db.ExecContext(ctx, query, product.ID, product.Name, product.Price, product.MinStock)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// SetStock sets the product stock inside a transaction
func (r *ProductRepository) SetStock(ctx context.Context, tx *sqlx.Tx, id string, stock int) error {
	query := `UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, id, stock)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// SoftDelete marks a product inactive
func (r *ProductRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE products SET is_active = false, updated_at = NOW() WHERE id = $1 AND is_active = true`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// ListLowStock lists active products at or below their low-stock threshold
func (r *ProductRepository) ListLowStock(ctx context.Context) ([]*Product, error) {
	var products []*Product
	query := `
		SELECT * FROM products
		WHERE is_active = true AND stock <= min_stock
		ORDER BY stock, name
	`
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, err
	}
	return products, nil
}
