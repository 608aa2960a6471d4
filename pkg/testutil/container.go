// Package testutil provides testing utilities for PharmaFlow backend
// services. It includes testcontainers for PostgreSQL, a schema bootstrap
// for the inventory tables, mock factories, and common test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "pharmaflow_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "pharmaflow_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateInventorySchema creates the inventory service tables. The check
// constraints mirror the service-level invariants so a bug in the service
// surfaces as a constraint violation instead of silent corruption.
func (c *PostgresContainer) CreateInventorySchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(200) NOT NULL,
			stock INTEGER NOT NULL DEFAULT 0,
			price NUMERIC(12,2) NOT NULL DEFAULT 0,
			min_stock INTEGER NOT NULL DEFAULT 10,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_non_negative CHECK (stock >= 0)
		);

		CREATE TABLE IF NOT EXISTS batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_id UUID NOT NULL REFERENCES products(id),
			supplier_id UUID,
			batch_number VARCHAR(100) NOT NULL,
			manufacturing_date DATE,
			expiration_date DATE NOT NULL,
			initial_quantity INTEGER NOT NULL,
			current_quantity INTEGER NOT NULL,
			purchase_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			sale_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			location VARCHAR(100),
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			can_be_sold BOOLEAN NOT NULL DEFAULT TRUE,
			receipt_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT quantity_non_negative CHECK (current_quantity >= 0),
			CONSTRAINT quantity_within_initial CHECK (current_quantity <= initial_quantity),
			CONSTRAINT initial_quantity_positive CHECK (initial_quantity > 0),
			CONSTRAINT status_valid CHECK (status IN ('active', 'near_expiry', 'expired', 'depleted', 'blocked'))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS batches_product_batch_number
			ON batches (product_id, batch_number) WHERE is_active;
		CREATE INDEX IF NOT EXISTS batches_fifo
			ON batches (product_id, expiration_date, created_at);

		CREATE TABLE IF NOT EXISTS inventory_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_id UUID NOT NULL REFERENCES products(id),
			batch_id UUID REFERENCES batches(id),
			movement_type VARCHAR(30) NOT NULL,
			quantity INTEGER NOT NULL,
			previous_stock INTEGER NOT NULL,
			new_stock INTEGER NOT NULL,
			unit_cost NUMERIC(12,2),
			total_value NUMERIC(14,2),
			user_id UUID NOT NULL,
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			approved_by UUID,
			approved_date TIMESTAMPTZ,
			movement_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reason VARCHAR(500),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT new_stock_non_negative CHECK (new_stock >= 0),
			CONSTRAINT stock_arithmetic CHECK (new_stock = previous_stock + quantity),
			CONSTRAINT movement_type_valid CHECK (movement_type IN (
				'compra', 'venta', 'ajuste_entrada', 'ajuste_salida',
				'devolucion_cliente', 'devolucion_proveedor', 'dano',
				'vencimiento', 'donacion'
			))
		);
		CREATE INDEX IF NOT EXISTS movements_product_date
			ON inventory_movements (product_id, movement_date DESC);
		CREATE INDEX IF NOT EXISTS movements_pending
			ON inventory_movements (movement_date) WHERE NOT approved;

		CREATE TABLE IF NOT EXISTS user_cache (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			first_name VARCHAR(100) NOT NULL DEFAULT '',
			last_name VARCHAR(100) NOT NULL DEFAULT '',
			role_name VARCHAR(100) NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create inventory schema: %w", err)
	}

	return nil
}

// TruncateInventoryTables empties all inventory tables between tests
func (c *PostgresContainer) TruncateInventoryTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE inventory_movements, batches, products, user_cache CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate inventory tables: %w", err)
	}
	return nil
}
