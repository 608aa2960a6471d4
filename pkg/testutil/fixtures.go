package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProductFixture represents test product data
type ProductFixture struct {
	ID        string
	Name      string
	Stock     int
	Price     float64
	MinStock  int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID              string
	ProductID       string
	SupplierID      *string
	BatchNumber     string
	ExpirationDate  time.Time
	InitialQuantity int
	CurrentQuantity int
	PurchasePrice   float64
	SalePrice       float64
	Status          string
	CanBeSold       bool
	ReceiptDate     time.Time
	IsActive        bool
	CreatedAt       time.Time
}

// MovementFixture represents test ledger movement data
type MovementFixture struct {
	ID            string
	ProductID     string
	BatchID       *string
	MovementType  string
	Quantity      int
	PreviousStock int
	NewStock      int
	UserID        string
	Approved      bool
	MovementDate  time.Time
}

// CachedUserFixture represents test cached user data
type CachedUserFixture struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	RoleName  string
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*ProductFixture)) ProductFixture {
	seq := f.nextSeq()

	product := ProductFixture{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Paracetamol %dmg", 100+seq),
		Stock:     0,
		Price:     9.99,
		MinStock:  10,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&product)
	}

	return product
}

// WithStock sets the product stock
func WithStock(stock int) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.Stock = stock
	}
}

// WithMinStock sets the product low-stock threshold
func WithMinStock(minStock int) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.MinStock = minStock
	}
}

// Batch creates a batch fixture with defaults. ProductID must be set by the
// caller or through an option.
func (f *FixtureFactory) Batch(productID string, opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()

	batch := BatchFixture{
		ID:              uuid.New().String(),
		ProductID:       productID,
		BatchNumber:     fmt.Sprintf("LOT-%04d", seq),
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 100,
		CurrentQuantity: 100,
		PurchasePrice:   5.50,
		SalePrice:       9.99,
		Status:          "active",
		CanBeSold:       true,
		ReceiptDate:     time.Now(),
		IsActive:        true,
		CreatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(&batch)
	}

	return batch
}

// WithExpiration sets the batch expiration date
func WithExpiration(date time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ExpirationDate = date
	}
}

// WithQuantity sets both initial and current quantity
func WithQuantity(quantity int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.InitialQuantity = quantity
		b.CurrentQuantity = quantity
	}
}

// WithStatus sets the batch status
func WithStatus(status string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Status = status
	}
}

// Movement creates a ledger movement fixture with defaults
func (f *FixtureFactory) Movement(productID string, opts ...func(*MovementFixture)) MovementFixture {
	movement := MovementFixture{
		ID:            uuid.New().String(),
		ProductID:     productID,
		MovementType:  "compra",
		Quantity:      10,
		PreviousStock: 0,
		NewStock:      10,
		UserID:        uuid.New().String(),
		Approved:      false,
		MovementDate:  time.Now(),
	}

	for _, opt := range opts {
		opt(&movement)
	}

	return movement
}

// CachedUser creates a cached user fixture with defaults
func (f *FixtureFactory) CachedUser(opts ...func(*CachedUserFixture)) CachedUserFixture {
	seq := f.nextSeq()

	user := CachedUserFixture{
		ID:        uuid.New().String(),
		Email:     fmt.Sprintf("user%d@test.pharmaflow.io", seq),
		FirstName: fmt.Sprintf("Test%d", seq),
		LastName:  "User",
		RoleName:  "pharmacist",
	}

	for _, opt := range opts {
		opt(&user)
	}

	return user
}
