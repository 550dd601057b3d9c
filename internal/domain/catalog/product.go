package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/shared"
)

// Unit represents the unit a product is sold in
type Unit string

const (
	UnitKg    Unit = "kg"
	UnitPiece Unit = "piece"
	UnitDozen Unit = "dozen"
	UnitPack  Unit = "pack"
)

// IsValid checks if the unit is a known value
func (u Unit) IsValid() bool {
	switch u {
	case UnitKg, UnitPiece, UnitDozen, UnitPack:
		return true
	}
	return false
}

// Stock holds the stock counters for a product.
// Available and Reserved sum to the physical on-hand quantity: reserving
// moves quantity from Available to Reserved, releasing moves it back.
// Neither counter may go negative.
type Stock struct {
	Available    decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"available"`
	Reserved     decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"reserved"`
	MinThreshold decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"min_threshold"`
}

// IsLow reports whether available stock has fallen to or below the threshold
func (s Stock) IsLow() bool {
	return s.MinThreshold.GreaterThan(decimal.Zero) && s.Available.LessThanOrEqual(s.MinThreshold)
}

// Product is a catalog item customers can order
type Product struct {
	shared.BaseAggregateRoot
	Name        string          `gorm:"size:200;not null"`
	Description string          `gorm:"size:1000"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Unit        Unit            `gorm:"size:20;not null"`
	Image       string          `gorm:"size:500"`
	Category    string          `gorm:"size:100;index"`
	IsActive    bool            `gorm:"not null;default:true"`
	Stock       Stock           `gorm:"embedded;embeddedPrefix:stock_"`
}

// TableName returns the database table name
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new product after validating its fields
func NewProduct(name, description string, price decimal.Decimal, unit Unit, image, category string) (*Product, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Product name is required")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Product price cannot be negative")
	}
	if !unit.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Unknown product unit")
	}

	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Description:       description,
		Price:             price,
		Unit:              unit,
		Image:             image,
		Category:          category,
		IsActive:          true,
	}, nil
}

// Deactivate removes the product from sale without deleting it
func (p *Product) Deactivate() {
	p.IsActive = false
	p.IncrementVersion()
}

// Activate puts the product back on sale
func (p *Product) Activate() {
	p.IsActive = true
	p.IncrementVersion()
}

// SetStock replaces the available stock and threshold, used by admin restock
func (p *Product) SetStock(available, minThreshold decimal.Decimal) error {
	if available.IsNegative() || minThreshold.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Stock quantities cannot be negative")
	}
	p.Stock.Available = available
	p.Stock.MinThreshold = minThreshold
	p.IncrementVersion()
	return nil
}

// CanFulfill reports whether the available stock covers the requested quantity
func (p *Product) CanFulfill(qty decimal.Decimal) bool {
	return p.Stock.Available.GreaterThanOrEqual(qty)
}
