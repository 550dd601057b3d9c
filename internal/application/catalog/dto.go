package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/catalog"
)

// CreateProductRequest creates a catalog product
type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required,max=200"`
	Description string          `json:"description" binding:"max=1000"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Unit        string          `json:"unit" binding:"required,oneof=kg piece dozen pack"`
	Image       string          `json:"image" binding:"max=500"`
	Category    string          `json:"category" binding:"max=100"`
}

// UpdateProductRequest updates a catalog product's sale fields
type UpdateProductRequest struct {
	Name        *string          `json:"name" binding:"omitempty,max=200"`
	Description *string          `json:"description" binding:"omitempty,max=1000"`
	Price       *decimal.Decimal `json:"price"`
	Image       *string          `json:"image" binding:"omitempty,max=500"`
	Category    *string          `json:"category" binding:"omitempty,max=100"`
	IsActive    *bool            `json:"is_active"`
}

// RestockRequest sets a product's stock level and low threshold
type RestockRequest struct {
	Available    decimal.Decimal `json:"available" binding:"required"`
	MinThreshold decimal.Decimal `json:"min_threshold"`
}

// StockResponse is the stock view embedded in product responses
type StockResponse struct {
	Available    decimal.Decimal `json:"available"`
	Reserved     decimal.Decimal `json:"reserved"`
	MinThreshold decimal.Decimal `json:"min_threshold"`
	IsLow        bool            `json:"is_low"`
}

// ProductResponse is the API representation of a product
type ProductResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category,omitempty"`
	IsActive    bool            `json:"is_active"`
	Stock       StockResponse   `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ToProductResponse maps a product aggregate to its API representation
func ToProductResponse(p *catalog.Product) *ProductResponse {
	return &ProductResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Unit:        string(p.Unit),
		Image:       p.Image,
		Category:    p.Category,
		IsActive:    p.IsActive,
		Stock: StockResponse{
			Available:    p.Stock.Available,
			Reserved:     p.Stock.Reserved,
			MinThreshold: p.Stock.MinThreshold,
			IsLow:        p.Stock.IsLow(),
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
