package catalog

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/domain/catalog"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// ProductService manages the catalog and its stock levels
type ProductService struct {
	products catalog.ProductRepository
	logger   *zap.Logger
}

// NewProductService creates a new ProductService
func NewProductService(products catalog.ProductRepository, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{products: products, logger: logger}
}

// Create adds a product to the catalog
func (s *ProductService) Create(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	p, err := catalog.NewProduct(req.Name, req.Description, req.Price, catalog.Unit(req.Unit), req.Image, req.Category)
	if err != nil {
		return nil, err
	}
	if err := s.products.Save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Product created",
		zap.String("product_id", p.ID.String()),
		zap.String("name", p.Name))
	return ToProductResponse(p), nil
}

// Update changes a product's sale fields
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req *UpdateProductRequest) (*ProductResponse, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, shared.NewDomainError("INVALID_INPUT", "Product name cannot be empty")
		}
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, shared.NewDomainError("INVALID_INPUT", "Product price cannot be negative")
		}
		p.Price = *req.Price
	}
	if req.Image != nil {
		p.Image = *req.Image
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.IsActive != nil {
		if *req.IsActive {
			p.Activate()
		} else {
			p.Deactivate()
		}
	} else {
		p.IncrementVersion()
	}

	if err := s.products.Save(ctx, p); err != nil {
		return nil, err
	}
	return ToProductResponse(p), nil
}

// Restock sets a product's available stock and low-stock threshold
func (s *ProductService) Restock(ctx context.Context, id uuid.UUID, req *RestockRequest) (*ProductResponse, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.SetStock(req.Available, req.MinThreshold); err != nil {
		return nil, err
	}
	if err := s.products.Save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Product restocked",
		zap.String("product_id", p.ID.String()),
		zap.String("available", req.Available.String()))
	return ToProductResponse(p), nil
}

// GetByID returns one product
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*ProductResponse, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToProductResponse(p), nil
}

// List returns products page by page
func (s *ProductService) List(ctx context.Context, filter shared.Filter) (*shared.Paginated[ProductResponse], error) {
	products, total, err := s.products.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, *ToProductResponse(&products[i]))
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}
