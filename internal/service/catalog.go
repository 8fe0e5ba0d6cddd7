package service

import (
	"context"
	"errors"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidProduct is returned when a product create request is incomplete.
var ErrInvalidProduct = errors.New("invalid product")

// CatalogService exposes catalog reads and the admin-side stock mutations.
type CatalogService struct {
	store  store.Storage
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(st store.Storage) *CatalogService {
	return &CatalogService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// Products lists the whole catalog
func (s *CatalogService) Products(ctx context.Context) ([]models.Product, error) {
	return s.store.GetProducts(ctx)
}

// Product fetches one product
func (s *CatalogService) Product(ctx context.Context, productID int64) (*models.Product, error) {
	return s.store.GetProductByID(ctx, productID)
}

// ProductsByCategory lists products in one category
func (s *CatalogService) ProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	return s.store.GetProductsByCategory(ctx, categoryID)
}

// Categories lists all categories
func (s *CatalogService) Categories(ctx context.Context) ([]models.Category, error) {
	return s.store.GetCategories(ctx)
}

// CreateProduct adds a product. Stock is the provided content units; quantity
// is derived from them, never trusted from the request.
func (s *CatalogService) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.CategoryID == 0 || product.Name == "" || product.Price <= 0 || len(product.ContentUnits) == 0 {
		return ErrInvalidProduct
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return err
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name),
		zap.Int("quantity", product.Quantity))
	return nil
}

// Restock appends content units to a product's pool
func (s *CatalogService) Restock(ctx context.Context, productID int64, units []string) (*models.Product, error) {
	if len(units) == 0 {
		return nil, ErrInvalidProduct
	}

	product, err := s.store.RestockProduct(ctx, productID, units)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product restocked",
		zap.Int64("product_id", productID),
		zap.Int("added", len(units)),
		zap.Int("quantity", product.Quantity))
	return product, nil
}
