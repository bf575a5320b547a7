// Package catalog is the merchant directory: merchants, their menus and the scene codes that point at them.
package catalog

import (
	"context"
	"errors"

	"scan-order/models"
)

var (
	ErrMerchantNotFound = errors.New("merchant not found")
	ErrSceneNotFound    = errors.New("scene not found")
	ErrProductNotFound  = errors.New("product not found")
)

type Catalog interface {
	Merchants(ctx context.Context) ([]models.Merchant, error)
	Merchant(ctx context.Context, id string) (models.Merchant, error)
	Menu(ctx context.Context, merchantID string) ([]models.Product, error)
	Product(ctx context.Context, merchantID, productID string) (models.Product, error)
	Scene(ctx context.Context, code string) (models.Scene, error)
}

// IsNotFound reports whether err is one of the catalog's lookup misses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMerchantNotFound) || errors.Is(err, ErrSceneNotFound) || errors.Is(err, ErrProductNotFound)
}
