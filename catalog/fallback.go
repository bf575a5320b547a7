package catalog

import (
	"context"
	"errors"

	"scan-order/models"

	"go.uber.org/zap"
)

// Fallback serves from Primary and switches to Secondary when Primary fails.
// Lookup misses from Primary are returned as-is; only backend failures fall back.
type Fallback struct {
	Primary   Catalog
	Secondary Catalog
	Log       *zap.Logger
}

func NewFallback(primary, secondary Catalog, log *zap.Logger) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, Log: log.Named("catalog")}
}

func (f *Fallback) shouldFallback(ctx context.Context, op string, err error) bool {
	if err == nil || IsNotFound(err) || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	f.Log.Warn("catalog backend failed, serving static directory", zap.String("op", op), zap.Error(err))
	return true
}

func (f *Fallback) Merchants(ctx context.Context) ([]models.Merchant, error) {
	out, err := f.Primary.Merchants(ctx)
	if f.shouldFallback(ctx, "merchants", err) {
		return f.Secondary.Merchants(ctx)
	}
	return out, err
}

func (f *Fallback) Merchant(ctx context.Context, id string) (models.Merchant, error) {
	out, err := f.Primary.Merchant(ctx, id)
	if f.shouldFallback(ctx, "merchant", err) {
		return f.Secondary.Merchant(ctx, id)
	}
	return out, err
}

func (f *Fallback) Menu(ctx context.Context, merchantID string) ([]models.Product, error) {
	out, err := f.Primary.Menu(ctx, merchantID)
	if f.shouldFallback(ctx, "menu", err) {
		return f.Secondary.Menu(ctx, merchantID)
	}
	return out, err
}

func (f *Fallback) Product(ctx context.Context, merchantID, productID string) (models.Product, error) {
	out, err := f.Primary.Product(ctx, merchantID, productID)
	if f.shouldFallback(ctx, "product", err) {
		return f.Secondary.Product(ctx, merchantID, productID)
	}
	return out, err
}

func (f *Fallback) Scene(ctx context.Context, code string) (models.Scene, error) {
	out, err := f.Primary.Scene(ctx, code)
	if f.shouldFallback(ctx, "scene", err) {
		return f.Secondary.Scene(ctx, code)
	}
	return out, err
}
