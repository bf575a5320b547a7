package services

import (
	"context"
	"errors"

	"scan-order/catalog"
	"scan-order/models"

	"go.uber.org/zap"
)

// Resolver turns a scanned scene code into a StoreContext. It has no side effects.
type Resolver struct {
	catalog catalog.Catalog
	log     *zap.Logger
}

func NewResolver(c catalog.Catalog, log *zap.Logger) *Resolver {
	return &Resolver{catalog: c, log: log.Named("resolver")}
}

// Resolve looks the code up as an opaque key. Table scenes default to dine-in, store scenes to pick-up.
func (r *Resolver) Resolve(ctx context.Context, sceneCode string) (models.StoreContext, error) {
	if sceneCode == "" {
		return models.StoreContext{}, &ResolutionError{SceneCode: sceneCode, Err: errors.New("empty scene code")}
	}
	scene, err := r.catalog.Scene(ctx, sceneCode)
	if err != nil {
		r.log.Info("scene lookup failed", zap.String("scene", sceneCode), zap.Error(err))
		return models.StoreContext{}, &ResolutionError{SceneCode: sceneCode, Err: err}
	}
	merchant, err := r.catalog.Merchant(ctx, scene.MerchantID)
	if err != nil {
		r.log.Warn("scene points at missing merchant",
			zap.String("scene", sceneCode), zap.String("merchant_id", scene.MerchantID), zap.Error(err))
		return models.StoreContext{}, &ResolutionError{SceneCode: sceneCode, Err: err}
	}
	return buildStoreContext(scene, merchant), nil
}

func buildStoreContext(scene models.Scene, m models.Merchant) models.StoreContext {
	sc := models.StoreContext{
		ID:          m.ID,
		Name:        m.Name,
		Address:     m.Address,
		TableNumber: scene.TableNumber,
		AllowPay:    !scene.PayDisabled,
		Theme: models.Theme{
			Primary:   m.Theme.Primary,
			Secondary: m.Theme.Secondary,
		},
	}
	if scene.TableNumber != "" {
		sc.DefaultOrderType = models.OrderTypeDineIn
		sc.AllowOrder = m.Features.DineIn && !scene.OrderingPaused
	} else {
		sc.DefaultOrderType = models.OrderTypePickUp
		sc.AllowOrder = m.Features.Pickup && !scene.OrderingPaused
	}
	return sc
}
