package catalog

import (
	"context"
	"errors"
	"fmt"

	"scan-order/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres reads the directory from the merchants, scenes and menu_items tables.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const merchantColumns = `id, name, slogan, logo, mascot, address, theme_primary, theme_secondary, theme_border_radius,
	feature_dine_in, feature_pickup, feature_delivery, feature_express, feature_topup, feature_coupons`

func scanMerchant(row pgx.Row) (models.Merchant, error) {
	var m models.Merchant
	err := row.Scan(&m.ID, &m.Name, &m.Slogan, &m.Logo, &m.Mascot, &m.Address,
		&m.Theme.Primary, &m.Theme.Secondary, &m.Theme.BorderRadius,
		&m.Features.DineIn, &m.Features.Pickup, &m.Features.Delivery,
		&m.Features.Express, &m.Features.TopUp, &m.Features.Coupons)
	return m, err
}

func (p *Postgres) Merchants(ctx context.Context) ([]models.Merchant, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+merchantColumns+` FROM merchants ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	defer rows.Close()
	var out []models.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) Merchant(ctx context.Context, id string) (models.Merchant, error) {
	m, err := scanMerchant(p.pool.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Merchant{}, fmt.Errorf("%w: %s", ErrMerchantNotFound, id)
	}
	if err != nil {
		return models.Merchant{}, fmt.Errorf("get merchant %s: %w", id, err)
	}
	return m, nil
}

const productColumns = `id, name, price::text, COALESCE(vip_price::text, ''), image, description, category, specs`

func scanProduct(row pgx.Row) (models.Product, error) {
	var (
		p          models.Product
		price, vip string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &vip, &p.Image, &p.Description, &p.Category, &p.Specs); err != nil {
		return models.Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return models.Product{}, fmt.Errorf("product %s price %q: %w", p.ID, price, err)
	}
	if vip != "" {
		v, err := decimal.NewFromString(vip)
		if err != nil {
			return models.Product{}, fmt.Errorf("product %s vip_price %q: %w", p.ID, vip, err)
		}
		p.VIPPrice = &v
	}
	return p, nil
}

func (p *Postgres) Menu(ctx context.Context, merchantID string) ([]models.Product, error) {
	if _, err := p.Merchant(ctx, merchantID); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+productColumns+` FROM menu_items
		WHERE merchant_id = $1 ORDER BY sort_order, id`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list menu %s: %w", merchantID, err)
	}
	defer rows.Close()
	out := []models.Product{}
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prod)
	}
	return out, rows.Err()
}

func (p *Postgres) Product(ctx context.Context, merchantID, productID string) (models.Product, error) {
	prod, err := scanProduct(p.pool.QueryRow(ctx, `
		SELECT `+productColumns+` FROM menu_items
		WHERE merchant_id = $1 AND id = $2`, merchantID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Product{}, fmt.Errorf("%w: %s/%s", ErrProductNotFound, merchantID, productID)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("get product %s/%s: %w", merchantID, productID, err)
	}
	return prod, nil
}

func (p *Postgres) Scene(ctx context.Context, code string) (models.Scene, error) {
	var sc models.Scene
	err := p.pool.QueryRow(ctx, `
		SELECT code, merchant_id, table_no, ordering_paused, pay_disabled
		FROM scenes WHERE code = $1`, code,
	).Scan(&sc.Code, &sc.MerchantID, &sc.TableNumber, &sc.OrderingPaused, &sc.PayDisabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Scene{}, fmt.Errorf("%w: %q", ErrSceneNotFound, code)
	}
	if err != nil {
		return models.Scene{}, fmt.Errorf("get scene %q: %w", code, err)
	}
	return sc, nil
}
