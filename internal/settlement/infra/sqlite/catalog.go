package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/marketplace-settlement/internal/checkout"
)

// The catalog reads run against the same database and therefore see the
// same committed state settlement does. Product and sale reads are never
// served from a cache: pricing correctness depends on current state.

var _ checkout.Catalog = (*Store)(nil)

func (s *Store) StorefrontBySlug(ctx context.Context, slug string) (*checkout.Storefront, error) {
	const q = `SELECT id, slug, name FROM storefronts WHERE slug = ?`

	var store checkout.Storefront
	err := s.db.QueryRowContext(ctx, q, slug).Scan(&store.ID, &store.Slug, &store.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: slug %q", checkout.ErrStorefrontNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get storefront %q: %w", slug, err)
	}
	return &store, nil
}

func (s *Store) ProductsByIDs(ctx context.Context, ids []string) ([]*checkout.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`
		SELECT id, storefront_id, name, price, stock, kind, service_mode, COALESCE(sale_json, '')
		FROM   products
		WHERE  id IN (%s)`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: batch get products: %w", err)
	}
	defer rows.Close()

	var products []*checkout.Product
	for rows.Next() {
		var (
			p     checkout.Product
			price string
			stock sql.NullInt64
			sale  string
		)
		if err := rows.Scan(&p.ID, &p.StorefrontID, &p.Name, &price, &stock, &p.Kind, &p.ServiceMode, &sale); err != nil {
			return nil, fmt.Errorf("sqlite: scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite: product %q has bad price %q: %w", p.ID, price, err)
		}
		if stock.Valid {
			v := stock.Int64
			p.Stock = &v
		}
		if sale != "" {
			p.Sale = &checkout.Sale{}
			if err := json.Unmarshal([]byte(sale), p.Sale); err != nil {
				return nil, fmt.Errorf("sqlite: decode sale of product %q: %w", p.ID, err)
			}
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate products: %w", err)
	}
	return products, nil
}

func (s *Store) CouponByCode(ctx context.Context, storefrontID, code string) (*checkout.Coupon, error) {
	const q = `
		SELECT storefront_id, code, active, type, percent, amount_off_kobo,
		       min_order_kobo, max_discount_kobo, usage_limit, usage_count, starts_at, ends_at
		FROM   coupons
		WHERE  storefront_id = ? AND code = ?`

	var (
		coupon   checkout.Coupon
		active   int
		startsAt string
		endsAt   string
	)
	err := s.db.QueryRowContext(ctx, q, storefrontID, code).Scan(
		&coupon.StorefrontID,
		&coupon.Code,
		&active,
		&coupon.Type,
		&coupon.Percent,
		&coupon.AmountOffKobo,
		&coupon.MinOrderKobo,
		&coupon.MaxDiscountKobo,
		&coupon.UsageLimit,
		&coupon.UsageCount,
		&startsAt,
		&endsAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get coupon %q: %w", code, err)
	}

	coupon.Active = active != 0
	if coupon.StartsAt, err = parseTime(startsAt); err != nil {
		return nil, err
	}
	if coupon.EndsAt, err = parseTime(endsAt); err != nil {
		return nil, err
	}
	return &coupon, nil
}
