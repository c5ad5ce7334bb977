package pricing

import (
	"context"
	"fmt"
	"math"
	"time"
)

// minAmount is the smallest amount the payment processor accepts.
// Discounts never resolve below it.
const minAmount = 1

// Price returns the amount in cents to charge for a product with the
// given discount applied. A nil code means full price. An unknown
// discount type is a programming error and panics.
func Price(priceInCents int, code *DiscountCode) int {
	if code == nil {
		return priceInCents
	}

	var discounted float64
	switch code.Type {
	case TypePercentage:
		discounted = float64(priceInCents) - float64(priceInCents)*float64(code.Amount)/100
	case TypeFixed:
		discounted = float64(priceInCents) - float64(code.Amount)
	default:
		panic(fmt.Sprintf("pricing: unknown discount type %q", code.Type))
	}

	amount := int(math.Ceil(discounted))
	if amount < minAmount {
		return minAmount
	}
	return amount
}

// Resolver validates discount codes against a store and prices
// checkouts with them.
type Resolver struct {
	codes CodeStore
	now   func() time.Time
}

func NewResolver(codes CodeStore) *Resolver {
	return &Resolver{codes: codes, now: time.Now}
}

// Resolve looks up and validates a discount code for the given product
// set. An empty code returns (nil, nil): no code supplied is not an
// error. A supplied but unusable code returns the eligibility error so
// the checkout UI can prompt the shopper instead of silently charging
// full price.
func (r *Resolver) Resolve(ctx context.Context, code string, productIDs []string) (*DiscountCode, error) {
	if code == "" {
		return nil, nil
	}

	d, err := r.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrCodeNotFound
	}
	if err := d.Usable(productIDs, r.now()); err != nil {
		return nil, err
	}
	return d, nil
}
