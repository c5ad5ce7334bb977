package pricing

import (
	"context"
	"errors"
	"time"
)

type DiscountType string

const (
	TypePercentage DiscountType = "PERCENTAGE"
	TypeFixed      DiscountType = "FIXED"
)

var (
	ErrCodeNotFound      = errors.New("discount code not found")
	ErrCodeInactive      = errors.New("discount code is not active")
	ErrCodeExpired       = errors.New("discount code has expired")
	ErrCodeExhausted     = errors.New("discount code usage limit reached")
	ErrCodeNotApplicable = errors.New("discount code does not apply to these products")
)

// CodeRejected reports whether err is a rejection of the submitted
// code, as opposed to an infrastructure failure looking it up.
func CodeRejected(err error) bool {
	return errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrCodeInactive) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeExhausted) ||
		errors.Is(err, ErrCodeNotApplicable)
}

// DiscountCode is administered externally; this package only reads it.
// The uses counter is incremented by order materialization, never here.
type DiscountCode struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	Type        DiscountType `json:"discount_type"`
	Amount      int          `json:"discount_amount"`
	Active      bool         `json:"is_active"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Limit       *int         `json:"limit,omitempty"`
	Uses        int          `json:"uses"`
	AllProducts bool         `json:"all_products"`
	ProductIDs  []string     `json:"product_ids,omitempty"`
}

// CodeStore looks up discount codes by their public code string.
type CodeStore interface {
	GetByCode(ctx context.Context, code string) (*DiscountCode, error)
}

// Usable reports whether the code can be applied to the given products
// right now. It returns the first failing condition as a sentinel error
// so callers can tell the shopper why the code was rejected.
func (d *DiscountCode) Usable(productIDs []string, now time.Time) error {
	if !d.Active {
		return ErrCodeInactive
	}
	if !d.AllProducts && !d.coversAll(productIDs) {
		return ErrCodeNotApplicable
	}
	if d.Limit != nil && d.Uses >= *d.Limit {
		return ErrCodeExhausted
	}
	if d.ExpiresAt != nil && !d.ExpiresAt.After(now) {
		return ErrCodeExpired
	}
	return nil
}

func (d *DiscountCode) coversAll(productIDs []string) bool {
	if len(productIDs) == 0 {
		return false
	}
	covered := make(map[string]bool, len(d.ProductIDs))
	for _, id := range d.ProductIDs {
		covered[id] = true
	}
	for _, id := range productIDs {
		if !covered[id] {
			return false
		}
	}
	return true
}
