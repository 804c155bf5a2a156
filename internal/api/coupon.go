package api

import (
	"context"
	"time"
)

// Coupon is the server's description of a discount code.
type Coupon struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	DiscountType  string     `json:"discount_type"` // "percentage" or "fixed"
	DiscountValue int64      `json:"discount_value"`
	MinOrderValue int64      `json:"min_order_value,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidTo       *time.Time `json:"valid_to,omitempty"`
}

// CouponValidation is the server's verdict on a coupon for a given order
// amount. The discount is computed server-side only; the client never
// reimplements the discount rules.
type CouponValidation struct {
	IsValid        bool    `json:"is_valid"`
	Message        string  `json:"message"`
	Coupon         *Coupon `json:"coupon,omitempty"`
	DiscountAmount int64   `json:"discount_amount"`
	FinalAmount    int64   `json:"final_amount"`
}

type couponValidateRequest struct {
	Code        string `json:"code"`
	OrderAmount int64  `json:"order_amount"`
	UserID      string `json:"user_id,omitempty"`
}

// ValidateCoupon asks the server whether code applies to orderAmount for
// this user. An IsValid=false result is a business-rule rejection, not an
// error: the message is meant for the user.
func (c *Client) ValidateCoupon(ctx context.Context, code string, orderAmount int64, userID string) (*CouponValidation, error) {
	req := couponValidateRequest{
		Code:        code,
		OrderAmount: orderAmount,
		UserID:      userID,
	}
	var out CouponValidation
	if err := c.post(ctx, "/coupons/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
