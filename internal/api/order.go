package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OrderStatus is the canonical order state. Some endpoints send the
// status as a string and others as a numeric code, so it is normalized
// exactly once, here, when decoding.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusUnknown    OrderStatus = "unknown"
)

var orderStatusByCode = map[int64]OrderStatus{
	0: OrderStatusPending,
	1: OrderStatusProcessing,
	2: OrderStatusShipped,
	3: OrderStatusDelivered,
	4: OrderStatusCancelled,
}

var orderStatusNames = map[string]OrderStatus{
	"pending":    OrderStatusPending,
	"processing": OrderStatusProcessing,
	"shipped":    OrderStatusShipped,
	"delivered":  OrderStatusDelivered,
	"cancelled":  OrderStatusCancelled,
	"canceled":   OrderStatusCancelled,
}

func (s OrderStatus) String() string { return string(s) }

// UnmarshalJSON accepts both the string and the numeric wire forms.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if status, ok := orderStatusNames[strings.ToLower(strings.TrimSpace(name))]; ok {
			*s = status
		} else {
			*s = OrderStatusUnknown
		}
		return nil
	}
	var code int64
	if err := json.Unmarshal(data, &code); err == nil {
		if status, ok := orderStatusByCode[code]; ok {
			*s = status
		} else {
			*s = OrderStatusUnknown
		}
		return nil
	}
	return fmt.Errorf("order status is neither string nor number: %s", data)
}

// OrderItem is one line of an order-creation request or an order record.
type OrderItem struct {
	ProductID        int64             `json:"product_id"`
	Name             string            `json:"name"`
	Image            string            `json:"image,omitempty"`
	Price            int64             `json:"price"`
	Quantity         int               `json:"quantity"`
	SelectedVariants map[string]string `json:"selected_variants,omitempty"`
}

// ShippingAddress is the address shape the order endpoint expects.
type ShippingAddress struct {
	FullName   string `json:"full_name,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// CreateOrderRequest is the order-creation payload.
type CreateOrderRequest struct {
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	PaymentTiming   string          `json:"payment_timing,omitempty"`
}

// Order is an order record as returned by the API.
type Order struct {
	ID        string      `json:"id"`
	Items     []OrderItem `json:"items"`
	Total     int64       `json:"total"`
	Discount  int64       `json:"discount,omitempty"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// CreateOrder submits an order. The idempotency key must stay stable
// across retries of the same logical submission so a quick retry after a
// failure cannot double-create the order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*Order, error) {
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOrders fetches the authenticated user's order history.
func (c *Client) ListOrders(ctx context.Context, page, pageSize int) (*Page[Order], error) {
	var out Page[Order]
	if err := c.get(ctx, "/orders", pageQuery(page, pageSize), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches one order by ID.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var out Order
	if err := c.get(ctx, "/orders/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
