package api

import (
	"context"
	"fmt"
)

// Address is a saved shipping address from the user's address book.
type Address struct {
	ID           int64  `json:"id,omitempty"`
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
	IsDefault    bool   `json:"is_default,omitempty"`
}

// Street renders the single-line street the order endpoint wants:
// line 1, plus ", " and line 2 when a second line is present.
func (a Address) Street() string {
	if a.AddressLine2 == "" {
		return a.AddressLine1
	}
	return a.AddressLine1 + ", " + a.AddressLine2
}

// ListAddresses fetches the user's saved addresses.
func (c *Client) ListAddresses(ctx context.Context) ([]Address, error) {
	var out []Address
	if err := c.get(ctx, "/addresses", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAddress saves a new address and returns it with its assigned ID.
func (c *Client) CreateAddress(ctx context.Context, addr Address) (*Address, error) {
	var out Address
	if err := c.post(ctx, "/addresses", addr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAddress fetches one saved address by ID.
func (c *Client) GetAddress(ctx context.Context, id int64) (*Address, error) {
	var out Address
	if err := c.get(ctx, fmt.Sprintf("/addresses/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
