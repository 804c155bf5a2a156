package api

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Product is a catalog product.
type Product struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Price       int64               `json:"price"`
	Stock       int                 `json:"stock"`
	ImageURL    string              `json:"image_url,omitempty"`
	CategoryID  int64               `json:"category_id,omitempty"`
	Variants    map[string][]string `json:"variants,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Category is a catalog category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// ListProducts fetches a catalog page, optionally filtered by category.
func (c *Client) ListProducts(ctx context.Context, page, pageSize int, categoryID int64) (*Page[Product], error) {
	q := pageQuery(page, pageSize)
	if categoryID > 0 {
		q.Set("category_id", fmt.Sprintf("%d", categoryID))
	}
	var out Page[Product]
	if err := c.get(ctx, "/products", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProduct fetches one product by ID.
func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var out Product
	if err := c.get(ctx, fmt.Sprintf("/products/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCategories fetches all categories.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.get(ctx, "/categories", url.Values{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
