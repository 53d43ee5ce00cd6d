package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock_quantity"`
	Active      bool            `json:"active"`
	CategoryID  *int64          `json:"product_category_id,omitempty"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
	CreatedBy   string          `json:"created_by"`
	UpdatedAt   time.Time       `json:"updated_at"`
	UpdatedBy   string          `json:"updated_by"`
}

type Category struct {
	ID   int64  `json:"category_id"`
	Name string `json:"name"`
}

// ProductInput carries the writable product fields for Create.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock_quantity"`
	Active      bool            `json:"active"`
	CategoryID  *int64          `json:"product_category_id,omitempty"`
	ImageURL    string          `json:"image_url"`
}

// ProductPatch is a partial update; nil fields are left unchanged.
type ProductPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock_quantity,omitempty"`
	Active      *bool            `json:"active,omitempty"`
	CategoryID  *int64           `json:"product_category_id,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
}

func (in ProductInput) Validate() error {
	if in.Name == "" {
		return ErrInvalidProduct
	}
	if in.Price.IsNegative() || in.Stock < 0 {
		return ErrInvalidProduct
	}
	return nil
}

func (p ProductPatch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return ErrInvalidProduct
	}
	if p.Price != nil && p.Price.IsNegative() {
		return ErrInvalidProduct
	}
	if p.Stock != nil && *p.Stock < 0 {
		return ErrInvalidProduct
	}
	return nil
}

// CategoryMap indexes category names by id for display grouping.
func CategoryMap(cs []Category) map[int64]string {
	m := make(map[int64]string, len(cs))
	for _, c := range cs {
		m[c.ID] = c.Name
	}
	return m
}
