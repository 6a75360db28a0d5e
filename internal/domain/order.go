package domain

import "github.com/shopspring/decimal"

// OrderConfirmation is what the shop returns for an accepted checkout.
type OrderConfirmation struct {
	OrderID    string          `json:"order_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Message    string          `json:"message,omitempty"`
}

// Product is the subset of a catalog record the storefront needs.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	ImageURL string          `json:"image_url,omitempty"`
}
