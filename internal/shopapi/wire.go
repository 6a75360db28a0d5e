package shopapi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

// flexID accepts ids sent either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// wireID encodes a canonical id the way the shop expects it: numeric ids as
// numbers, anything else as a string.
func wireID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

type productRef struct {
	ID    flexID           `json:"id"`
	Price *decimal.Decimal `json:"price"`
}

// cartRow is a remote cart row in either of its historical shapes:
// {id, product:{id,...}, quantity} or {id, product_id, quantity}.
type cartRow struct {
	ID        flexID      `json:"id"`
	ProductID flexID      `json:"product_id"`
	Product   *productRef `json:"product"`
	Quantity  int         `json:"quantity"`
}

func (r cartRow) line() domain.CartLine {
	l := domain.CartLine{
		ProductID:    string(r.ProductID),
		Quantity:     r.Quantity,
		RemoteLineID: string(r.ID),
	}
	if r.Product != nil {
		if r.Product.ID != "" {
			l.ProductID = string(r.Product.ID)
		}
		l.UnitPriceSnapshot = r.Product.Price
	}
	return l
}

type addRequest struct {
	ProductID any `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type productRow struct {
	ID       flexID          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity *int            `json:"quantity"`
	Stock    *int            `json:"stock"`
	ImageURL string          `json:"image_url"`
}

func (p productRow) product() domain.Product {
	out := domain.Product{
		ID:       string(p.ID),
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
	}
	switch {
	case p.Stock != nil:
		out.Stock = *p.Stock
	case p.Quantity != nil:
		out.Stock = *p.Quantity
	}
	return out
}

type orderRow struct {
	OrderID    flexID          `json:"order_id"`
	ID         flexID          `json:"id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Message    string          `json:"message"`
	Detail     string          `json:"detail"`
}

func (o orderRow) confirmation() *domain.OrderConfirmation {
	id := o.OrderID
	if id == "" {
		id = o.ID
	}
	msg := o.Message
	if msg == "" {
		msg = o.Detail
	}
	return &domain.OrderConfirmation{OrderID: string(id), TotalPrice: o.TotalPrice, Message: msg}
}

type userRow struct {
	ID       flexID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
