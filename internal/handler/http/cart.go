package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles the cart endpoints.
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler creates a cart handler.
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

// AddItemRequest is the body of POST /api/v1/cart/items. A missing quantity
// adds one unit.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,productid"`
	Quantity  int    `json:"quantity,omitempty" validate:"omitempty,gte=1,lte=999"`
}

// UpdateQuantityRequest is the body of PUT /api/v1/cart/items/{productId}.
// Zero or less removes the line.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"lte=999"`
}

// CheckoutResponse is returned by a successful checkout.
type CheckoutResponse struct {
	Order *domain.OrderConfirmation `json:"order"`
	Cart  CartView                  `json:"cart"`
}

func (h *CartHandler) writeResult(w http.ResponseWriter, res *engine.Result) {
	httputil.WriteData(w, http.StatusOK, cartView(res.Cart), warnings(res.Signals)...)
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	h.writeResult(w, s.Engine.Current(r.Context()))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if req.Quantity == 0 {
		req.Quantity = 1
	}

	s := sessionFromContext(r.Context())
	res, err := s.Engine.AddItem(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeResult(w, res)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if err := validator.Var(productID, "productid"); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var req UpdateQuantityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	res, err := s.Engine.UpdateQuantity(r.Context(), productID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeResult(w, res)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if err := validator.Var(productID, "productid"); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	res, err := s.Engine.RemoveItem(r.Context(), productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeResult(w, res)
}

// Refresh handles POST /api/v1/cart/refresh
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	h.writeResult(w, s.Engine.Refresh(r.Context()))
}

// Totals handles GET /api/v1/cart/totals
func (h *CartHandler) Totals(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	httputil.WriteData(w, http.StatusOK, s.Engine.Totals(r.Context(), nil))
}

// Checkout handles POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	res, err := s.Engine.Checkout(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, CheckoutResponse{Order: res.Order, Cart: cartView(res.Cart)}, warnings(res.Signals)...)
}
