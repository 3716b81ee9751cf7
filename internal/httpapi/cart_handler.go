package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/0355290812/petapp-cart/internal/cart"
	"github.com/0355290812/petapp-cart/internal/domain"
)

// CartStore is the in-process cart API the facade exposes to the app shell.
type CartStore interface {
	Cart() []domain.CartLine
	CartCount() int
	CartTotal() decimal.Decimal
	Loading() bool
	AddToCart(ctx context.Context, product domain.Product, quantity int) cart.Result
	UpdateItemQuantity(ctx context.Context, productID string, quantity int) cart.Result
	RemoveFromCart(ctx context.Context, productID string) cart.Result
	ClearCart(ctx context.Context) cart.Result
	SyncToAPI(ctx context.Context) error
}

type CartHandler struct {
	store CartStore
	log   *zap.Logger
}

func NewCartHandler(store CartStore, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{store: store, log: log}
}

type AddItemRequestDTO struct {
	Product  domain.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Items   []domain.CartLine `json:"items"`
	Count   int               `json:"count"`
	Total   decimal.Decimal   `json:"total"`
	Loading bool              `json:"loading"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Routes mounts the cart endpoints on a fresh router.
func (h *CartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetCart)
	r.Post("/items", h.AddItem)
	r.Put("/items/{product_id}", h.UpdateQuantity)
	r.Delete("/items/{product_id}", h.RemoveItem)
	r.Delete("/", h.ClearCart)
	r.Post("/sync", h.Sync)
	return r
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, http.StatusOK)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Product.ID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_product", "product.id is required")
		return
	}
	if req.Quantity < 0 {
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must not be negative")
		return
	}

	res := h.store.AddToCart(r.Context(), req.Product, req.Quantity)
	if !res.Success() {
		h.respondStoreError(w, res.Err)
		return
	}
	h.respondCart(w, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res := h.store.UpdateItemQuantity(r.Context(), productID, req.Quantity)
	if !res.Success() {
		h.respondStoreError(w, res.Err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	res := h.store.RemoveFromCart(r.Context(), productID)
	if !res.Success() {
		h.respondStoreError(w, res.Err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	res := h.store.ClearCart(r.Context())
	if !res.Success() {
		h.respondStoreError(w, res.Err)
		return
	}
	h.respondCart(w, http.StatusOK)
}

func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SyncToAPI(r.Context()); err != nil {
		switch {
		case errors.Is(err, cart.ErrNotAuthenticated):
			h.respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		case errors.Is(err, cart.ErrEmptyCart):
			h.respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
		default:
			h.respondError(w, http.StatusBadGateway, "sync_failed", err.Error())
		}
		return
	}
	h.respondCart(w, http.StatusOK)
}

func (h *CartHandler) respondCart(w http.ResponseWriter, status int) {
	items := h.store.Cart()
	if items == nil {
		items = []domain.CartLine{}
	}
	h.respondJSON(w, status, CartResponseDTO{
		Items:   items,
		Count:   h.store.CartCount(),
		Total:   h.store.CartTotal(),
		Loading: h.store.Loading(),
	})
}

// respondStoreError maps the store's local validation errors. Remote
// mirror failures never reach this path; they are invisible to the shell.
func (h *CartHandler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrStockExceeded):
		h.respondError(w, http.StatusConflict, "stock_exceeded", err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		h.respondError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *CartHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to encode response", zap.Error(err))
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
