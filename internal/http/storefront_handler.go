package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Storefront is the service behind the handlers.
type Storefront interface {
	Catalog(ctx context.Context) ([]domain.CatalogItem, error)
	Cart(ctx context.Context, sessionID string) session.Cart
	AddItem(ctx context.Context, sessionID string, itemID int64) (session.Cart, error)
	RemoveItem(ctx context.Context, sessionID string, itemID int64) (session.Cart, error)
	Checkout(ctx context.Context, sessionID string) (*domain.Purchase, error)
	PurchaseHistory(ctx context.Context, sessionID string) ([]domain.Purchase, error)
	Purchase(ctx context.Context, sessionID, purchaseID string) (*domain.Purchase, error)
}

// CheckoutObserver counts checkout outcomes.
type CheckoutObserver interface {
	ObserveCheckout(outcome string)
}

type StorefrontHandler struct {
	store    Storefront
	observer CheckoutObserver
	timeout  time.Duration
	logger   *zap.Logger
}

func NewStorefrontHandler(store Storefront, observer CheckoutObserver, timeout time.Duration, logger *zap.Logger) *StorefrontHandler {
	return &StorefrontHandler{
		store:    store,
		observer: observer,
		timeout:  timeout,
		logger:   logger,
	}
}

type AddItemRequestDTO struct {
	ID int64 `json:"id"`
}

type CartResponse struct {
	Items      []domain.CartLineItem `json:"items"`
	TotalItems int                   `json:"totalItems"`
	TotalPrice decimal.Decimal       `json:"totalPrice"`
}

type CatalogResponse struct {
	Items []domain.CatalogItem `json:"items"`
}

type PurchasesResponse struct {
	Purchases []domain.Purchase `json:"purchases"`
}

func newCartResponse(c session.Cart) CartResponse {
	items := c.Items
	if items == nil {
		items = []domain.CartLineItem{}
	}
	return CartResponse{Items: items, TotalItems: c.TotalItems, TotalPrice: c.TotalPrice}
}

// GET /api/v1/catalog
func (h *StorefrontHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.store.Catalog(ctx)
	if err != nil {
		h.logger.Error("failed to load catalog", zap.String("request_id", getRequestID(r.Context())), zap.Error(err))
		handleServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.CatalogItem{}
	}

	respondJSON(w, http.StatusOK, CatalogResponse{Items: items})
}

// GET /api/v1/cart
func (h *StorefrontHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing session")
		return
	}

	respondJSON(w, http.StatusOK, newCartResponse(h.store.Cart(ctx, sessionID)))
}

// POST /api/v1/cart/items
func (h *StorefrontHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing session")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "id must be positive")
		return
	}

	cart, err := h.store.AddItem(ctx, sessionID, req.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, newCartResponse(cart))
}

// DELETE /api/v1/cart/items/{id}
func (h *StorefrontHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing session")
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || itemID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "id must be a positive integer")
		return
	}

	cart, err := h.store.RemoveItem(ctx, sessionID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, newCartResponse(cart))
}

// POST /api/v1/checkout
func (h *StorefrontHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing session")
		return
	}

	purchase, err := h.store.Checkout(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrCheckoutInProgress) {
			h.observe("conflict")
		} else {
			h.observe("failed")
		}
		h.logger.Warn("checkout failed",
			zap.String("session_id", sessionID),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		handleServiceError(w, err)
		return
	}

	h.observe("success")
	respondJSON(w, http.StatusCreated, purchase)
}

// GET /api/v1/purchases
func (h *StorefrontHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing session")
		return
	}

	purchases, err := h.store.PurchaseHistory(ctx, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if purchases == nil {
		purchases = []domain.Purchase{}
	}

	respondJSON(w, http.StatusOK, PurchasesResponse{Purchases: purchases})
}

// GET /api/v1/purchases/{id}
func (h *StorefrontHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing session")
		return
	}

	purchase, err := h.store.Purchase(ctx, sessionID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, purchase)
}

func (h *StorefrontHandler) observe(outcome string) {
	if h.observer != nil {
		h.observer.ObserveCheckout(outcome)
	}
}
