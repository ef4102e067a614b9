package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"loyalty-api/internal/auth"
	"loyalty-api/internal/loyalty"
	"loyalty-api/internal/models"
	"loyalty-api/internal/service"
	"loyalty-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	tokens      *auth.Manager
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service, tokens *auth.Manager) *Handler {
	return NewHandlerWithOptions(svc, tokens, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, tokens *auth.Manager, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		tokens:      tokens,
		maxBodySize: opts.MaxBodySize,
	}
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Email = validation.SanitizeString(req.Email)
	req.Name = validation.SanitizeString(req.Name)

	user, err := h.service.Register(req)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondAuth(w, http.StatusCreated, user)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Email = validation.SanitizeString(req.Email)

	user, err := h.service.Login(req)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondAuth(w, http.StatusOK, user)
}

func (h *Handler) respondAuth(w http.ResponseWriter, status int, user models.User) {
	token, err := h.tokens.IssueToken(user)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.respondJSON(w, status, models.AuthResponse{Token: token, User: user})
}

// ListProducts handles GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if products == nil {
		products = []models.Product{}
	}
	h.respondJSON(w, http.StatusOK, products)
}

// UpsertProduct handles POST /products (admin)
func (h *Handler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	var req models.Product
	if !h.decode(w, r, &req) {
		return
	}

	req.ID = validation.SanitizeString(req.ID)
	req.Name = validation.SanitizeString(req.Name)
	req.Category = validation.SanitizeString(req.Category)

	if err := h.service.UpsertProduct(r.Context(), req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, req)
}

// DeleteProduct handles DELETE /products/{product_id} (admin)
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID := validation.SanitizeString(chi.URLParam(r, "product_id"))

	if err := h.service.DeleteProduct(r.Context(), productID); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	for i := range req.Items {
		req.Items[i].ProductID = validation.SanitizeString(req.Items[i].ProductID)
	}

	order, err := h.service.CreateOrder(r.Context(), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if orders == nil {
		orders = []models.Order{}
	}
	h.respondJSON(w, http.StatusOK, orders)
}

// GetWallet handles GET /wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.service.GetWallet(auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, wallet)
}

// CreditWallet handles POST /wallet/credit
func (h *Handler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	var req models.WalletCreditRequest
	if !h.decode(w, r, &req) {
		return
	}

	wallet, err := h.service.CreditWallet(auth.UserIDFromContext(r.Context()), req.Amount)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, wallet)
}

// decode reads a size-limited JSON body into dest, responding with a 400 on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}

	return true
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondCardError maps engine failures onto HTTP status codes.
func (h *Handler) respondCardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loyalty.ErrCardNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, loyalty.ErrAlreadyOwned):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, loyalty.ErrInvalidOrUsedCode),
		errors.Is(err, loyalty.ErrGiftCardUsed),
		errors.Is(err, loyalty.ErrDuplicateCode):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, loyalty.ErrInsufficientStamps),
		errors.Is(err, loyalty.ErrNoRedeemableStage):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.respondError(w, http.StatusBadRequest, err.Error())
	}
}
