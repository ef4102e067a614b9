package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"loyalty-api/internal/auth"
	"loyalty-api/internal/models"
	"loyalty-api/internal/validation"
)

// CreateCard handles POST /cards (admin)
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCardRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Code = validation.SanitizeString(req.Code)
	req.GiftType = validation.SanitizeString(req.GiftType)

	card, err := h.service.CreateCard(r.Context(), req)
	if err != nil {
		h.respondCardError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, card)
}

// ListCards handles GET /cards with an optional ?type= filter
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cardType := models.CardType(validation.SanitizeString(r.URL.Query().Get("type")))

	cards, err := h.service.ListCards(auth.UserIDFromContext(r.Context()), cardType)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if cards == nil {
		cards = []models.LoyaltyCard{}
	}
	h.respondJSON(w, http.StatusOK, cards)
}

// DiscoverCard handles GET /cards/discover?code=
func (h *Handler) DiscoverCard(w http.ResponseWriter, r *http.Request) {
	code := validation.SanitizeString(r.URL.Query().Get("code"))

	card, err := h.service.DiscoverCard(r.Context(), auth.UserIDFromContext(r.Context()), code)
	if err != nil {
		h.respondCardError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, card)
}

// ActivateCard handles POST /cards/activate
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	var req models.ActivateCardRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Code = validation.SanitizeString(req.Code)
	req.CardID = validation.SanitizeString(req.CardID)

	card, err := h.service.ActivateCard(r.Context(), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		h.respondCardError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, card)
}

// ActivateStamp handles POST /cards/{card_id}/stamps/activate
func (h *Handler) ActivateStamp(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))

	var req models.ActivateStampRequest
	if !h.decode(w, r, &req) {
		return
	}

	card, err := h.service.ActivateStamp(r.Context(), auth.UserIDFromContext(r.Context()), cardID, validation.SanitizeString(req.Code))
	if err != nil {
		h.respondCardError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, card)
}

// RedeemReward handles POST /cards/{card_id}/redeem
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))

	receipt, card, err := h.service.RedeemReward(r.Context(), auth.UserIDFromContext(r.Context()), cardID)
	if err != nil {
		h.respondCardError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, struct {
		Receipt models.RewardReceipt `json:"receipt"`
		Card    models.LoyaltyCard   `json:"card"`
	}{Receipt: receipt, Card: card})
}

// UseGiftCard handles POST /cards/{card_id}/use
func (h *Handler) UseGiftCard(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))

	card, err := h.service.UseGiftCard(r.Context(), auth.UserIDFromContext(r.Context()), cardID)
	if err != nil {
		h.respondCardError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, card)
}
