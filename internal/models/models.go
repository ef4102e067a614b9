package models

import "time"

// CardType discriminates the three kinds of loyalty card.
type CardType string

const (
	CardTypeReward CardType = "reward"
	CardTypeGift   CardType = "gift"
	CardTypeCoins  CardType = "coins"
)

// Valid reports whether t is one of the known card types.
func (t CardType) Valid() bool {
	switch t {
	case CardTypeReward, CardTypeGift, CardTypeCoins:
		return true
	}
	return false
}

// LoyaltyCard is the canonical card record. Stages and Stamps are owned
// exclusively by their card; reward-only fields are empty on gift/coins
// cards and vice versa.
type LoyaltyCard struct {
	ID            string     `json:"id"`        // uuid
	Type          CardType   `json:"type"`      // fixed at creation
	Code          string     `json:"code"`      // short activation code
	OwnerID       string     `json:"owner_id"`  // empty = unclaimed
	IsActive      bool       `json:"is_active"` // false = inert
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	UsedAt        *time.Time `json:"used_at,omitempty"` // gift cards only, terminal
	GiftType      string     `json:"gift_type,omitempty"`
	DiscountValue int64      `json:"discount_value,omitempty"` // cents
	CoinsAmount   int64      `json:"coins_amount,omitempty"`
	Stages        []Stage    `json:"stages,omitempty"` // reward cards, ascending Required
	Stamps        []Stamp    `json:"stamps,omitempty"` // reward cards, fixed at creation
}

// Stage is one reward tier. Current is derived from the active stamp count
// and is never an independent source of truth.
type Stage struct {
	Required      int    `json:"required"`
	Current       int    `json:"current"`
	Reward        string `json:"reward"`
	RewardType    string `json:"reward_type"`
	DiscountValue int64  `json:"discount_value,omitempty"` // cents
}

// Stamp is a single-use activation slot on a reward card. Its code transitions
// unused -> active exactly once; consumption marks it used and its code is
// permanently spent.
type Stamp struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	IsActive    bool       `json:"is_active"`
	ActivatedBy string     `json:"activated_by,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
}

// RewardReceipt is emitted by a successful redemption.
type RewardReceipt struct {
	ID            string    `json:"id"`
	CardID        string    `json:"card_id"`
	UserID        string    `json:"user_id"`
	StageIndex    int       `json:"stage_index"`
	Reward        string    `json:"reward"`
	RewardType    string    `json:"reward_type"`
	DiscountValue int64     `json:"discount_value,omitempty"`
	RedeemedAt    time.Time `json:"redeemed_at"`
}

// User is an account record. CoinsBalance is the wallet balance in coins.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"` // "user" or "admin"
	CoinsBalance int64     `json:"coins_balance"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Product is a catalog entry.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
	PriceCents int64  `json:"price_cents"`
	Available  bool   `json:"available"`
}

// OrderItem is one product line on an order, priced at order time.
type OrderItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

// Order is a placed order; TotalCents is computed server-side.
type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
	CreatedAt  time.Time   `json:"created_at"`
}

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the request body for POST /auth/login. The password is
// accepted but not verified; credential checking is stubbed.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries an issued bearer token.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// CreateCardRequest is the admin request body for minting a card.
type CreateCardRequest struct {
	Type          CardType `json:"type"`
	Code          string   `json:"code"`
	StampCount    int      `json:"stamp_count,omitempty"` // reward cards
	Stages        []Stage  `json:"stages,omitempty"`      // reward cards
	GiftType      string   `json:"gift_type,omitempty"`
	DiscountValue int64    `json:"discount_value,omitempty"`
	CoinsAmount   int64    `json:"coins_amount,omitempty"`
}

// ActivateCardRequest claims a card by code or id (exactly one is required).
type ActivateCardRequest struct {
	Code   string `json:"code,omitempty"`
	CardID string `json:"card_id,omitempty"`
}

// ActivateStampRequest activates one stamp slot by its one-time code.
type ActivateStampRequest struct {
	Code string `json:"code"`
}

// CreateOrderRequest is the request body for placing an order.
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items"`
}

// CreateOrderItem references a catalog product by id.
type CreateOrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// WalletResponse reports a user's coin balance.
type WalletResponse struct {
	UserID       string `json:"user_id"`
	CoinsBalance int64  `json:"coins_balance"`
}

// WalletCreditRequest credits coins to the caller's wallet.
type WalletCreditRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
