package events

import (
	"context"
	"sync"
	"time"

	"loyalty-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventCardActivated is emitted when a user claims a card
	EventCardActivated EventType = "card.activated"
	// EventStampActivated is emitted when a stamp code is redeemed on a card
	EventStampActivated EventType = "stamp.activated"
	// EventRewardRedeemed is emitted when a stage is redeemed for a reward
	EventRewardRedeemed EventType = "reward.redeemed"
	// EventGiftCardUsed is emitted when a gift card is consumed
	EventGiftCardUsed EventType = "giftcard.used"
	// EventOrderCreated is emitted when an order is placed
	EventOrderCreated EventType = "order.created"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// CardActivatedData contains data for card claimed events.
type CardActivatedData struct {
	CardID string
	UserID string
}

// StampActivatedData contains data for stamp activation events.
type StampActivatedData struct {
	CardID       string
	UserID       string
	ActiveStamps int
}

// RewardRedeemedData contains data for redemption events.
type RewardRedeemedData struct {
	Receipt models.RewardReceipt
}

// GiftCardUsedData contains data for gift consumption events.
type GiftCardUsedData struct {
	CardID string
	UserID string
}

// OrderCreatedData contains data for order placement events.
type OrderCreatedData struct {
	Order models.Order
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously so a slow subscriber never blocks the request path.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				_ = err
			}
		}(handler)
	}
}

// PublishCardActivated publishes a card claimed event.
func (m *Manager) PublishCardActivated(ctx context.Context, cardID, userID string) {
	m.Publish(ctx, EventCardActivated, CardActivatedData{CardID: cardID, UserID: userID})
}

// PublishStampActivated publishes a stamp activation event.
func (m *Manager) PublishStampActivated(ctx context.Context, cardID, userID string, activeStamps int) {
	m.Publish(ctx, EventStampActivated, StampActivatedData{
		CardID:       cardID,
		UserID:       userID,
		ActiveStamps: activeStamps,
	})
}

// PublishRewardRedeemed publishes a redemption event.
func (m *Manager) PublishRewardRedeemed(ctx context.Context, receipt models.RewardReceipt) {
	m.Publish(ctx, EventRewardRedeemed, RewardRedeemedData{Receipt: receipt})
}

// PublishGiftCardUsed publishes a gift consumption event.
func (m *Manager) PublishGiftCardUsed(ctx context.Context, cardID, userID string) {
	m.Publish(ctx, EventGiftCardUsed, GiftCardUsedData{CardID: cardID, UserID: userID})
}

// PublishOrderCreated publishes an order placement event.
func (m *Manager) PublishOrderCreated(ctx context.Context, order models.Order) {
	m.Publish(ctx, EventOrderCreated, OrderCreatedData{Order: order})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
