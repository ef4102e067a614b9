package service

import (
	"context"
	"fmt"
	"time"

	"loyalty-api/internal/cache"
	"loyalty-api/internal/database"
	"loyalty-api/internal/events"
	"loyalty-api/internal/features"
	"loyalty-api/internal/loyalty"
	"loyalty-api/internal/models"
	"loyalty-api/internal/validation"
)

const catalogCacheTTL = 5 * time.Minute

// Service provides the business logic for the loyalty API: accounts, catalog,
// orders, wallet, and the loyalty card operations in cards.go.
type Service struct {
	db     *database.DB
	engine *loyalty.Engine
	locks  *loyalty.CardLocker
	cache  cache.Cache
	events *events.Manager
	flags  *features.Manager
	clock  loyalty.Clock
	ids    loyalty.IDGenerator
}

// Options holds optional collaborators for a Service. Zero values select
// production defaults.
type Options struct {
	Cache  cache.Cache
	Events *events.Manager
	Flags  *features.Manager
	Clock  loyalty.Clock
	IDs    loyalty.IDGenerator
}

// NewService creates a service instance over the given store.
func NewService(db *database.DB, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NewInMemoryCache()
	}
	if opts.Events == nil {
		opts.Events = events.NewManager(false)
	}
	if opts.Flags == nil {
		opts.Flags = features.NewManager()
	}
	if opts.Clock == nil {
		opts.Clock = loyalty.SystemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = loyalty.UUIDGenerator{}
	}

	return &Service{
		db:     db,
		engine: loyalty.NewEngine(opts.Clock, opts.IDs),
		locks:  loyalty.NewCardLocker(),
		cache:  opts.Cache,
		events: opts.Events,
		flags:  opts.Flags,
		clock:  opts.Clock,
		ids:    opts.IDs,
	}
}

// Register creates a new user account with the user role.
func (s *Service) Register(req models.RegisterRequest) (models.User, error) {
	if err := validation.ValidateEmail(req.Email); err != nil {
		return models.User{}, err
	}
	if validation.SanitizeString(req.Name) == "" {
		return models.User{}, fmt.Errorf("name is required")
	}

	existing, err := s.db.GetUserByEmail(req.Email)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return models.User{}, fmt.Errorf("email already registered")
	}

	user := models.User{
		ID:        s.ids.NewID(),
		Email:     req.Email,
		Name:      validation.SanitizeString(req.Name),
		Role:      models.RoleUser,
		CreatedAt: s.clock.Now(),
	}

	if err := s.db.CreateUser(user); err != nil {
		return models.User{}, err
	}

	return user, nil
}

// Login resolves a user by email. The password is deliberately not verified;
// credential checking is stubbed and any password passes for a known account.
func (s *Service) Login(req models.LoginRequest) (models.User, error) {
	if err := validation.ValidateEmail(req.Email); err != nil {
		return models.User{}, err
	}

	user, err := s.db.GetUserByEmail(req.Email)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}

	return *user, nil
}

// GetUser returns the user with the given id.
func (s *Service) GetUser(id string) (*models.User, error) {
	return s.db.GetUserByID(id)
}

// UpsertProduct creates or updates a catalog entry and invalidates the
// catalog cache.
func (s *Service) UpsertProduct(ctx context.Context, p models.Product) error {
	if err := validation.ValidateProduct(p); err != nil {
		return err
	}

	if err := s.db.UpsertProduct(p); err != nil {
		return err
	}

	s.invalidate(ctx, cache.KeyCatalog)
	return nil
}

// ListProducts returns the available catalog, read through the cache when the
// cache flag is on.
func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	if s.flags.IsEnabled(features.FeatureCacheEnabled) {
		var cached []models.Product
		if err := cache.GetJSON(ctx, s.cache, cache.KeyCatalog, &cached); err == nil {
			return cached, nil
		}
	}

	products, err := s.db.ListProducts()
	if err != nil {
		return nil, err
	}

	if s.flags.IsEnabled(features.FeatureCacheEnabled) {
		_ = cache.SetJSON(ctx, s.cache, cache.KeyCatalog, products, catalogCacheTTL)
	}

	return products, nil
}

// DeleteProduct removes a catalog entry and invalidates the catalog cache.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := validation.ValidateUUID(id, "product_id"); err != nil {
		return err
	}

	if err := s.db.DeleteProduct(id); err != nil {
		return err
	}

	s.invalidate(ctx, cache.KeyCatalog)
	return nil
}

// CreateOrder places an order for the given user. Prices come from the
// catalog at order time and the total is computed server-side.
func (s *Service) CreateOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (models.Order, error) {
	if err := validation.ValidateOrderItems(req.Items); err != nil {
		return models.Order{}, err
	}

	order := models.Order{
		ID:        s.ids.NewID(),
		UserID:    userID,
		CreatedAt: s.clock.Now(),
	}

	for _, item := range req.Items {
		product, err := s.db.GetProduct(item.ProductID)
		if err != nil {
			return models.Order{}, err
		}
		if product == nil || !product.Available {
			return models.Order{}, fmt.Errorf("product %s is not available", item.ProductID)
		}

		order.Items = append(order.Items, models.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			PriceCents: product.PriceCents,
			Quantity:   item.Quantity,
		})
		order.TotalCents += product.PriceCents * int64(item.Quantity)
	}

	if err := s.db.InsertOrder(order); err != nil {
		return models.Order{}, err
	}

	s.publish(func() { s.events.PublishOrderCreated(ctx, order) })
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(userID string) ([]models.Order, error) {
	return s.db.ListOrdersByUser(userID)
}

// GetWallet returns the user's coin balance.
func (s *Service) GetWallet(userID string) (models.WalletResponse, error) {
	user, err := s.db.GetUserByID(userID)
	if err != nil {
		return models.WalletResponse{}, err
	}
	if user == nil {
		return models.WalletResponse{}, fmt.Errorf("user %s does not exist", userID)
	}

	return models.WalletResponse{UserID: user.ID, CoinsBalance: user.CoinsBalance}, nil
}

// CreditWallet adds coins to the user's wallet and returns the new balance.
func (s *Service) CreditWallet(userID string, amount int64) (models.WalletResponse, error) {
	if amount <= 0 {
		return models.WalletResponse{}, fmt.Errorf("amount must be positive")
	}

	balance, err := s.db.AdjustCoinsBalance(userID, amount)
	if err != nil {
		return models.WalletResponse{}, err
	}

	return models.WalletResponse{UserID: userID, CoinsBalance: balance}, nil
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if s.flags.IsEnabled(features.FeatureCacheEnabled) {
		_ = s.cache.Delete(ctx, key)
	}
}

func (s *Service) publish(fn func()) {
	if s.flags.IsEnabled(features.FeatureEventHooksEnabled) {
		fn()
	}
}
