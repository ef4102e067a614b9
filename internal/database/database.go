package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"loyalty-api/internal/models"
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ErrDuplicateClaimCode is returned when a card insert would create a second
// active unclaimed card with the same code. Code uniqueness among claimable
// cards is enforced at write time by a partial unique index.
var ErrDuplicateClaimCode = fmt.Errorf("database: active unclaimed card with this code already exists")

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			coins_balance INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			price_cents INTEGER NOT NULL,
			available INTEGER NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			items TEXT NOT NULL,
			total_cents INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			code TEXT NOT NULL,
			owner_id TEXT,
			is_active INTEGER NOT NULL,
			activated_at TEXT,
			used_at TEXT,
			gift_type TEXT NOT NULL DEFAULT '',
			discount_value INTEGER NOT NULL DEFAULT 0,
			coins_amount INTEGER NOT NULL DEFAULT 0,
			stages TEXT NOT NULL,
			stamps TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			id TEXT PRIMARY KEY,
			card_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			stage_index INTEGER NOT NULL,
			reward TEXT NOT NULL,
			reward_type TEXT NOT NULL,
			discount_value INTEGER NOT NULL DEFAULT 0,
			redeemed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_owner_id ON cards(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_code ON cards(code)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_user_id ON receipts(user_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_claimable_code
			ON cards(code) WHERE owner_id IS NULL AND is_active = 1`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// CreateUser inserts a user record.
func (db *DB) CreateUser(user models.User) error {
	query := `INSERT INTO users (id, email, name, role, coins_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(
		query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.CoinsBalance,
		user.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID returns the user with the given id, or nil if none exists.
func (db *DB) GetUserByID(id string) (*models.User, error) {
	return db.getUser(`SELECT id, email, name, role, coins_balance, created_at
		FROM users WHERE id = ?`, id)
}

// GetUserByEmail returns the user with the given email, or nil if none exists.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	return db.getUser(`SELECT id, email, name, role, coins_balance, created_at
		FROM users WHERE email = ?`, email)
}

func (db *DB) getUser(query string, arg interface{}) (*models.User, error) {
	var user models.User
	var createdAtStr string

	err := db.conn.QueryRow(query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CoinsBalance,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &user, nil
}

// AdjustCoinsBalance applies delta to a user's wallet in a single guarded
// update; a debit that would take the balance negative affects no rows.
func (db *DB) AdjustCoinsBalance(userID string, delta int64) (int64, error) {
	res, err := db.conn.Exec(
		`UPDATE users SET coins_balance = coins_balance + ?
			WHERE id = ? AND coins_balance + ? >= 0`,
		delta, userID, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust coins balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("insufficient balance or unknown user %s", userID)
	}

	var balance int64
	if err := db.conn.QueryRow(`SELECT coins_balance FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to read coins balance: %w", err)
	}

	return balance, nil
}

// UpsertProduct creates or updates a catalog entry.
func (db *DB) UpsertProduct(p models.Product) error {
	query := `INSERT INTO products (id, name, category, price_cents, available, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			price_cents = excluded.price_cents,
			available = excluded.available,
			updated_at = excluded.updated_at`

	_, err := db.conn.Exec(
		query,
		p.ID,
		p.Name,
		p.Category,
		p.PriceCents,
		p.Available,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	return nil
}

// ListProducts returns all available products.
func (db *DB) ListProducts() ([]models.Product, error) {
	rows, err := db.conn.Query(`SELECT id, name, category, price_cents, available
		FROM products WHERE available = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Available); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// GetProduct returns the product with the given id, or nil if none exists.
func (db *DB) GetProduct(id string) (*models.Product, error) {
	var p models.Product
	err := db.conn.QueryRow(`SELECT id, name, category, price_cents, available
		FROM products WHERE id = ?`, id).Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Available)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &p, nil
}

// DeleteProduct removes a catalog entry.
func (db *DB) DeleteProduct(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// InsertOrder stores a placed order with its items serialized as JSON.
func (db *DB) InsertOrder(order models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to serialize order items: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO orders (id, user_id, items, total_cents, created_at)
			VALUES (?, ?, ?, ?, ?)`,
		order.ID,
		order.UserID,
		string(items),
		order.TotalCents,
		order.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (db *DB) ListOrdersByUser(userID string) ([]models.Order, error) {
	rows, err := db.conn.Query(`SELECT id, user_id, items, total_cents, created_at
		FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		var itemsJSON, createdAtStr string

		if err := rows.Scan(&order.ID, &order.UserID, &itemsJSON, &order.TotalCents, &createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		if err := json.Unmarshal([]byte(itemsJSON), &order.Items); err != nil {
			return nil, fmt.Errorf("failed to deserialize order items: %w", err)
		}

		order.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

const cardColumns = `id, type, code, owner_id, is_active, activated_at, used_at,
	gift_type, discount_value, coins_amount, stages, stamps`

// CreateCard inserts a card record. A duplicate claimable code is rejected by
// the partial unique index and surfaced as ErrDuplicateClaimCode.
func (db *DB) CreateCard(card models.LoyaltyCard) error {
	stages, stamps, err := serializeCardParts(card)
	if err != nil {
		return err
	}

	query := `INSERT INTO cards (` + cardColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.Exec(
		query,
		card.ID,
		string(card.Type),
		card.Code,
		nullableString(card.OwnerID),
		card.IsActive,
		nullableTime(card.ActivatedAt),
		nullableTime(card.UsedAt),
		card.GiftType,
		card.DiscountValue,
		card.CoinsAmount,
		stages,
		stamps,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_cards_claimable_code") {
			return ErrDuplicateClaimCode
		}
		return fmt.Errorf("failed to insert card: %w", err)
	}

	return nil
}

// SaveCard writes back a mutated card record.
func (db *DB) SaveCard(card models.LoyaltyCard) error {
	stages, stamps, err := serializeCardParts(card)
	if err != nil {
		return err
	}

	query := `UPDATE cards SET
		owner_id = ?,
		is_active = ?,
		activated_at = ?,
		used_at = ?,
		stages = ?,
		stamps = ?,
		updated_at = ?
		WHERE id = ?`

	res, err := db.conn.Exec(
		query,
		nullableString(card.OwnerID),
		card.IsActive,
		nullableTime(card.ActivatedAt),
		nullableTime(card.UsedAt),
		stages,
		stamps,
		time.Now().UTC().Format(time.RFC3339),
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("card %s does not exist", card.ID)
	}

	return nil
}

// GetCardByID returns the card with the given id, or nil if none exists.
func (db *DB) GetCardByID(id string) (*models.LoyaltyCard, error) {
	return db.getCard(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
}

// GetCardByCode returns an active card with the given code, or nil. A reissued
// code can match both a claimed and an unclaimed card; the unclaimed one wins.
func (db *DB) GetCardByCode(code string) (*models.LoyaltyCard, error) {
	return db.getCard(`SELECT `+cardColumns+` FROM cards
		WHERE code = ? AND is_active = 1
		ORDER BY owner_id IS NULL DESC`, code)
}

// GetClaimableCardByCode returns the active unclaimed card with the given
// code, or nil.
func (db *DB) GetClaimableCardByCode(code string) (*models.LoyaltyCard, error) {
	return db.getCard(`SELECT `+cardColumns+` FROM cards
		WHERE code = ? AND owner_id IS NULL AND is_active = 1`, code)
}

// GetClaimableCardByID returns the active unclaimed card with the given id,
// or nil.
func (db *DB) GetClaimableCardByID(id string) (*models.LoyaltyCard, error) {
	return db.getCard(`SELECT `+cardColumns+` FROM cards
		WHERE id = ? AND owner_id IS NULL AND is_active = 1`, id)
}

// GetOwnedCard returns the card with the given id belonging to ownerID, or
// nil.
func (db *DB) GetOwnedCard(id, ownerID string) (*models.LoyaltyCard, error) {
	return db.getCard(`SELECT `+cardColumns+` FROM cards
		WHERE id = ? AND owner_id = ?`, id, ownerID)
}

// ListCardsByOwner returns a user's cards, optionally filtered by type.
func (db *DB) ListCardsByOwner(ownerID string, cardType models.CardType) ([]models.LoyaltyCard, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE owner_id = ?`
	args := []interface{}{ownerID}

	if cardType != "" {
		query += ` AND type = ?`
		args = append(args, string(cardType))
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []models.LoyaltyCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}

	return cards, nil
}

func (db *DB) getCard(query string, args ...interface{}) (*models.LoyaltyCard, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query card: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query card: %w", err)
		}
		return nil, nil
	}

	return scanCard(rows)
}

func scanCard(rows *sql.Rows) (*models.LoyaltyCard, error) {
	var card models.LoyaltyCard
	var cardType string
	var ownerID, activatedAt, usedAt sql.NullString
	var stagesJSON, stampsJSON string

	err := rows.Scan(
		&card.ID,
		&cardType,
		&card.Code,
		&ownerID,
		&card.IsActive,
		&activatedAt,
		&usedAt,
		&card.GiftType,
		&card.DiscountValue,
		&card.CoinsAmount,
		&stagesJSON,
		&stampsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}

	card.Type = models.CardType(cardType)
	card.OwnerID = ownerID.String

	if card.ActivatedAt, err = parseNullableTime(activatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse activated_at: %w", err)
	}
	if card.UsedAt, err = parseNullableTime(usedAt); err != nil {
		return nil, fmt.Errorf("failed to parse used_at: %w", err)
	}

	if err := json.Unmarshal([]byte(stagesJSON), &card.Stages); err != nil {
		return nil, fmt.Errorf("failed to deserialize stages: %w", err)
	}
	if err := json.Unmarshal([]byte(stampsJSON), &card.Stamps); err != nil {
		return nil, fmt.Errorf("failed to deserialize stamps: %w", err)
	}

	return &card, nil
}

// InsertReceipt stores a redemption receipt.
func (db *DB) InsertReceipt(r models.RewardReceipt) error {
	_, err := db.conn.Exec(
		`INSERT INTO receipts (id, card_id, user_id, stage_index, reward, reward_type, discount_value, redeemed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.CardID,
		r.UserID,
		r.StageIndex,
		r.Reward,
		r.RewardType,
		r.DiscountValue,
		r.RedeemedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	return nil
}

func serializeCardParts(card models.LoyaltyCard) (string, string, error) {
	stages, err := json.Marshal(card.Stages)
	if err != nil {
		return "", "", fmt.Errorf("failed to serialize stages: %w", err)
	}
	stamps, err := json.Marshal(card.Stamps)
	if err != nil {
		return "", "", fmt.Errorf("failed to serialize stamps: %w", err)
	}
	return string(stages), string(stamps), nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
