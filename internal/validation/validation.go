package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"loyalty-api/internal/models"
)

var (
	uuidRegex      = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	cardCodeRegex  = regexp.MustCompile(`^[A-Za-z0-9\-]{4,16}$`)
	stampCodeRegex = regexp.MustCompile(`^\d{6}$`)
	emailRegex     = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}

// ValidateCardCode checks a human-enterable claim code: 4-16 characters,
// letters, digits and dashes.
func ValidateCardCode(code string) error {
	if code == "" {
		return &ValidationError{
			Field:   "code",
			Message: "is required",
		}
	}

	if !cardCodeRegex.MatchString(SanitizeString(code)) {
		return &ValidationError{
			Field:   "code",
			Message: "must be 4-16 letters, digits or dashes",
		}
	}

	return nil
}

// ValidateStampCode checks a one-time stamp code: exactly 6 digits.
func ValidateStampCode(code string) error {
	if code == "" {
		return &ValidationError{
			Field:   "code",
			Message: "is required",
		}
	}

	if !stampCodeRegex.MatchString(SanitizeString(code)) {
		return &ValidationError{
			Field:   "code",
			Message: "must be a 6-digit numeric code",
		}
	}

	return nil
}

func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{
			Field:   "email",
			Message: "is required",
		}
	}

	if !emailRegex.MatchString(SanitizeString(email)) {
		return &ValidationError{
			Field:   "email",
			Message: "must be a valid email address",
		}
	}

	return nil
}

// ValidateCreateCard checks an admin mint request: known type, well-formed
// claim code, and for reward cards a strictly ascending stage ladder plus a
// bounded stamp slot count.
func ValidateCreateCard(req models.CreateCardRequest) error {
	if !req.Type.Valid() {
		return &ValidationError{
			Field:   "type",
			Message: "must be one of reward, gift, coins",
		}
	}

	if err := ValidateCardCode(req.Code); err != nil {
		return err
	}

	switch req.Type {
	case models.CardTypeReward:
		if req.StampCount < 1 || req.StampCount > 200 {
			return &ValidationError{
				Field:   "stamp_count",
				Message: "must be between 1 and 200",
			}
		}
		if len(req.Stages) == 0 {
			return &ValidationError{
				Field:   "stages",
				Message: "at least one stage is required",
			}
		}
		if len(req.Stages) > 20 {
			return &ValidationError{
				Field:   "stages",
				Message: "cannot contain more than 20 stages",
			}
		}
		prev := 0
		for i, stage := range req.Stages {
			if stage.Required <= prev {
				return &ValidationError{
					Field:   fmt.Sprintf("stages[%d].required", i),
					Message: "must be strictly increasing and positive",
				}
			}
			if stage.Reward == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("stages[%d].reward", i),
					Message: "is required",
				}
			}
			prev = stage.Required
		}
		if req.Stages[len(req.Stages)-1].Required > req.StampCount {
			return &ValidationError{
				Field:   "stages",
				Message: "highest stage threshold cannot exceed stamp_count",
			}
		}
	case models.CardTypeGift:
		if req.GiftType == "" {
			return &ValidationError{
				Field:   "gift_type",
				Message: "is required for gift cards",
			}
		}
		if req.DiscountValue < 0 {
			return &ValidationError{
				Field:   "discount_value",
				Message: "must be non-negative",
			}
		}
	case models.CardTypeCoins:
		if req.CoinsAmount <= 0 {
			return &ValidationError{
				Field:   "coins_amount",
				Message: "must be positive",
			}
		}
	}

	return nil
}

// ValidateProduct checks a catalog entry.
func ValidateProduct(p models.Product) error {
	if err := ValidateUUID(p.ID, "id"); err != nil {
		return err
	}

	if SanitizeString(p.Name) == "" {
		return &ValidationError{
			Field:   "name",
			Message: "is required",
		}
	}

	if p.PriceCents < 0 {
		return &ValidationError{
			Field:   "price_cents",
			Message: "must be non-negative",
		}
	}

	maxPrice := int64(100_000_000)
	if p.PriceCents > maxPrice {
		return &ValidationError{
			Field:   "price_cents",
			Message: "exceeds maximum allowed price",
		}
	}

	return nil
}

// ValidateOrderItems checks the lines of an order request.
func ValidateOrderItems(items []models.CreateOrderItem) error {
	if len(items) == 0 {
		return &ValidationError{
			Field:   "items",
			Message: "at least one item is required",
		}
	}

	if len(items) > 100 {
		return &ValidationError{
			Field:   "items",
			Message: "cannot contain more than 100 items",
		}
	}

	for i, item := range items {
		if err := ValidateUUID(item.ProductID, fmt.Sprintf("items[%d].product_id", i)); err != nil {
			return err
		}
		if item.Quantity < 1 || item.Quantity > 50 {
			return &ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "must be between 1 and 50",
			}
		}
	}

	return nil
}
