package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"loyalty-api/internal/cache"
	"loyalty-api/internal/database"
	"loyalty-api/internal/features"
	"loyalty-api/internal/loyalty"
	"loyalty-api/internal/models"
	"loyalty-api/internal/validation"
)

const discoveryCacheTTL = time.Minute

// CreateCard mints a new loyalty card. Reward cards get their fixed stamp
// slots here, each with a generated one-time code; no stamps are ever added
// later.
func (s *Service) CreateCard(ctx context.Context, req models.CreateCardRequest) (models.LoyaltyCard, error) {
	if err := validation.ValidateCreateCard(req); err != nil {
		return models.LoyaltyCard{}, err
	}

	card := models.LoyaltyCard{
		ID:       s.ids.NewID(),
		Type:     req.Type,
		Code:     validation.SanitizeString(req.Code),
		IsActive: true,
	}

	switch req.Type {
	case models.CardTypeReward:
		card.Stages = make([]models.Stage, len(req.Stages))
		copy(card.Stages, req.Stages)
		for i := range card.Stages {
			card.Stages[i].Current = 0
		}
		card.Stamps = generateStamps(s.ids, req.StampCount)
	case models.CardTypeGift:
		card.GiftType = req.GiftType
		card.DiscountValue = req.DiscountValue
	case models.CardTypeCoins:
		card.CoinsAmount = req.CoinsAmount
	}

	if err := s.db.CreateCard(card); err != nil {
		if err == database.ErrDuplicateClaimCode {
			return models.LoyaltyCard{}, loyalty.ErrDuplicateCode
		}
		return models.LoyaltyCard{}, err
	}

	return card, nil
}

// generateStamps builds count stamp slots with 6-digit codes unique within
// the card.
func generateStamps(ids loyalty.IDGenerator, count int) []models.Stamp {
	stamps := make([]models.Stamp, 0, count)
	seen := make(map[string]bool, count)
	for len(stamps) < count {
		code := fmt.Sprintf("%06d", rand.IntN(1_000_000))
		if seen[code] {
			continue
		}
		seen[code] = true
		stamps = append(stamps, models.Stamp{
			ID:   ids.NewID(),
			Code: code,
		})
	}
	return stamps
}

// ListCards returns the user's cards, optionally filtered by type.
func (s *Service) ListCards(userID string, cardType models.CardType) ([]models.LoyaltyCard, error) {
	if cardType != "" && !cardType.Valid() {
		return nil, fmt.Errorf("unknown card type %q", cardType)
	}
	return s.db.ListCardsByOwner(userID, cardType)
}

// ActivateCard claims an unowned active card, located by code or by id, for
// the requesting user. At most once per card: once an owner is set every
// further attempt fails.
func (s *Service) ActivateCard(ctx context.Context, userID string, req models.ActivateCardRequest) (models.LoyaltyCard, error) {
	if (req.Code == "") == (req.CardID == "") {
		return models.LoyaltyCard{}, fmt.Errorf("exactly one of code or card_id is required")
	}

	// Resolve once to learn the card id, then re-load under the card lock so
	// two concurrent claims of the same code serialize.
	var probe *models.LoyaltyCard
	var err error
	if req.Code != "" {
		if err := validation.ValidateCardCode(req.Code); err != nil {
			return models.LoyaltyCard{}, err
		}
		probe, err = s.db.GetClaimableCardByCode(validation.SanitizeString(req.Code))
	} else {
		if err := validation.ValidateUUID(req.CardID, "card_id"); err != nil {
			return models.LoyaltyCard{}, err
		}
		probe, err = s.db.GetClaimableCardByID(req.CardID)
	}
	if err != nil {
		return models.LoyaltyCard{}, err
	}
	if probe == nil {
		return models.LoyaltyCard{}, loyalty.ErrCardNotFound
	}

	unlock := s.locks.Lock(probe.ID)
	defer unlock()

	card, err := s.db.GetClaimableCardByID(probe.ID)
	if err != nil {
		return models.LoyaltyCard{}, err
	}

	if err := s.engine.Claim(card, userID); err != nil {
		return models.LoyaltyCard{}, err
	}

	if err := s.db.SaveCard(*card); err != nil {
		return models.LoyaltyCard{}, err
	}

	s.invalidate(ctx, cache.KeyCardDiscovery(card.Code))
	s.publish(func() { s.events.PublishCardActivated(ctx, card.ID, userID) })
	return *card, nil
}

// DiscoverCard previews a card by code without claiming it. A card owned by a
// different user is reported as already owned.
func (s *Service) DiscoverCard(ctx context.Context, userID, code string) (models.LoyaltyCard, error) {
	if err := validation.ValidateCardCode(code); err != nil {
		return models.LoyaltyCard{}, err
	}
	code = validation.SanitizeString(code)

	var card *models.LoyaltyCard
	if s.flags.IsEnabled(features.FeatureCacheEnabled) {
		var cached models.LoyaltyCard
		if err := cache.GetJSON(ctx, s.cache, cache.KeyCardDiscovery(code), &cached); err == nil {
			card = &cached
		}
	}

	if card == nil {
		loaded, err := s.db.GetCardByCode(code)
		if err != nil {
			return models.LoyaltyCard{}, err
		}
		card = loaded

		if card != nil && s.flags.IsEnabled(features.FeatureCacheEnabled) {
			_ = cache.SetJSON(ctx, s.cache, cache.KeyCardDiscovery(code), card, discoveryCacheTTL)
		}
	}

	// The ownership check is per requester, so it runs outside the cache.
	if err := loyalty.Discover(card, userID); err != nil {
		return models.LoyaltyCard{}, err
	}

	return *card, nil
}

// ActivateStamp activates one stamp slot on the user's reward card by its
// one-time code and recomputes stage progress.
func (s *Service) ActivateStamp(ctx context.Context, userID, cardID, code string) (models.LoyaltyCard, error) {
	if err := validation.ValidateUUID(cardID, "card_id"); err != nil {
		return models.LoyaltyCard{}, err
	}
	if err := validation.ValidateStampCode(code); err != nil {
		return models.LoyaltyCard{}, err
	}

	unlock := s.locks.Lock(cardID)
	defer unlock()

	card, err := s.db.GetOwnedCard(cardID, userID)
	if err != nil {
		return models.LoyaltyCard{}, err
	}
	if card == nil {
		return models.LoyaltyCard{}, loyalty.ErrCardNotFound
	}

	if err := s.engine.ActivateStamp(card, validation.SanitizeString(code), userID); err != nil {
		return models.LoyaltyCard{}, err
	}

	if err := s.db.SaveCard(*card); err != nil {
		return models.LoyaltyCard{}, err
	}

	s.invalidate(ctx, cache.KeyCardDiscovery(card.Code))
	s.publish(func() {
		s.events.PublishStampActivated(ctx, card.ID, userID, loyalty.ActiveStampCount(card))
	})
	return *card, nil
}

// RedeemReward redeems the highest affordable stage on the user's reward
// card, consuming its stamps and storing the receipt.
func (s *Service) RedeemReward(ctx context.Context, userID, cardID string) (models.RewardReceipt, models.LoyaltyCard, error) {
	if err := validation.ValidateUUID(cardID, "card_id"); err != nil {
		return models.RewardReceipt{}, models.LoyaltyCard{}, err
	}

	unlock := s.locks.Lock(cardID)
	defer unlock()

	card, err := s.db.GetOwnedCard(cardID, userID)
	if err != nil {
		return models.RewardReceipt{}, models.LoyaltyCard{}, err
	}
	if card == nil {
		return models.RewardReceipt{}, models.LoyaltyCard{}, loyalty.ErrCardNotFound
	}

	oldestFirst := s.flags.IsEnabled(features.FeatureOldestFirstConsumption)
	receipt, err := s.engine.Redeem(card, userID, oldestFirst)
	if err != nil {
		return models.RewardReceipt{}, models.LoyaltyCard{}, err
	}

	if err := s.db.SaveCard(*card); err != nil {
		return models.RewardReceipt{}, models.LoyaltyCard{}, err
	}
	if err := s.db.InsertReceipt(receipt); err != nil {
		return models.RewardReceipt{}, models.LoyaltyCard{}, err
	}

	s.invalidate(ctx, cache.KeyCardDiscovery(card.Code))
	s.publish(func() { s.events.PublishRewardRedeemed(ctx, receipt) })
	return receipt, *card, nil
}

// UseGiftCard consumes the user's gift card exactly once.
func (s *Service) UseGiftCard(ctx context.Context, userID, cardID string) (models.LoyaltyCard, error) {
	if err := validation.ValidateUUID(cardID, "card_id"); err != nil {
		return models.LoyaltyCard{}, err
	}

	unlock := s.locks.Lock(cardID)
	defer unlock()

	card, err := s.db.GetOwnedCard(cardID, userID)
	if err != nil {
		return models.LoyaltyCard{}, err
	}
	if card == nil {
		return models.LoyaltyCard{}, loyalty.ErrCardNotFound
	}

	if err := s.engine.UseGiftCard(card, userID); err != nil {
		return models.LoyaltyCard{}, err
	}

	if err := s.db.SaveCard(*card); err != nil {
		return models.LoyaltyCard{}, err
	}

	s.invalidate(ctx, cache.KeyCardDiscovery(card.Code))
	s.publish(func() { s.events.PublishGiftCardUsed(ctx, card.ID, userID) })
	return *card, nil
}
