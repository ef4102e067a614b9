package loyalty

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"loyalty-api/internal/models"
)

// Clock supplies the current time; injected so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator supplies identifiers for reward receipts.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator is the production IDGenerator.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.New().String() }

// Engine implements the card state transitions: stamp activation, stage
// recomputation, redemption and gift consumption. It mutates cards in memory
// only; persistence is the caller's job, under the per-card lock.
type Engine struct {
	clock Clock
	ids   IDGenerator
}

// NewEngine creates an engine with the given collaborators.
func NewEngine(clock Clock, ids IDGenerator) *Engine {
	return &Engine{clock: clock, ids: ids}
}

// ActiveStampCount returns the number of active stamps on the card.
func ActiveStampCount(card *models.LoyaltyCard) int {
	count := 0
	for i := range card.Stamps {
		if card.Stamps[i].IsActive {
			count++
		}
	}
	return count
}

// RecomputeStages rewrites every stage's Current from the active stamp count.
// Stage 0 shows the full count; each later stage shows progress above the
// previous stage's threshold, clamped at zero. Runs after every stamp or
// redemption mutation; Current is never set any other way.
func RecomputeStages(card *models.LoyaltyCard) {
	recomputeStages(card.Stages, ActiveStampCount(card))
}

func recomputeStages(stages []models.Stage, activeCount int) {
	for i := range stages {
		if i == 0 {
			stages[i].Current = activeCount
			continue
		}
		current := activeCount - stages[i-1].Required
		if current < 0 {
			current = 0
		}
		stages[i].Current = current
	}
}

// ActivateStamp activates the stamp matching code on an owned reward card.
// A stamp code works exactly once: stamps that were consumed by a redemption
// stay spent even though they are no longer active.
func (e *Engine) ActivateStamp(card *models.LoyaltyCard, code, userID string) error {
	if card.Type != models.CardTypeReward {
		return ErrInvalidCardType
	}
	if !card.IsActive || card.OwnerID == "" || card.OwnerID != userID {
		return ErrCardNotFound
	}

	idx := -1
	for i := range card.Stamps {
		s := &card.Stamps[i]
		if s.Code == code && !s.IsActive && s.UsedAt == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrInvalidOrUsedCode
	}

	now := e.clock.Now()
	card.Stamps[idx].IsActive = true
	card.Stamps[idx].ActivatedBy = userID
	card.Stamps[idx].ActivatedAt = &now

	RecomputeStages(card)
	return nil
}

// Redeem converts the highest affordable stage into a reward receipt and
// consumes that stage's Required stamps. By default consumption walks the
// stamp list in storage order; with oldestFirst it walks by activation time
// instead. All validation happens before the first stamp is touched, so a
// failed redemption leaves the card untouched.
func (e *Engine) Redeem(card *models.LoyaltyCard, userID string, oldestFirst bool) (models.RewardReceipt, error) {
	if card.Type != models.CardTypeReward {
		return models.RewardReceipt{}, ErrInvalidCardType
	}
	if !card.IsActive || card.OwnerID == "" || card.OwnerID != userID {
		return models.RewardReceipt{}, ErrCardNotFound
	}
	if len(card.Stages) == 0 {
		return models.RewardReceipt{}, ErrNoRedeemableStage
	}

	activeCount := ActiveStampCount(card)
	if activeCount < card.Stages[0].Required {
		return models.RewardReceipt{}, ErrInsufficientStamps
	}

	stageIdx := -1
	for i := len(card.Stages) - 1; i >= 0; i-- {
		if card.Stages[i].Required <= activeCount {
			stageIdx = i
			break
		}
	}
	if stageIdx == -1 {
		return models.RewardReceipt{}, ErrNoRedeemableStage
	}
	stage := card.Stages[stageIdx]

	now := e.clock.Now()
	receipt := models.RewardReceipt{
		ID:            e.ids.NewID(),
		CardID:        card.ID,
		UserID:        userID,
		StageIndex:    stageIdx,
		Reward:        stage.Reward,
		RewardType:    stage.RewardType,
		DiscountValue: stage.DiscountValue,
		RedeemedAt:    now,
	}

	consumeStamps(card, stage.Required, now, oldestFirst)
	RecomputeStages(card)
	return receipt, nil
}

// consumeStamps deactivates n active stamps, marking them used. Storage order
// is the default; oldestFirst orders candidates by ActivatedAt instead.
func consumeStamps(card *models.LoyaltyCard, n int, now time.Time, oldestFirst bool) {
	indices := make([]int, 0, len(card.Stamps))
	for i := range card.Stamps {
		if card.Stamps[i].IsActive {
			indices = append(indices, i)
		}
	}
	if oldestFirst {
		sort.SliceStable(indices, func(a, b int) bool {
			sa, sb := card.Stamps[indices[a]].ActivatedAt, card.Stamps[indices[b]].ActivatedAt
			if sa == nil || sb == nil {
				return sb == nil && sa != nil
			}
			return sa.Before(*sb)
		})
	}
	if n > len(indices) {
		n = len(indices)
	}
	for _, i := range indices[:n] {
		used := now
		card.Stamps[i].IsActive = false
		card.Stamps[i].UsedAt = &used
	}
}

// UseGiftCard consumes an owned gift card exactly once. Terminal; there is no
// un-use path.
func (e *Engine) UseGiftCard(card *models.LoyaltyCard, userID string) error {
	if card.Type != models.CardTypeGift {
		return ErrInvalidCardType
	}
	if card.OwnerID == "" || card.OwnerID != userID {
		return ErrCardNotFound
	}
	if !card.IsActive {
		return ErrCardNotFound
	}
	if card.UsedAt != nil {
		return ErrGiftCardUsed
	}

	now := e.clock.Now()
	card.UsedAt = &now
	return nil
}

// Claim binds an unclaimed active card to userID. At most once per card: a
// second attempt fails because the card now has an owner.
func (e *Engine) Claim(card *models.LoyaltyCard, userID string) error {
	if card == nil || !card.IsActive || card.OwnerID != "" {
		return ErrCardNotFound
	}
	now := e.clock.Now()
	card.OwnerID = userID
	card.ActivatedAt = &now
	return nil
}

// Discover previews a card without mutating it. A card claimed by somebody
// else is reported as such; an unclaimed card or the requester's own card
// passes.
func Discover(card *models.LoyaltyCard, userID string) error {
	if card == nil || !card.IsActive {
		return ErrCardNotFound
	}
	if card.OwnerID != "" && card.OwnerID != userID {
		return ErrAlreadyOwned
	}
	return nil
}
