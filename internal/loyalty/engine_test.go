package loyalty

import (
	"fmt"
	"testing"
	"time"

	"loyalty-api/internal/models"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func testEngine() *Engine {
	return NewEngine(fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}, &seqIDs{})
}

// rewardCard builds an owned reward card with the given stage thresholds and
// stamp codes; the first activeCount stamps are already active.
func rewardCard(required []int, stampCodes []string, activeCount int) *models.LoyaltyCard {
	card := &models.LoyaltyCard{
		ID:       "card-1",
		Type:     models.CardTypeReward,
		Code:     "CLAIM-1",
		OwnerID:  "user-1",
		IsActive: true,
	}
	for i, req := range required {
		card.Stages = append(card.Stages, models.Stage{
			Required:   req,
			Reward:     fmt.Sprintf("reward-%d", i),
			RewardType: "free_item",
		})
	}
	for i, code := range stampCodes {
		stamp := models.Stamp{ID: fmt.Sprintf("stamp-%d", i), Code: code}
		if i < activeCount {
			activated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
			stamp.IsActive = true
			stamp.ActivatedBy = "user-1"
			stamp.ActivatedAt = &activated
		}
		card.Stamps = append(card.Stamps, stamp)
	}
	RecomputeStages(card)
	return card
}

func codes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%06d", 100000+i)
	}
	return out
}

func TestRecomputeStages_Windowing(t *testing.T) {
	tests := []struct {
		name     string
		required []int
		active   int
		want     []int
	}{
		{"empty card", []int{5}, 0, []int{0}},
		{"single stage partial", []int{5}, 3, []int{3}},
		{"single stage full", []int{5}, 5, []int{5}},
		{"second stage clamped at zero", []int{5, 10}, 3, []int{3, 0}},
		{"second stage window", []int{5, 10}, 7, []int{7, 2}},
		{"three stages", []int{3, 6, 10}, 8, []int{8, 5, 2}},
		{"count above highest threshold", []int{5, 10}, 12, []int{12, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := rewardCard(tt.required, codes(tt.active), tt.active)
			for i, want := range tt.want {
				if got := card.Stages[i].Current; got != want {
					t.Errorf("stage %d: expected current=%d, got %d", i, want, got)
				}
			}
		})
	}
}

func TestActivateStamp_UpdatesProgress(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, []string{"111111", "222222", "333333", "456789", "567890"}, 3)

	if card.Stages[0].Current != 3 {
		t.Fatalf("Expected initial current=3, got %d", card.Stages[0].Current)
	}

	if err := e.ActivateStamp(card, "456789", "user-1"); err != nil {
		t.Fatalf("Failed to activate stamp: %v", err)
	}
	if card.Stages[0].Current != 4 {
		t.Errorf("Expected current=4 after first activation, got %d", card.Stages[0].Current)
	}

	if err := e.ActivateStamp(card, "567890", "user-1"); err != nil {
		t.Fatalf("Failed to activate stamp: %v", err)
	}
	if card.Stages[0].Current != 5 {
		t.Errorf("Expected current=5 after second activation, got %d", card.Stages[0].Current)
	}
}

func TestActivateStamp_SingleUse(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, codes(5), 0)
	code := card.Stamps[0].Code

	if err := e.ActivateStamp(card, code, "user-1"); err != nil {
		t.Fatalf("First activation failed: %v", err)
	}

	if err := e.ActivateStamp(card, code, "user-1"); err != ErrInvalidOrUsedCode {
		t.Errorf("Expected ErrInvalidOrUsedCode on second activation, got %v", err)
	}
}

func TestActivateStamp_SpentCodeStaysSpent(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{2}, codes(3), 2)

	if _, err := e.Redeem(card, "user-1", false); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	// The first two stamps are no longer active but their codes are consumed.
	if err := e.ActivateStamp(card, card.Stamps[0].Code, "user-1"); err != ErrInvalidOrUsedCode {
		t.Errorf("Expected ErrInvalidOrUsedCode for a consumed stamp code, got %v", err)
	}
}

func TestActivateStamp_WrongOwnerOrType(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, codes(5), 0)

	if err := e.ActivateStamp(card, card.Stamps[0].Code, "somebody-else"); err != ErrCardNotFound {
		t.Errorf("Expected ErrCardNotFound for non-owner, got %v", err)
	}

	gift := &models.LoyaltyCard{ID: "g1", Type: models.CardTypeGift, OwnerID: "user-1", IsActive: true}
	if err := e.ActivateStamp(gift, "123456", "user-1"); err != ErrInvalidCardType {
		t.Errorf("Expected ErrInvalidCardType for gift card, got %v", err)
	}
}

func TestRedeem_HighestAffordableStage(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5, 10}, codes(12), 12)

	receipt, err := e.Redeem(card, "user-1", false)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	if receipt.StageIndex != 1 {
		t.Errorf("Expected stage index 1 (highest affordable), got %d", receipt.StageIndex)
	}
	if receipt.Reward != "reward-1" {
		t.Errorf("Expected reward-1, got %s", receipt.Reward)
	}
}

func TestRedeem_ConsumptionCountAndOrder(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, codes(7), 7)

	if _, err := e.Redeem(card, "user-1", false); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	if got := ActiveStampCount(card); got != 2 {
		t.Fatalf("Expected 2 active stamps after redeeming 5, got %d", got)
	}

	// The first 5 stamps in list order were consumed.
	for i := 0; i < 5; i++ {
		if card.Stamps[i].IsActive {
			t.Errorf("Expected stamp %d to be consumed", i)
		}
		if card.Stamps[i].UsedAt == nil {
			t.Errorf("Expected stamp %d to have used_at set", i)
		}
	}
	for i := 5; i < 7; i++ {
		if !card.Stamps[i].IsActive {
			t.Errorf("Expected stamp %d to remain active", i)
		}
	}

	if card.Stages[0].Current != 2 {
		t.Errorf("Expected current=2 after redemption, got %d", card.Stages[0].Current)
	}
}

func TestRedeem_OldestFirstMode(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{2}, codes(3), 0)

	// Activate out of slot order: slot 2 first, then slot 0, then slot 1.
	for hour, idx := range []int{2, 0, 1} {
		activated := time.Date(2026, 2, 1, hour, 0, 0, 0, time.UTC)
		card.Stamps[idx].IsActive = true
		card.Stamps[idx].ActivatedAt = &activated
	}
	RecomputeStages(card)

	if _, err := e.Redeem(card, "user-1", true); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	// Oldest activations were slots 2 and 0; slot 1 survives.
	if card.Stamps[2].IsActive || card.Stamps[0].IsActive {
		t.Error("Expected the two oldest activations to be consumed")
	}
	if !card.Stamps[1].IsActive {
		t.Error("Expected the newest activation to remain active")
	}
}

func TestRedeem_InsufficientLeavesCardUnchanged(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, codes(5), 3)

	_, err := e.Redeem(card, "user-1", false)
	if err != ErrInsufficientStamps {
		t.Fatalf("Expected ErrInsufficientStamps, got %v", err)
	}

	if got := ActiveStampCount(card); got != 3 {
		t.Errorf("Expected stamps untouched (3 active), got %d", got)
	}
	if card.Stages[0].Current != 3 {
		t.Errorf("Expected current unchanged at 3, got %d", card.Stages[0].Current)
	}
	for i := range card.Stamps {
		if card.Stamps[i].UsedAt != nil {
			t.Errorf("Expected no stamp marked used, but stamp %d is", i)
		}
	}
}

func TestRedeem_FullScenario(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, []string{"111111", "222222", "333333", "456789", "567890"}, 3)

	if err := e.ActivateStamp(card, "456789", "user-1"); err != nil {
		t.Fatalf("Failed to activate 456789: %v", err)
	}
	if err := e.ActivateStamp(card, "567890", "user-1"); err != nil {
		t.Fatalf("Failed to activate 567890: %v", err)
	}

	receipt, err := e.Redeem(card, "user-1", false)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	if receipt.StageIndex != 0 {
		t.Errorf("Expected stage index 0, got %d", receipt.StageIndex)
	}
	if receipt.Reward != "reward-0" {
		t.Errorf("Expected reward-0, got %s", receipt.Reward)
	}
	if receipt.CardID != card.ID {
		t.Errorf("Expected receipt to reference card %s, got %s", card.ID, receipt.CardID)
	}
	if got := ActiveStampCount(card); got != 0 {
		t.Errorf("Expected all 5 active stamps consumed, got %d active", got)
	}
	if card.Stages[0].Current != 0 {
		t.Errorf("Expected current=0 after full redemption, got %d", card.Stages[0].Current)
	}
}

func TestUseGiftCard(t *testing.T) {
	e := testEngine()
	card := &models.LoyaltyCard{
		ID:       "gift-1",
		Type:     models.CardTypeGift,
		OwnerID:  "user-1",
		IsActive: true,
		GiftType: "free_drink",
	}

	if err := e.UseGiftCard(card, "user-1"); err != nil {
		t.Fatalf("First use failed: %v", err)
	}
	if card.UsedAt == nil {
		t.Fatal("Expected used_at to be set")
	}

	if err := e.UseGiftCard(card, "user-1"); err != ErrGiftCardUsed {
		t.Errorf("Expected ErrGiftCardUsed on second use, got %v", err)
	}
}

func TestUseGiftCard_RewardCardRejected(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, codes(5), 5)

	if err := e.UseGiftCard(card, "user-1"); err != ErrInvalidCardType {
		t.Errorf("Expected ErrInvalidCardType, got %v", err)
	}
}

func TestClaim_AtMostOnce(t *testing.T) {
	e := testEngine()
	card := &models.LoyaltyCard{ID: "c1", Type: models.CardTypeGift, IsActive: true}

	if err := e.Claim(card, "user-1"); err != nil {
		t.Fatalf("First claim failed: %v", err)
	}
	if card.OwnerID != "user-1" || card.ActivatedAt == nil {
		t.Fatal("Expected owner and activated_at to be set")
	}

	if err := e.Claim(card, "user-2"); err != ErrCardNotFound {
		t.Errorf("Expected ErrCardNotFound on second claim, got %v", err)
	}
	if card.OwnerID != "user-1" {
		t.Errorf("Expected owner to remain user-1, got %s", card.OwnerID)
	}
}

func TestActivateStamp_InactiveCard(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, codes(5), 3)
	card.IsActive = false

	if err := e.ActivateStamp(card, card.Stamps[3].Code, "user-1"); err != ErrCardNotFound {
		t.Errorf("Expected ErrCardNotFound for inactive card, got %v", err)
	}
	if got := ActiveStampCount(card); got != 3 {
		t.Errorf("Expected stamps untouched (3 active), got %d", got)
	}
}

func TestRedeem_InactiveCard(t *testing.T) {
	e := testEngine()
	card := rewardCard([]int{5}, codes(6), 5)
	card.IsActive = false

	if _, err := e.Redeem(card, "user-1", false); err != ErrCardNotFound {
		t.Errorf("Expected ErrCardNotFound for inactive card, got %v", err)
	}
	if got := ActiveStampCount(card); got != 5 {
		t.Errorf("Expected stamps untouched (5 active), got %d", got)
	}
	for i := range card.Stamps {
		if card.Stamps[i].UsedAt != nil {
			t.Errorf("Expected no stamp marked used, but stamp %d is", i)
		}
	}
}

func TestClaim_InactiveCard(t *testing.T) {
	e := testEngine()
	card := &models.LoyaltyCard{ID: "c1", Type: models.CardTypeGift, IsActive: false}

	if err := e.Claim(card, "user-1"); err != ErrCardNotFound {
		t.Errorf("Expected ErrCardNotFound for inactive card, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	card := &models.LoyaltyCard{ID: "c1", Type: models.CardTypeGift, IsActive: true}

	if err := Discover(card, "user-1"); err != nil {
		t.Errorf("Expected unclaimed card to be discoverable, got %v", err)
	}

	card.OwnerID = "user-1"
	if err := Discover(card, "user-1"); err != nil {
		t.Errorf("Expected owner to discover own card, got %v", err)
	}

	if err := Discover(card, "user-2"); err != ErrAlreadyOwned {
		t.Errorf("Expected ErrAlreadyOwned for other user, got %v", err)
	}

	card.IsActive = false
	if err := Discover(card, "user-1"); err != ErrCardNotFound {
		t.Errorf("Expected ErrCardNotFound for inactive card, got %v", err)
	}
}
