package loyalty

import "fmt"

// Sentinel failures returned by the card engine. None of them leaves a card
// partially mutated; every check runs before the first write.
var (
	ErrCardNotFound       = fmt.Errorf("loyalty: card not found")
	ErrAlreadyOwned       = fmt.Errorf("loyalty: card already claimed by another user")
	ErrInvalidOrUsedCode  = fmt.Errorf("loyalty: code does not match any unused stamp")
	ErrInsufficientStamps = fmt.Errorf("loyalty: not enough active stamps for the first stage")
	ErrNoRedeemableStage  = fmt.Errorf("loyalty: no redeemable stage")
	ErrInvalidCardType    = fmt.Errorf("loyalty: operation not valid for this card type")
	ErrGiftCardUsed       = fmt.Errorf("loyalty: gift card already used")
	ErrDuplicateCode      = fmt.Errorf("loyalty: an active unclaimed card with this code already exists")
)
