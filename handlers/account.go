package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"example.com/keeptend/entitlement"
	"example.com/keeptend/usage"
)

type PurchaseCommand struct {
	Receipt        string `json:"receipt"`
	Platform       string `json:"platform"`
	SubscriptionID string `json:"subscriptionId"`
}

// AccountHandler applies purchases to the device user
type AccountHandler struct {
	tracker   *usage.Tracker
	validator entitlement.Validator
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(tracker *usage.Tracker, validator entitlement.Validator) *AccountHandler {
	return &AccountHandler{tracker: tracker, validator: validator}
}

// ApplyPurchase validates the receipt and upgrades the user when it is valid.
// An invalid receipt returns false without committing anything.
func (h *AccountHandler) ApplyPurchase(ctx context.Context, cmd PurchaseCommand) (bool, error) {
	valid, err := h.validator.Validate(ctx, entitlement.Receipt{Data: cmd.Receipt, Platform: cmd.Platform})
	if err != nil {
		return false, err
	}
	if !valid {
		log.Warn().Str("platform", cmd.Platform).Msg("Purchase receipt rejected")
		return false, nil
	}

	if err := h.tracker.Upgrade(ctx, cmd.SubscriptionID); err != nil {
		return true, fmt.Errorf("failed to apply purchase: %w", err)
	}
	return true, nil
}
