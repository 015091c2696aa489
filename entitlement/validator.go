package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/keeptend/utils"
)

// ErrValidation wraps failures to reach or understand the validator service.
// An invalid receipt is not an error.
var ErrValidation = errors.New("purchase validation failed")

// ErrNotConfigured is returned when no validator url is set
var ErrNotConfigured = errors.New("purchase validation is not configured")

// Receipt is a store purchase receipt
type Receipt struct {
	Data     string `json:"receipt" validate:"required,notblank"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
}

// Validator checks purchase receipts
type Validator interface {
	Validate(ctx context.Context, receipt Receipt) (bool, error)
}

// HTTPValidator posts receipts to a validation endpoint
type HTTPValidator struct {
	url    string
	client *http.Client
}

type validationResponse struct {
	Valid bool `json:"valid"`
}

// NewHTTPValidator creates a validator for url
func NewHTTPValidator(url string, timeout time.Duration) *HTTPValidator {
	return &HTTPValidator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Validate reports whether the receipt grants a subscription
func (v *HTTPValidator) Validate(ctx context.Context, receipt Receipt) (bool, error) {
	if v.url == "" {
		return false, ErrNotConfigured
	}
	if err := utils.ValidateStruct(receipt); err != nil {
		return false, fmt.Errorf("invalid receipt: %w", err)
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		return false, fmt.Errorf("failed to marshal receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return false, fmt.Errorf("%w: status %d: %s", ErrValidation, res.StatusCode, bytes.TrimSpace(msg))
	}

	var out validationResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: malformed response: %v", ErrValidation, err)
	}

	log.Info().
		Str("platform", receipt.Platform).
		Bool("valid", out.Valid).
		Msg("Receipt validated")
	return out.Valid, nil
}
