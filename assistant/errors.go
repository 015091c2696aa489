package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a text generation failure
type Kind string

const (
	KindNeedsConfiguration Kind = "needs_configuration"
	KindQuota              Kind = "quota"
	KindNetwork            Kind = "network"
	KindUnknown            Kind = "unknown"
)

// ServiceError is a failed call to the generation service
type ServiceError struct {
	Kind Kind
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("assistant: %s", e.Kind)
	}
	return fmt.Sprintf("assistant: %s: %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown in place of a reply
func (e *ServiceError) UserMessage() string {
	return UserMessage(e.Kind)
}

// UserMessage returns the user-facing text for a failure kind
func UserMessage(kind Kind) string {
	switch kind {
	case KindNeedsConfiguration:
		return "AI configuration not found or invalid. Please check your API key in Settings."
	case KindQuota:
		return "API quota exceeded. Please check your account billing."
	case KindNetwork:
		return "Network error. Please check your internet connection."
	default:
		return "Sorry, I couldn't respond right now. Please try again."
	}
}

// KindOf returns the failure kind of err, KindUnknown when err is not a
// ServiceError
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// classifyStatus maps an HTTP status of the generation service to a kind
func classifyStatus(status int) Kind {
	switch status {
	case 401, 403:
		return KindNeedsConfiguration
	case 402, 429:
		return KindQuota
	default:
		return KindUnknown
	}
}

// isNetworkError reports transport failures and deadlines
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
