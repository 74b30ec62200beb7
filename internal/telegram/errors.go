package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// FailureKind classifies a transport failure for the retry policy.
type FailureKind int

const (
	// FailureTransient covers network outages and 5xx responses; the
	// attempt may be retried with backoff.
	FailureTransient FailureKind = iota
	// FailureRateLimited is a 429; retry after the hint.
	FailureRateLimited
	// FailurePermanent covers rejected payloads and revoked permissions;
	// never retried.
	FailurePermanent
)

const httpTooManyRequests = 429

// ClassifyError maps a transport error onto the failure taxonomy.
func ClassifyError(err error) FailureKind {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == httpTooManyRequests:
			return FailureRateLimited
		case apiErr.Code >= 500:
			return FailureTransient
		case apiErr.Code >= 400:
			return FailurePermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}

	// Anything we cannot attribute to the remote rejecting the payload is
	// assumed recoverable.
	return FailureTransient
}

// RetryAfter extracts the server-provided wait hint, if any.
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.ResponseParameters.RetryAfter > 0 {
		return time.Duration(apiErr.ResponseParameters.RetryAfter) * time.Second
	}

	return 0
}
