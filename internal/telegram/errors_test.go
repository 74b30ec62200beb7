package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{
			name: "429 is rate limited",
			err:  &tgbotapi.Error{Code: 429, Message: "Too Many Requests"},
			want: FailureRateLimited,
		},
		{
			name: "502 is transient",
			err:  &tgbotapi.Error{Code: 502, Message: "Bad Gateway"},
			want: FailureTransient,
		},
		{
			name: "400 is permanent",
			err:  &tgbotapi.Error{Code: 400, Message: "Bad Request: message thread not found"},
			want: FailurePermanent,
		},
		{
			name: "403 is permanent",
			err:  &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was kicked"},
			want: FailurePermanent,
		},
		{
			name: "wrapped api error still classified",
			err:  fmt.Errorf("copy message: %w", &tgbotapi.Error{Code: 400}),
			want: FailurePermanent,
		},
		{
			name: "deadline exceeded is transient",
			err:  context.DeadlineExceeded,
			want: FailureTransient,
		},
		{
			name: "plain network error is transient",
			err:  errors.New("dial tcp: connection refused"),
			want: FailureTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	err := &tgbotapi.Error{
		Code:               429,
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	}

	if got := RetryAfter(fmt.Errorf("post: %w", err)); got != 7*time.Second {
		t.Errorf("RetryAfter() = %v, want 7s", got)
	}

	if got := RetryAfter(errors.New("no hint")); got != 0 {
		t.Errorf("RetryAfter() without hint = %v, want 0", got)
	}
}
