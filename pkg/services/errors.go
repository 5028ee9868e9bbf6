package services

import (
	"errors"
	"fmt"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/ratelimit"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("already exists")
	ErrValidation           = errors.New("validation failed")
	ErrAlreadyReviewed      = errors.New("already reviewed")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrRateLimited          = errors.New("rate limited")
	ErrSpamDetected         = errors.New("submission rejected")
	ErrCalendarNotConnected = errors.New("google calendar is not connected")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInviteExpired        = errors.New("invitation is invalid or expired")
	ErrForbidden            = errors.New("forbidden")
)

// RateLimitError 携带限流决策，errors.Is(err, ErrRateLimited) 为真
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %d attempts, retry after %s", e.Decision.Attempts, e.Decision.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// BlockedUntil returns the end of the active block.
func (e *RateLimitError) BlockedUntil() time.Time {
	if e.Decision.BlockedUntil == nil {
		return time.Time{}
	}
	return *e.Decision.BlockedUntil
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeError 把存储层错误转换为服务层哨兵错误
func storeError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, database.ErrConflict):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
