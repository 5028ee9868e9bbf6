package ratelimit

import (
	"context"
	"fmt"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/rs/zerolog/log"
)

// Policy 固定窗口 + 两级封禁
//
// 每次尝试：窗口已过且未被封禁时计数清零；计数加一；超过 EscalateAfter 封禁 LongLockout；
// 否则超过 MaxAttempts 且当前未被封禁时封禁 Lockout。尝试是否放行只看更新后是否处于封禁中。
type Policy struct {
	MaxAttempts   int
	EscalateAfter int
	Window        time.Duration
	Lockout       time.Duration
	LongLockout   time.Duration
}

// DefaultPolicy 5 次 / 15 分钟，超限封 30 分钟，超过 10 次封 1 小时
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		EscalateAfter: 10,
		Window:        15 * time.Minute,
		Lockout:       30 * time.Minute,
		LongLockout:   time.Hour,
	}
}

// Decision 一次尝试的结果
type Decision struct {
	Allowed      bool
	Attempts     int
	Remaining    int
	BlockedUntil *time.Time
	RetryAfter   time.Duration
}

// Apply 在 rl 上记录一次发生在 now 的尝试
func (p Policy) Apply(rl *models.RateLimit, now time.Time) Decision {
	now = now.UTC()
	wasBlocked := isBlocked(rl, now)

	if !wasBlocked && (rl.WindowStart.IsZero() || now.Sub(rl.WindowStart) >= p.Window) {
		rl.AttemptCount = 0
		rl.WindowStart = now
		rl.BlockedUntil = nil
	}

	rl.AttemptCount++
	rl.LastAttemptAt = &now

	switch {
	case rl.AttemptCount > p.EscalateAfter:
		until := now.Add(p.LongLockout)
		rl.BlockedUntil = &until
	case rl.AttemptCount > p.MaxAttempts && !wasBlocked:
		until := now.Add(p.Lockout)
		rl.BlockedUntil = &until
	}

	d := Decision{Attempts: rl.AttemptCount}
	if isBlocked(rl, now) {
		until := *rl.BlockedUntil
		d.BlockedUntil = &until
		d.RetryAfter = until.Sub(now)
		return d
	}
	d.Allowed = true
	if remaining := p.MaxAttempts - rl.AttemptCount; remaining > 0 {
		d.Remaining = remaining
	}
	return d
}

func isBlocked(rl *models.RateLimit, now time.Time) bool {
	return rl.BlockedUntil != nil && now.Before(*rl.BlockedUntil)
}

// Limiter 以 rate_limits 表为存储的限流器
type Limiter struct {
	db     database.DatabaseInterface
	policy Policy
	now    func() time.Time
}

// NewLimiter 创建限流器，now 为 nil 时使用 time.Now
func NewLimiter(db database.DatabaseInterface, policy Policy, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{db: db, policy: policy, now: now}
}

// Policy returns the active policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Attempt 记录一次 (identifier, actionType) 尝试并返回是否放行
func (l *Limiter) Attempt(ctx context.Context, identifier, actionType string) (Decision, error) {
	var decision Decision
	_, err := l.db.UpsertRateLimit(ctx, identifier, actionType, func(rl *models.RateLimit) error {
		decision = l.policy.Apply(rl, l.now())
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s/%s: %w", identifier, actionType, err)
	}
	if !decision.Allowed {
		log.Warn().
			Str("identifier", identifier).
			Str("action", actionType).
			Int("attempts", decision.Attempts).
			Time("blocked_until", *decision.BlockedUntil).
			Msg("🚫 Rate limit exceeded")
	}
	return decision, nil
}

// Reset 清零 (identifier, actionType) 的计数和封禁，例如登录成功之后
func (l *Limiter) Reset(ctx context.Context, identifier, actionType string) error {
	_, err := l.db.UpsertRateLimit(ctx, identifier, actionType, func(rl *models.RateLimit) error {
		rl.AttemptCount = 0
		rl.WindowStart = l.now().UTC()
		rl.BlockedUntil = nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset rate limit %s/%s: %w", identifier, actionType, err)
	}
	return nil
}
