package models

import "time"

// RateLimit 固定窗口计数，(identifier, action_type) 唯一
type RateLimit struct {
	Base
	Identifier    string     `json:"identifier" db:"identifier"`
	ActionType    string     `json:"action_type" db:"action_type"`
	AttemptCount  int        `json:"attempt_count" db:"attempt_count"`
	WindowStart   time.Time  `json:"window_start" db:"window_start"`
	BlockedUntil  *time.Time `json:"blocked_until" db:"blocked_until"`
	LastAttemptAt *time.Time `json:"last_attempt_at" db:"last_attempt_at"`
}

func (*RateLimit) TableName() string { return "rate_limits" }

// SpamLog 每一次垃圾提交检测都记一行
type SpamLog struct {
	Base
	Identifier string  `json:"identifier" db:"identifier"`
	ActionType string  `json:"action_type" db:"action_type"`
	Reason     string  `json:"reason" db:"reason"`
	Payload    JSONMap `json:"payload" db:"payload"`
	IPAddress  string  `json:"ip_address" db:"ip_address"`
	UserAgent  string  `json:"user_agent" db:"user_agent"`
}

func (*SpamLog) TableName() string { return "spam_logs" }
