package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"coworking-alliance-backend/pkg/ratelimit"
	"coworking-alliance-backend/pkg/spam"
)

// SubmissionMeta 每个公开表单都带的反垃圾字段和请求信息
type SubmissionMeta struct {
	Honeypot       string `json:"honeypot,omitempty"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
	IPAddress      string `json:"-"`
	UserAgent      string `json:"-"`
}

// Guard 一次提交的限流与反垃圾检查参数
type Guard struct {
	ActionType string
	// Identifier 为空时使用客户端 IP
	Identifier string
	Meta       SubmissionMeta
	Content    []string
	Payload    interface{}
}

// SubmissionService 公开表单的限流 + 垃圾检测
type SubmissionService struct {
	limiter *ratelimit.Limiter
	spam    *spam.Checker
}

// Check 先计一次限流尝试，再做垃圾检测
func (s *SubmissionService) Check(ctx context.Context, g Guard) (ratelimit.Decision, error) {
	identifier := strings.TrimSpace(g.Identifier)
	if identifier == "" {
		identifier = g.Meta.IPAddress
	}
	if identifier == "" {
		identifier = "unknown"
	}

	decision := ratelimit.Decision{Allowed: true}
	if s.limiter != nil {
		d, err := s.limiter.Attempt(ctx, identifier, g.ActionType)
		if err != nil {
			return d, err
		}
		if !d.Allowed {
			return d, &RateLimitError{Decision: d}
		}
		decision = d
	}

	if s.spam != nil {
		verdict, err := s.spam.Check(ctx, spam.Submission{
			ActionType:     g.ActionType,
			Identifier:     identifier,
			Honeypot:       g.Meta.Honeypot,
			RecaptchaToken: g.Meta.RecaptchaToken,
			Content:        g.Content,
			Payload:        toPayload(g.Payload),
			IPAddress:      g.Meta.IPAddress,
			UserAgent:      g.Meta.UserAgent,
		})
		if err != nil {
			return decision, fmt.Errorf("spam check: %w", err)
		}
		if verdict.Spam {
			return decision, fmt.Errorf("%w (%s)", ErrSpamDetected, verdict.Reason)
		}
	}
	return decision, nil
}

// ValidateInput validate-submission 请求体
type ValidateInput struct {
	SubmissionMeta
	Identifier string                 `json:"identifier"`
	ActionType string                 `json:"actionType"`
	FormData   map[string]interface{} `json:"formData"`
}

// ValidateResult validate-submission 通过时的结果
type ValidateResult struct {
	Allowed   bool `json:"allowed"`
	Attempts  int  `json:"attempts"`
	Remaining int  `json:"remaining"`
}

// Validate 供前端在提交前单独调用
func (s *SubmissionService) Validate(ctx context.Context, in ValidateInput) (*ValidateResult, error) {
	if strings.TrimSpace(in.ActionType) == "" {
		return nil, invalidf("actionType is required")
	}

	keys := make([]string, 0, len(in.FormData))
	for k := range in.FormData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var content []string
	for _, k := range keys {
		if s, ok := in.FormData[k].(string); ok {
			content = append(content, s)
		}
	}

	d, err := s.Check(ctx, Guard{
		ActionType: in.ActionType,
		Identifier: in.Identifier,
		Meta:       in.SubmissionMeta,
		Content:    content,
		Payload:    in.FormData,
	})
	if err != nil {
		return nil, err
	}
	return &ValidateResult{Allowed: true, Attempts: d.Attempts, Remaining: d.Remaining}, nil
}

// toPayload 把提交内容转换为 spam_logs.payload 的 JSON 对象
func toPayload(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
