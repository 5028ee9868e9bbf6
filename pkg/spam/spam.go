package spam

import (
	"context"
	"regexp"
	"strings"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/rs/zerolog/log"
)

// 检测原因，写入 spam_logs.reason
const (
	ReasonHoneypot        = "honeypot"
	ReasonRecaptchaFailed = "recaptcha_failed"
	ReasonLowScore        = "recaptcha_low_score"
	ReasonMissingToken    = "recaptcha_missing"
	ReasonTooManyLinks    = "too_many_links"
	ReasonBannedKeyword   = "banned_keyword"
)

// MaxLinks 正文中允许出现的链接数上限
const MaxLinks = 3

// linkPattern 一个 URL 记一次：带协议的整段吃掉，其中的 www. 不会再被单独匹配
var linkPattern = regexp.MustCompile(`(?i)(?:https?://|\bwww\.)\S+`)

// DefaultBannedKeywords 常见的垃圾内容关键词
var DefaultBannedKeywords = []string{
	"viagra",
	"cialis",
	"casino",
	"crypto giveaway",
	"bitcoin doubler",
	"payday loan",
	"seo services",
	"buy backlinks",
	"porn",
}

// Submission 一次公开表单提交
type Submission struct {
	ActionType     string
	Identifier     string
	Honeypot       string
	RecaptchaToken string
	// Content 需要做内容检查的自由文本字段
	Content   []string
	Payload   map[string]interface{}
	IPAddress string
	UserAgent string
}

// Verdict 检测结论
type Verdict struct {
	Spam   bool     `json:"spam"`
	Reason string   `json:"reason,omitempty"`
	Score  *float64 `json:"score,omitempty"`
}

// Checker 按顺序执行 honeypot、reCAPTCHA、内容启发式检查
type Checker struct {
	db       database.DatabaseInterface
	verifier Verifier
	minScore float64
	keywords []string
}

// NewChecker verifier 为 nil 时跳过 reCAPTCHA
func NewChecker(db database.DatabaseInterface, verifier Verifier, minScore float64, keywords []string) *Checker {
	if keywords == nil {
		keywords = DefaultBannedKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Checker{db: db, verifier: verifier, minScore: minScore, keywords: lowered}
}

// Check 返回检测结论；判定为垃圾时写入 spam_logs
func (c *Checker) Check(ctx context.Context, sub Submission) (Verdict, error) {
	verdict := c.evaluate(ctx, sub)
	if !verdict.Spam {
		return verdict, nil
	}

	entry := &models.SpamLog{
		Identifier: sub.Identifier,
		ActionType: sub.ActionType,
		Reason:     verdict.Reason,
		Payload:    models.JSONMap(sub.Payload),
		IPAddress:  sub.IPAddress,
		UserAgent:  sub.UserAgent,
	}
	if err := c.db.Insert(ctx, entry); err != nil {
		return verdict, err
	}

	log.Warn().
		Str("identifier", sub.Identifier).
		Str("action", sub.ActionType).
		Str("reason", verdict.Reason).
		Msg("🛑 Spam submission detected")
	return verdict, nil
}

func (c *Checker) evaluate(ctx context.Context, sub Submission) Verdict {
	if strings.TrimSpace(sub.Honeypot) != "" {
		return Verdict{Spam: true, Reason: ReasonHoneypot}
	}

	if c.verifier != nil {
		if sub.RecaptchaToken == "" {
			return Verdict{Spam: true, Reason: ReasonMissingToken}
		}
		result, err := c.verifier.Verify(ctx, sub.RecaptchaToken, sub.IPAddress)
		if err != nil {
			// Google 不可用时放行，只记录
			log.Warn().Err(err).Str("action", sub.ActionType).Msg("⚠️  reCAPTCHA verification unavailable")
		} else {
			score := result.Score
			if !result.Success {
				return Verdict{Spam: true, Reason: ReasonRecaptchaFailed, Score: &score}
			}
			if score < c.minScore {
				return Verdict{Spam: true, Reason: ReasonLowScore, Score: &score}
			}
		}
	}

	text := strings.Join(sub.Content, "\n")
	if len(linkPattern.FindAllStringIndex(text, -1)) > MaxLinks {
		return Verdict{Spam: true, Reason: ReasonTooManyLinks}
	}
	lower := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return Verdict{Spam: true, Reason: ReasonBannedKeyword}
		}
	}
	return Verdict{}
}
