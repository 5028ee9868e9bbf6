package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"

	"github.com/rs/zerolog/log"
)

// DefaultFallbackAddress 所有路由都为空时的最终收件人
const DefaultFallbackAddress = "admin@coworkingalliance.org"

// Resolver 管理员通知收件人路由
//
// 顺序：该类别的覆盖列表 → general 覆盖列表 → 所有 super_admin → 兜底地址
type Resolver struct {
	db       database.DatabaseInterface
	fallback string
}

// NewResolver fallback 为空时使用 DefaultFallbackAddress
func NewResolver(db database.DatabaseInterface, fallback string) *Resolver {
	if fallback == "" {
		fallback = DefaultFallbackAddress
	}
	return &Resolver{db: db, fallback: fallback}
}

// Recipients 返回 kind 类通知的收件人，永远非空
func (r *Resolver) Recipients(ctx context.Context, kind models.NotificationKind) ([]string, error) {
	token := &models.AdminToken{}
	token.ID = models.AdminTokenID
	err := r.db.Get(ctx, token)
	switch {
	case err == nil:
		if list := NormalizeAddresses(token.Overrides(kind)); len(list) > 0 {
			return list, nil
		}
		if list := NormalizeAddresses(token.NotifyGeneral); len(list) > 0 {
			return list, nil
		}
	case errors.Is(err, database.ErrNotFound):
	default:
		return nil, fmt.Errorf("load notification settings: %w", err)
	}

	var admins []models.Profile
	if err := r.db.Find(ctx, &admins, database.Filter{
		Eq:      map[string]interface{}{"role": string(models.RoleSuperAdmin)},
		OrderBy: "created_at",
	}); err != nil {
		return nil, fmt.Errorf("load super admins: %w", err)
	}
	emails := make([]string, 0, len(admins))
	for _, p := range admins {
		emails = append(emails, p.Email)
	}
	if list := NormalizeAddresses(emails); len(list) > 0 {
		return list, nil
	}

	log.Debug().Str("kind", string(kind)).Str("fallback", r.fallback).Msg("📭 No configured recipients, using fallback address")
	return []string{r.fallback}, nil
}

// NormalizeAddresses 去空格、小写、校验、去重，保持原有顺序
func NormalizeAddresses(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		addr, ok := NormalizeAddress(raw)
		if !ok || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

// NormalizeAddress 返回规范化的地址；不是合法的裸地址时返回 false
func NormalizeAddress(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	parsed, err := mail.ParseAddress(s)
	if err != nil || parsed.Address != s {
		return "", false
	}
	return s, true
}
