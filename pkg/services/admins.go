package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/notify"
	"coworking-alliance-backend/pkg/ratelimit"
	"coworking-alliance-backend/pkg/utils"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	// InviteTTL 邀请链接有效期
	InviteTTL = 7 * 24 * time.Hour
	// MinPasswordLength 管理员密码最短长度
	MinPasswordLength = 8
)

// InviteInput invite-admin 请求体
type InviteInput struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
}

// InviteResult 邀请结果，不包含 token 本身
type InviteResult struct {
	Profile   *models.Profile `json:"profile"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// AdminService 管理员邀请、登录、令牌刷新
type AdminService struct {
	db       database.DatabaseInterface
	notifier *notify.Notifier
	jwt      *utils.JWTService
	limiter  *ratelimit.Limiter
	profiles *Collection[models.Profile, *models.Profile]
	baseURL  string
	now      func() time.Time
}

// Invite 只有 super_admin 可以邀请；一次性 token 以哈希保存并通过邮件发出
func (s *AdminService) Invite(ctx context.Context, inviter *models.AuthUser, in InviteInput) (*InviteResult, error) {
	if inviter == nil || !inviter.Role.AtLeast(models.RoleSuperAdmin) {
		return nil, fmt.Errorf("only super admins can invite: %w", ErrForbidden)
	}

	role := models.RoleAdmin
	if in.Role != "" {
		r, ok := models.ParseRole(in.Role)
		if !ok || r == models.RoleMember {
			return nil, invalidf("role must be editor, admin or super_admin")
		}
		role = r
	}
	email, err := requireEmail("email", in.Email)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.FindOne(ctx, map[string]interface{}{"email": email})
	switch {
	case err == nil:
		profile, err = s.profiles.Update(ctx, profile.ID, func(p *models.Profile) error {
			p.Role = role
			if p.FullName == "" {
				p.FullName = strings.TrimSpace(in.FullName)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	case errors.Is(err, ErrNotFound):
		profile = &models.Profile{Email: email, Role: role, FullName: strings.TrimSpace(in.FullName)}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	token, err := utils.GenerateURLToken(32)
	if err != nil {
		return nil, err
	}
	expires := s.now().UTC().Add(InviteTTL)

	cred, err := database.First[models.Credential](ctx, s.db, database.Where(map[string]interface{}{"profile_id": profile.ID}))
	switch {
	case err == nil:
		cred.InviteTokenHash = utils.HashToken(token)
		cred.InviteExpiresAt = &expires
		if err := s.db.Update(ctx, cred); err != nil {
			return nil, storeError(err, "update credential")
		}
	case errors.Is(err, database.ErrNotFound):
		cred = &models.Credential{
			ProfileID:       profile.ID,
			InviteTokenHash: utils.HashToken(token),
			InviteExpiresAt: &expires,
		}
		if err := s.db.Insert(ctx, cred); err != nil {
			return nil, storeError(err, "create credential")
		}
	default:
		return nil, storeError(err, "load credential")
	}

	inviteURL := fmt.Sprintf("%s/admin/accept-invite?token=%s", s.baseURL, url.QueryEscape(token))
	log.Info().Str("email", email).Str("role", string(role)).Str("invited_by", inviter.Email).Msg("📨 Admin invited")

	_ = s.notifier.SendTo(ctx, email, "You're invited to the Coworking Alliance admin", notify.TmplAdminInvite,
		map[string]interface{}{"Role": role, "InviteURL": inviteURL, "ExpiresAt": expires})
	return &InviteResult{Profile: profile, ExpiresAt: expires}, nil
}

// AcceptInvite 校验一次性 token，设置密码并直接登录
func (s *AdminService) AcceptInvite(ctx context.Context, in models.AcceptInviteRequest) (*models.LoginResponse, error) {
	if strings.TrimSpace(in.Token) == "" {
		return nil, ErrInviteExpired
	}
	if len(in.Password) < MinPasswordLength {
		return nil, invalidf("password must be at least %d characters", MinPasswordLength)
	}

	cred, err := database.First[models.Credential](ctx, s.db, database.Where(map[string]interface{}{
		"invite_token_hash": utils.HashToken(in.Token),
	}))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInviteExpired
	}
	if err != nil {
		return nil, storeError(err, "load credential")
	}
	now := s.now().UTC()
	if cred.InviteExpiresAt == nil || now.After(*cred.InviteExpiresAt) {
		return nil, ErrInviteExpired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	cred.PasswordHash = string(hash)
	cred.InviteTokenHash = ""
	cred.InviteExpiresAt = nil
	cred.AcceptedAt = &now
	if err := s.db.Update(ctx, cred); err != nil {
		return nil, storeError(err, "update credential")
	}

	profile, err := s.profiles.Get(ctx, cred.ProfileID)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.FullName); name != "" && name != profile.FullName {
		profile, err = s.profiles.Update(ctx, profile.ID, func(p *models.Profile) error {
			p.FullName = name
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	log.Info().Str("email", profile.Email).Msg("🎉 Admin invitation accepted")
	return s.issue(profile)
}

// loginKey 登录限流按 (IP, 邮箱) 计数，别处的失败尝试锁不住这个管理员
func loginKey(email, ip string) string {
	if ip == "" {
		return email
	}
	return ip + "|" + email
}

// Login 邮箱密码登录；成功后清零计数，只有连续失败才会触发封禁
func (s *AdminService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, invalidf("email and password are required")
	}

	key := loginKey(email, strings.TrimSpace(req.IPAddress))
	if s.limiter != nil {
		d, err := s.limiter.Attempt(ctx, key, "login")
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			return nil, &RateLimitError{Decision: d}
		}
	}

	profile, err := s.profiles.FindOne(ctx, map[string]interface{}{"email": email})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	cred, err := database.First[models.Credential](ctx, s.db, database.Where(map[string]interface{}{"profile_id": profile.ID}))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeError(err, "load credential")
	}
	if cred.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)) != nil {
		log.Warn().Str("email", email).Msg("🔒 Failed admin login")
		return nil, ErrInvalidCredentials
	}
	if !profile.Role.AtLeast(models.RoleEditor) {
		return nil, fmt.Errorf("%s has no admin access: %w", email, ErrForbidden)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, key, "login"); err != nil {
			log.Warn().Err(err).Str("email", email).Msg("⚠️  Failed to reset login rate limit")
		}
	}

	log.Info().Str("email", email).Str("role", string(profile.Role)).Msg("🔓 Admin logged in")
	return s.issue(profile)
}

// Refresh 用刷新令牌换新的令牌对；重新读取 profile 以反映角色变更
func (s *AdminService) Refresh(ctx context.Context, refreshToken string) (*models.LoginResponse, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidCredentials)
	}
	profile, err := s.profiles.Get(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !profile.Role.AtLeast(models.RoleEditor) {
		return nil, fmt.Errorf("%s has no admin access: %w", profile.Email, ErrForbidden)
	}
	return s.issue(profile)
}

// Me 当前登录用户的 profile
func (s *AdminService) Me(ctx context.Context, user *models.AuthUser) (*models.Profile, error) {
	return s.profiles.Get(ctx, user.ID)
}

func (s *AdminService) issue(p *models.Profile) (*models.LoginResponse, error) {
	access, refresh, expiresIn, err := s.jwt.GenerateTokenPair(p)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Profile:      *p,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	}, nil
}
