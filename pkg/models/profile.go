package models

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role 后台角色，权限从低到高：member < editor < admin < super_admin
type Role string

const (
	RoleMember     Role = "member"
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) rank() int {
	switch r {
	case RoleEditor:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// ParseRole 解析角色字符串，未知值返回 false
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleMember, RoleEditor, RoleAdmin, RoleSuperAdmin:
		return r, true
	}
	return "", false
}

// Profile represents a person known to the system (members and admins)
type Profile struct {
	Base
	Email     string `json:"email" db:"email"`
	FullName  string `json:"full_name" db:"full_name"`
	Role      Role   `json:"role" db:"role"`
	Phone     string `json:"phone" db:"phone"`
	Company   string `json:"company" db:"company"`
	AvatarURL string `json:"avatar_url" db:"avatar_url"`
}

func (*Profile) TableName() string { return "profiles" }

// Credential 后台登录凭据，单独成表，任何接口都不返回它
type Credential struct {
	Base
	ProfileID       string     `json:"profile_id" db:"profile_id"`
	PasswordHash    string     `json:"password_hash" db:"password_hash"`
	InviteTokenHash string     `json:"invite_token_hash" db:"invite_token_hash"`
	InviteExpiresAt *time.Time `json:"invite_expires_at" db:"invite_expires_at"`
	AcceptedAt      *time.Time `json:"accepted_at" db:"accepted_at"`
}

func (*Credential) TableName() string { return "admin_credentials" }

// LoginRequest represents the request payload for admin login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// IPAddress 由服务端从连接填写，用于按 (IP, 邮箱) 限流
	IPAddress string `json:"-"`
}

// AcceptInviteRequest 接受邀请并设置密码
type AcceptInviteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginResponse represents the response payload for admin login
type LoginResponse struct {
	Profile      Profile `json:"profile"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    int64   `json:"expires_in"`
}

// RefreshTokenRequest represents the request payload for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Type   string `json:"type"` // "access" or "refresh"
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.UserID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// AuthUser 认证中间件放入 context 的当前用户
type AuthUser struct {
	ID    string
	Email string
	Role  Role
}
