package utils

import (
	"fmt"
	"time"

	"coworking-alliance-backend/pkg/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	now       func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string) *JWTService {
	return NewJWTServiceWithClock(secretKey, time.Now)
}

// NewJWTServiceWithClock 使用指定时钟（测试用）
func NewJWTServiceWithClock(secretKey string, now func() time.Time) *JWTService {
	return &JWTService{secretKey: []byte(secretKey), now: now}
}

func (j *JWTService) sign(p *models.Profile, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := j.now()
	expiry := now.Add(ttl)
	claims := &models.TokenClaims{
		UserID: p.ID,
		Email:  p.Email,
		Role:   p.Role,
		Type:   tokenType,
		Exp:    expiry.Unix(),
		Iat:    now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate %s token: %w", tokenType, err)
	}
	return signed, expiry, nil
}

// GenerateTokenPair 生成访问令牌（15分钟）和刷新令牌（7天），expiresIn 为访问令牌剩余秒数
func (j *JWTService) GenerateTokenPair(p *models.Profile) (accessToken, refreshToken string, expiresIn int64, err error) {
	accessToken, _, err = j.sign(p, TokenTypeAccess, AccessTokenTTL)
	if err != nil {
		return "", "", 0, err
	}
	refreshToken, _, err = j.sign(p, TokenTypeRefresh, RefreshTokenTTL)
	if err != nil {
		return "", "", 0, err
	}
	return accessToken, refreshToken, int64(AccessTokenTTL / time.Second), nil
}

// GenerateAccessToken 生成访问令牌
func (j *JWTService) GenerateAccessToken(p *models.Profile) (string, int64, error) {
	token, _, err := j.sign(p, TokenTypeAccess, AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return token, int64(AccessTokenTTL / time.Second), nil
}

// ValidateToken 验证令牌签名和有效期
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if j.now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}
	return claims, nil
}

// ValidateAccessToken 只接受 access 令牌
func (j *JWTService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken 验证刷新令牌
func (j *JWTService) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, TokenTypeRefresh)
}

func (j *JWTService) validateType(tokenString, expected string) (*models.TokenClaims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != expected {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", expected, claims.Type)
	}
	return claims, nil
}

// ExtractUserFromToken 从访问令牌中提取当前用户
func (j *JWTService) ExtractUserFromToken(tokenString string) (*models.AuthUser, error) {
	claims, err := j.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &models.AuthUser{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}
