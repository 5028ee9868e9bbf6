package handlers

import (
	"net/http"
	"strings"

	"coworking-alliance-backend/pkg/middleware"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/services"
	"coworking-alliance-backend/pkg/utils"
)

// AuthHandler 管理后台登录相关
type AuthHandler struct {
	svc *services.Services
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(svc *services.Services) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	req.IPAddress = middleware.ClientIP(r)

	resp, err := h.svc.Admins.Login(r.Context(), req)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, resp)
}

// RefreshToken POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.WriteBadRequestResponse(w, "Refresh token is required")
		return
	}

	resp, err := h.svc.Admins.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, resp)
}

// AcceptInvite POST /api/auth/accept-invite
func (h *AuthHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req models.AcceptInviteRequest
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}

	resp, err := h.svc.Admins.AcceptInvite(r.Context(), req)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, resp)
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	profile, err := h.svc.Admins.Me(r.Context(), user)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, profile)
}
