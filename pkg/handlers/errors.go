package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"coworking-alliance-backend/pkg/services"
	"coworking-alliance-backend/pkg/utils"

	"github.com/rs/zerolog/hlog"
)

// errorStatus 服务层错误到 HTTP 状态码和错误代码的映射
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, utils.ErrEmptyBody):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, services.ErrSpamDetected):
		return http.StatusBadRequest, "SPAM_DETECTED"
	case errors.Is(err, services.ErrCalendarNotConnected):
		return http.StatusBadRequest, "CALENDAR_NOT_CONNECTED"
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInviteExpired):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, services.ErrAlreadyReviewed), errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	}
	return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
}

// publicMessage 500 不暴露内部错误；垃圾提交只给出通用提示
func publicMessage(status int, code string, err error) string {
	switch {
	case status >= 500:
		return "Internal server error occurred"
	case code == "SPAM_DETECTED":
		return "Submission rejected"
	}
	return err.Error()
}

// writeAPIError /api 路由的错误响应
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *services.RateLimitError
	if errors.As(err, &rle) {
		utils.WriteRateLimitedResponse(w, rle.Decision.RetryAfter, rle.BlockedUntil())
		return
	}

	status, code := errorStatus(err)
	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("❌ Request failed")
	}
	utils.WriteErrorResponseWithCode(w, status, code, publicMessage(status, code, err), "")
}

// writeFunctionError /functions/v1 路由的错误响应 {error}
func writeFunctionError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *services.RateLimitError
	if errors.As(err, &rle) {
		utils.WriteFunctionRateLimited(w, rle.Decision.RetryAfter, rle.BlockedUntil())
		return
	}

	status, code := errorStatus(err)
	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("❌ Function failed")
	}
	utils.WriteFunctionError(w, status, publicMessage(status, code, err))
}

// decodeBody 解析 JSON 请求体；格式错误归为校验错误，超出大小保持原错误
func decodeBody(r *http.Request, v interface{}) error {
	err := utils.ParseJSONBody(r, v)
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: %v", services.ErrValidation, err)
}
