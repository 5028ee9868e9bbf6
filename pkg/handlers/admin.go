package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"coworking-alliance-backend/pkg/database"
	"coworking-alliance-backend/pkg/middleware"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/services"
	"coworking-alliance-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// record 与服务层 Collection 的类型约束一致
type record[T any] interface {
	*T
	models.Record
}

// resource 一张内容表的 REST 处理器
type resource[T any, PT record[T]] struct {
	coll *services.Collection[T, PT]
	// filters 允许作为 ?col=value 等值过滤的列
	filters map[string]bool
}

// MountCollection 在 r 上注册 path 下的列表、读取、创建、修改和删除路由
func MountCollection[T any, PT record[T]](r chiRoute.Router, path string, coll *services.Collection[T, PT], filters ...string) {
	res := &resource[T, PT]{coll: coll, filters: map[string]bool{}}
	for _, f := range filters {
		res.filters[f] = true
	}

	r.Get(path, res.list)
	r.Post(path, res.create)
	r.Get(path+"/{id}", res.get)
	r.Put(path+"/{id}", res.update)
	r.Patch(path+"/{id}", res.update)
	r.Delete(path+"/{id}", res.remove)
}

// filterValue 查询参数转为过滤值；true/false 按布尔列处理
func filterValue(raw string) interface{} {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

func (res *resource[T, PT]) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	f := database.Filter{
		Eq:      map[string]interface{}{},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   limit,
		Offset:  offset,
	}
	for key, values := range r.URL.Query() {
		if res.filters[key] && len(values) > 0 && values[0] != "" {
			f.Eq[key] = filterValue(values[0])
		}
	}

	rows, err := res.coll.List(r.Context(), f)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteListResponse(w, rows, len(rows), limit, offset)
}

func (res *resource[T, PT]) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := res.coll.Get(r.Context(), id)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, rec)
}

func (res *resource[T, PT]) create(w http.ResponseWriter, r *http.Request) {
	rec := PT(new(T))
	if err := decodeBody(r, rec); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := res.coll.Create(r.Context(), rec); err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, rec)
}

// update 请求体中出现的字段覆盖现有记录，未出现的保持不变
func (res *resource[T, PT]) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch json.RawMessage
	if err := decodeBody(r, &patch); err != nil {
		writeAPIError(w, r, err)
		return
	}

	rec, err := res.coll.Update(r.Context(), id, func(rec PT) error {
		if err := json.Unmarshal(patch, rec); err != nil {
			return services.ErrValidation
		}
		return nil
	})
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, rec)
}

func (res *resource[T, PT]) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := res.coll.Delete(r.Context(), id); err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"id": id, "message": "Deleted"})
}

// pathID 校验 {id} 是 UUID；admin_tokens 单例不走这里
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chiRoute.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid id")
		return "", false
	}
	return id, true
}

// ============================================================================
// 审核、设置与日历
// ============================================================================

// AdminHandler 管理后台中不属于通用 CRUD 的操作
type AdminHandler struct {
	svc *services.Services
}

// NewAdminHandler 创建管理后台处理器
func NewAdminHandler(svc *services.Services) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// ReviewApplication POST /api/admin/applications/{id}/review
func (h *AdminHandler) ReviewApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.ReviewInput
	if err := decodeBody(r, &in); err != nil {
		writeAPIError(w, r, err)
		return
	}
	in.ApplicationID = id

	user, _ := middleware.GetUserFromContext(r.Context())
	app, err := h.svc.Applications.Review(r.Context(), user, in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, app)
}

// ModerateSpace POST /api/admin/spaces/{id}/moderate
func (h *AdminHandler) ModerateSpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.ModerationInput
	if err := decodeBody(r, &in); err != nil {
		writeAPIError(w, r, err)
		return
	}
	in.SpaceID = id

	space, err := h.svc.Spaces.Moderate(r.Context(), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, space)
}

// GetSettings GET /api/admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings.Get(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, settings)
}

// UpdateSettings PUT /api/admin/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in services.SettingsUpdate
	if err := decodeBody(r, &in); err != nil {
		writeAPIError(w, r, err)
		return
	}
	settings, err := h.svc.Settings.Update(r.Context(), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, settings)
}

// GoogleAuthURL GET /api/admin/google/auth-url?state=
func (h *AdminHandler) GoogleAuthURL(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = uuid.NewString()
	}
	url, err := h.svc.Settings.GoogleAuthURL(state)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]string{"url": url, "state": state})
}

// ExchangeGoogle POST /api/admin/google/exchange
func (h *AdminHandler) ExchangeGoogle(w http.ResponseWriter, r *http.Request) {
	var in services.ExchangeInput
	if err := decodeBody(r, &in); err != nil {
		writeAPIError(w, r, err)
		return
	}
	settings, err := h.svc.Settings.ExchangeGoogleCode(r.Context(), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, settings)
}

// DisconnectGoogle POST /api/admin/google/disconnect
func (h *AdminHandler) DisconnectGoogle(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings.DisconnectCalendar(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, settings)
}

// SyncCalendar POST /api/admin/calendar/sync
func (h *AdminHandler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Events.SyncCalendar(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, res)
}

// SendEventInvites POST /api/admin/events/{id}/invites
func (h *AdminHandler) SendEventInvites(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.InviteEmailsInput
	if err := decodeBody(r, &in); err != nil {
		writeAPIError(w, r, err)
		return
	}
	in.EventID = id

	res, err := h.svc.Events.SendInvites(r.Context(), in)
	if res == nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, res)
}

// InviteAdmin POST /api/admin/invites (super_admin)
func (h *AdminHandler) InviteAdmin(w http.ResponseWriter, r *http.Request) {
	var in services.InviteInput
	if err := decodeBody(r, &in); err != nil {
		writeAPIError(w, r, err)
		return
	}
	user, _ := middleware.GetUserFromContext(r.Context())
	res, err := h.svc.Admins.Invite(r.Context(), user, in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, res)
}
