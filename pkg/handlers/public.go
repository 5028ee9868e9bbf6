package handlers

import (
	"net/http"
	"strconv"

	"coworking-alliance-backend/pkg/services"
	"coworking-alliance-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PublicHandler 营销站点读取的公开内容
type PublicHandler struct {
	svc *services.Services
}

func NewPublicHandler(svc *services.Services) *PublicHandler {
	return &PublicHandler{svc: svc}
}

func page(r *http.Request) (limit, offset int) {
	return utils.GetQueryInt(r, "limit", defaultPageSize, maxPageSize), utils.GetQueryInt(r, "offset", 0, 0)
}

// GET /api/public/spaces?city=&limit=&offset=
func (h *PublicHandler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	spaces, err := h.svc.Content.PublicSpaces(r.Context(), r.URL.Query().Get("city"), limit, offset)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteListResponse(w, spaces, len(spaces), limit, offset)
}

// GET /api/public/spaces/{ref}
func (h *PublicHandler) GetSpace(w http.ResponseWriter, r *http.Request) {
	space, err := h.svc.Content.PublicSpace(r.Context(), chiRoute.URLParam(r, "ref"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, space)
}

// GET /api/public/events?limit=
func (h *PublicHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := page(r)
	events, err := h.svc.Content.UpcomingEvents(r.Context(), limit)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteListResponse(w, events, len(events), limit, 0)
}

// GET /api/public/events/{ref}
func (h *PublicHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.Content.PublicEvent(r.Context(), chiRoute.URLParam(r, "ref"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, event)
}

// POST /api/public/events/{ref}/rsvp
func (h *PublicHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	var in services.RsvpInput
	if err := decodeBody(r, &in); err != nil {
		writeAPIError(w, r, err)
		return
	}
	fillMeta(r, &in.SubmissionMeta)

	event, err := h.svc.Content.PublicEvent(r.Context(), chiRoute.URLParam(r, "ref"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	rsvp, err := h.svc.Events.RSVP(r.Context(), event.ID, in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, rsvp)
}

// GET /api/public/posts?limit=&offset=
func (h *PublicHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	posts, err := h.svc.Content.PublishedPosts(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteListResponse(w, posts, len(posts), limit, offset)
}

// GET /api/public/posts/{slug}
func (h *PublicHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.Content.PublishedPost(r.Context(), chiRoute.URLParam(r, "slug"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, post)
}

// GET /api/public/testimonials?featured=true
func (h *PublicHandler) ListTestimonials(w http.ResponseWriter, r *http.Request) {
	featured, _ := strconv.ParseBool(r.URL.Query().Get("featured"))
	list, err := h.svc.Content.FeaturedTestimonials(r.Context(), featured)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteListResponse(w, list, len(list), 0, 0)
}

// GET /api/public/stories
func (h *PublicHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Content.PublishedStories(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteListResponse(w, list, len(list), 0, 0)
}

// GET /api/public/stories/{slug}
func (h *PublicHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	story, err := h.svc.Content.PublishedStory(r.Context(), chiRoute.URLParam(r, "slug"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, story)
}

// GET /api/public/seo?path=/about
func (h *PublicHandler) GetSeo(w http.ResponseWriter, r *http.Request) {
	seo, err := h.svc.Content.SeoForPath(r.Context(), utils.GetQueryParam(r, "path", "/"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, seo)
}

// GET /api/public/settings
func (h *PublicHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings.Public(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, settings)
}
