package server

import (
	"fmt"
	"net/http"
	"time"

	"coworking-alliance-backend/pkg/handlers"
	customMiddleware "coworking-alliance-backend/pkg/middleware"
	"coworking-alliance-backend/pkg/models"
	"coworking-alliance-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestTimeout Vercel 函数有时间限制，留 5 秒缓冲
const RequestTimeout = 25 * time.Second

// NewRouter 把所有端点集中在一个 Chi 路由器中
func NewRouter(app *App, logger zerolog.Logger) http.Handler {
	router := chi.NewRouter()
	setupMiddleware(router, app, logger)
	setupRoutes(router, app)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, app *App, logger zerolog.Logger) {
	cfg := app.Config

	router.Use(middleware.RequestID)
	// 只信任配置的代理层数，限流标识不能由请求头伪造
	router.Use(customMiddleware.TrustedClientIP(cfg.TrustedProxyHops))
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(logger)...)
	router.Use(customMiddleware.Recovery(cfg))
	router.Use(customMiddleware.CORS(cfg))
	router.Use(middleware.Timeout(RequestTimeout))
	router.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBodyBytes))
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有路由
func setupRoutes(router *chi.Mux, app *App) {
	cfg := app.Config
	svc := app.Services

	healthHandler := handlers.NewHealthHandler(cfg, app.DB, app.Now)
	functionsHandler := handlers.NewFunctionsHandler(cfg, svc)
	publicHandler := handlers.NewPublicHandler(svc)
	authHandler := handlers.NewAuthHandler(svc)
	adminHandler := handlers.NewAdminHandler(svc)

	requireAuth := customMiddleware.AuthMiddleware(app.JWT)

	router.Get("/", healthHandler.HealthCheck)

	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", healthHandler.DBPool)
		router.Get("/debug/env-check", healthHandler.EnvCheck)
	}

	// 前端既有的函数调用契约
	router.Route("/functions/v1", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)

		r.Post("/apply", functionsHandler.Apply)
		r.Post("/handle-lead-submission", functionsHandler.LeadSubmission)
		r.Post("/handle-expert-submission", functionsHandler.ExpertSubmission)
		r.Post("/validate-submission", functionsHandler.ValidateSubmission)
		r.With(customMiddleware.OptionalAuthMiddleware(app.JWT)).
			Post("/handle-space-submission", functionsHandler.SpaceSubmission)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(customMiddleware.RequireRole(models.RoleAdmin))

			r.Post("/approve-application", functionsHandler.ApproveApplication)
			r.Post("/notify-space-approval", functionsHandler.NotifySpaceApproval)
			r.Post("/create-calendar-event", functionsHandler.CreateCalendarEvent)
			r.Post("/sync-google-calendar", functionsHandler.SyncGoogleCalendar)
			r.Post("/add-calendar-attendee", functionsHandler.AddCalendarAttendee)
			r.Post("/exchange-google-token", functionsHandler.ExchangeGoogleToken)
			r.Post("/send-event-invites", functionsHandler.SendEventInvites)

			r.With(customMiddleware.RequireRole(models.RoleSuperAdmin)).
				Post("/invite-admin", functionsHandler.InviteAdmin)
		})
	})

	router.Route("/api", func(r chi.Router) {
		// 营销站点公开内容
		r.Route("/public", func(r chi.Router) {
			r.Get("/spaces", publicHandler.ListSpaces)
			r.Get("/spaces/{ref}", publicHandler.GetSpace)
			r.Get("/events", publicHandler.ListEvents)
			r.Get("/events/{ref}", publicHandler.GetEvent)
			r.With(customMiddleware.ContentTypeJSON).Post("/events/{ref}/rsvp", publicHandler.RSVP)
			r.Get("/posts", publicHandler.ListPosts)
			r.Get("/posts/{slug}", publicHandler.GetPost)
			r.Get("/testimonials", publicHandler.ListTestimonials)
			r.Get("/stories", publicHandler.ListStories)
			r.Get("/stories/{slug}", publicHandler.GetStory)
			r.Get("/seo", publicHandler.GetSeo)
			r.Get("/settings", publicHandler.GetSettings)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(customMiddleware.ContentTypeJSON)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/accept-invite", authHandler.AcceptInvite)
			r.With(requireAuth).Get("/me", authHandler.Me)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(customMiddleware.ContentTypeJSON)

			content := svc.Content

			// 内容编辑
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireRole(models.RoleEditor))
				handlers.MountCollection(r, "/events", content.Events, "is_published", "google_calendar_event_id")
				handlers.MountCollection(r, "/blog-posts", content.BlogPosts, "status", "author")
				handlers.MountCollection(r, "/testimonials", content.Testimonials, "is_featured")
				handlers.MountCollection(r, "/success-stories", content.SuccessStories, "is_published")
				handlers.MountCollection(r, "/seo-settings", content.SeoSettings, "page_path")
				handlers.MountCollection(r, "/media", content.MediaItems, "mime_type")
			})

			// 审核、线索与集成
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireRole(models.RoleAdmin))
				handlers.MountCollection(r, "/spaces", content.Spaces, "status", "city", "featured")
				handlers.MountCollection(r, "/leads", content.Leads, "status", "source")
				handlers.MountCollection(r, "/rsvps", content.Rsvps, "event_id", "status")
				handlers.MountCollection(r, "/applications", content.Applications, "status")

				r.Post("/applications/{id}/review", adminHandler.ReviewApplication)
				r.Post("/spaces/{id}/moderate", adminHandler.ModerateSpace)
				r.Post("/events/{id}/invites", adminHandler.SendEventInvites)

				r.Get("/settings", adminHandler.GetSettings)
				r.Put("/settings", adminHandler.UpdateSettings)
				r.Get("/google/auth-url", adminHandler.GoogleAuthURL)
				r.Post("/google/exchange", adminHandler.ExchangeGoogle)
				r.Post("/google/disconnect", adminHandler.DisconnectGoogle)
				r.Post("/calendar/sync", adminHandler.SyncCalendar)
			})

			// 账号管理
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireRole(models.RoleSuperAdmin))
				handlers.MountCollection(r, "/profiles", content.Profiles, "role", "email")
				r.Post("/invites", adminHandler.InviteAdmin)
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
