// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/handlers"
	"github.com/javajoker/wavhaven-backend/internal/metrics"
	"github.com/javajoker/wavhaven-backend/internal/middleware"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// Options carries what the router needs besides the services.
type Options struct {
	DB          *gorm.DB
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter
}

func Initialize(cfg *config.Config, svc *services.Registry, opts Options) *gin.Engine {
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog)
	checkoutHandler := handlers.NewCheckoutHandler(svc.Checkout)
	webhookHandler := handlers.NewWebhookHandler(svc.Payments, svc.Fulfillment, svc.Auth)
	downloadHandler := handlers.NewDownloadHandler(svc.Downloads)
	trackHandler := handlers.NewTrackHandler(svc.Tracks, svc.Moderation)
	licenseHandler := handlers.NewLicenseHandler(svc.Licenses, svc.Tracks)
	userHandler := handlers.NewUserHandler(svc.Users)
	interactionHandler := handlers.NewInteractionHandler(svc.Interactions)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Users, svc.Moderation)

	utils.SetJWTSecret(cfg.Auth.JWTSecret)
	utils.SetJWTIssuer(cfg.Auth.Issuer)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(opts.Metrics))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.I18nMiddleware())

	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if opts.DB != nil {
			if sqlDB, err := opts.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{"status": status})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSec), cfg.RateLimit.Burst)
	}

	auth := middleware.AuthRequired(svc.Auth)
	optionalAuth := middleware.OptionalAuth(svc.Auth)

	v1 := r.Group("/api/v1")

	// Webhooks are authenticated by signature, not by session, and are not
	// rate limited so provider retries always land.
	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("/stripe", webhookHandler.HandleStripe)
		webhooks.POST("/identity", webhookHandler.HandleIdentity)
	}

	api := v1.Group("")
	api.Use(limiter.Middleware())

	catalog := api.Group("/catalog")
	catalog.Use(optionalAuth)
	{
		catalog.GET("/tracks", catalogHandler.SearchTracks)
		catalog.GET("/tracks/:slug", catalogHandler.GetTrack)
		catalog.POST("/plays/:id", catalogHandler.RecordPlay)
		catalog.GET("/genres", catalogHandler.GetGenres)
		catalog.GET("/moods", catalogHandler.GetMoods)
	}
	api.GET("/producers/:username", userHandler.GetPublicProfile)

	likes := api.Group("/likes")
	likes.Use(auth, middleware.Authorize(policy.ResourceInteraction, policy.ActionCreate))
	{
		likes.PUT("/tracks/:id", interactionHandler.SetLike)
		likes.DELETE("/tracks/:id", interactionHandler.SetLike)
	}

	follows := api.Group("/follows")
	follows.Use(auth, middleware.Authorize(policy.ResourceInteraction, policy.ActionCreate))
	{
		follows.PUT("/producers/:id", interactionHandler.SetFollow)
		follows.DELETE("/producers/:id", interactionHandler.SetFollow)
	}

	api.POST("/cart/quote", middleware.Authorize(policy.ResourceCart, policy.ActionRead), checkoutHandler.QuoteCart)
	api.POST("/checkout", auth, middleware.Authorize(policy.ResourceCart, policy.ActionPurchase), checkoutHandler.CreateCheckout)

	orders := api.Group("/orders")
	orders.Use(auth)
	{
		orders.GET("", checkoutHandler.ListOrders)
		orders.GET("/:id", checkoutHandler.GetOrder)
		orders.GET("/session/:session_id", checkoutHandler.GetOrderBySession)
	}

	downloads := api.Group("/downloads")
	{
		downloads.GET("", auth, downloadHandler.GetLibrary)
		downloads.GET("/files/:id", optionalAuth, downloadHandler.GetFileLink)
	}

	api.POST("/reports", auth, middleware.Authorize(policy.ResourceReport, policy.ActionCreate), trackHandler.ReportTrack)

	users := api.Group("/users/me")
	users.Use(auth)
	{
		users.GET("", userHandler.GetMe)
		users.PUT("", userHandler.UpdateProfile)
		users.GET("/likes", interactionHandler.GetLikedTracks)
		users.GET("/following", interactionHandler.GetFollowing)
		users.POST("/seller", middleware.Authorize(policy.ResourceSellerProfile, policy.ActionCreate), userHandler.BecomeProducer)
		users.GET("/seller", userHandler.GetSellerProfile)
		users.PUT("/seller", middleware.Authorize(policy.ResourceSellerProfile, policy.ActionUpdate), userHandler.UpdateSellerProfile)
		users.POST("/seller/onboarding-link", userHandler.RefreshOnboardingLink)
		users.GET("/seller/dashboard-link", userHandler.PayoutDashboardLink)
	}

	studio := api.Group("/studio")
	studio.Use(auth, middleware.Authorize(policy.ResourceTrack, policy.ActionCreate))
	{
		studio.GET("/tracks", trackHandler.ListMyTracks)
		studio.POST("/tracks", trackHandler.CreateTrack)
		studio.GET("/tracks/:id", trackHandler.GetTrack)
		studio.PUT("/tracks/:id", trackHandler.UpdateTrack)
		studio.DELETE("/tracks/:id", trackHandler.DeleteTrack)
		studio.POST("/tracks/:id/submit", trackHandler.SubmitTrack)
		studio.POST("/tracks/:id/unpublish", trackHandler.UnpublishTrack)
		studio.POST("/tracks/:id/files", trackHandler.UploadFile)
		studio.DELETE("/files/:id", trackHandler.DeleteFile)
		studio.GET("/tracks/:id/licenses", licenseHandler.ListLicenses)
		studio.PUT("/tracks/:id/licenses", licenseHandler.UpsertLicense)
		studio.DELETE("/licenses/:id", licenseHandler.DeleteLicense)
	}

	admin := api.Group("/admin")
	admin.Use(auth, middleware.AdminRequired(), middleware.AuditLogMiddleware(svc.Admin))
	{
		admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
		admin.GET("/users", adminHandler.GetUsers)
		admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
		admin.PUT("/users/:id/role", adminHandler.UpdateUserRole)
		admin.GET("/orders", adminHandler.GetOrders)
		admin.POST("/orders/:id/refund", adminHandler.RefundOrder)
		admin.GET("/tracks/pending", adminHandler.GetPendingTracks)
		admin.POST("/tracks/:id/approve", adminHandler.ApproveTrack)
		admin.POST("/tracks/:id/reject", adminHandler.RejectTrack)
		admin.POST("/tracks/:id/unpublish", adminHandler.UnpublishTrack)
		admin.GET("/reports", adminHandler.GetReports)
		admin.POST("/reports/:id/resolve", adminHandler.ResolveReport)
		admin.GET("/audit-logs", adminHandler.GetAuditLogs)
	}

	return r
}
