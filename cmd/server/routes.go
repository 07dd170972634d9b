package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/admin"
	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/chat"
	"github.com/eventplanner/backend/internal/events"
	"github.com/eventplanner/backend/internal/guests"
	"github.com/eventplanner/backend/internal/invitations"
	"github.com/eventplanner/backend/internal/middleware"
	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/internal/notify"
	"github.com/eventplanner/backend/internal/organizations"
	"github.com/eventplanner/backend/pkg/redis"
	"github.com/eventplanner/backend/pkg/response"
)

type handlers struct {
	auth          *auth.Handler
	invitations   *invitations.Handler
	organizations *organizations.Handler
	events        *events.Handler
	guests        *guests.Handler
	chat          *chat.Handler
	admin         *admin.Handler
	emailLogs     *notify.Handler
}

type routerDeps struct {
	handlers
	jwt     *auth.JWTService
	limiter middleware.Limiter // nil disables rate limiting
	origins []string
	proxies []string // nil ignores X-Forwarded-For
	health  gin.HandlerFunc
	logger  *zap.Logger
}

func newRouter(d routerDeps) (*gin.Engine, error) {
	limit := func(rule middleware.Rule) gin.HandlerFunc {
		if d.limiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimit(d.limiter, rule, d.logger)
	}
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	organizer := middleware.RequireRole(models.RoleOrganizer)
	editor := middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin)

	router := gin.New()
	// Rate limits key on ClientIP, so forwarding headers count only from known proxies.
	if err := router.SetTrustedProxies(d.proxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.origins))
	router.Use(middleware.Logger(d.logger))

	router.GET("/health", d.health)

	api := router.Group("/api")

	// Public
	pub := api.Group("")
	{
		pub.POST("/auth/register", limit(middleware.RuleRegister), d.auth.Register)
		pub.POST("/auth/login", limit(middleware.RuleLogin), d.auth.Login)
		pub.POST("/auth/forgot-password", limit(middleware.RuleForgotPassword), d.auth.ForgotPassword)
		pub.POST("/auth/reset-password/:token", d.auth.ResetPassword)
		pub.POST("/auth/register-admin", limit(middleware.RuleRegister), d.auth.RegisterAdmin)

		pub.GET("/events/rsvp/:token", d.guests.RSVPDetails)
		pub.POST("/events/rsvp/:token", d.guests.RSVPRespond)

		// Browsers cannot set headers on a WebSocket upgrade.
		pub.GET("/events/:id/live", middleware.QueryJWT(d.jwt), d.guests.Live)
	}

	// Protected (JWT required)
	p := api.Group("")
	p.Use(middleware.JWT(d.jwt))
	{
		p.GET("/auth/user/me", d.auth.Me)
		p.GET("/auth/my-invitations", d.invitations.Mine)
		p.POST("/auth/accept-invitation", d.invitations.Accept)
		p.GET("/auth/admin/organizer-requests", adminOnly, d.auth.OrganizerRequests)
		p.POST("/auth/admin/organizer-requests/:id/approve", adminOnly, d.auth.ApproveOrganizer)
		p.POST("/auth/admin/organizer-requests/:id/reject", adminOnly, d.auth.RejectOrganizer)

		p.POST("/organizations/create", organizer, d.organizations.Create)
		p.GET("/organizations/list", adminOnly, d.organizations.List)
		p.GET("/organizations/list/:filter", adminOnly, d.organizations.List)
		p.POST("/organizations/leave", d.organizations.Leave)
		p.GET("/organizations/:id", d.organizations.Get)
		p.PUT("/organizations/:id", organizer, d.organizations.Update)
		p.DELETE("/organizations/:id", editor, d.organizations.Delete)
		p.GET("/organizations/:id/members", d.organizations.Members)
		p.DELETE("/organizations/:id/members/:memberId", organizer, d.organizations.RemoveMember)
		p.PUT("/organizations/:id/members/:memberId/role", organizer, d.organizations.ChangeMemberRole)
		p.POST("/organizations/:id/invite", organizer, limit(middleware.RuleInvitations), d.organizations.Invite)
		p.GET("/organizations/:id/invitations", organizer, d.organizations.Invitations)

		p.GET("/events", d.events.List)
		p.POST("/events/create", organizer, d.events.Create)
		p.GET("/events/admin/all", adminOnly, d.events.AdminAll)
		p.GET("/events/:id", d.events.Get)
		p.PUT("/events/:id", editor, d.events.Update)
		p.DELETE("/events/:id", editor, d.events.Delete)
		p.GET("/events/:id/calendar.ics", d.events.Calendar)
		p.POST("/events/:id/cover-upload-url", d.events.CoverUploadURL)
		p.POST("/events/:id/invite-guests", editor, limit(middleware.RuleInvitations), d.guests.Invite)
		p.GET("/events/:id/guest-list", d.guests.List)

		p.POST("/chat/message", limit(middleware.RuleChat), d.chat.Message)
		p.GET("/chat/history", d.chat.History)
		p.GET("/chat/health", d.chat.Health)

		adm := p.Group("/admin", adminOnly)
		adm.GET("/users", d.admin.Users)
		adm.PUT("/users/:id/role", d.admin.SetRole)
		adm.DELETE("/users/:id", d.admin.DeleteUser)
		adm.DELETE("/organizations/:id", d.admin.DeleteOrganization)
		adm.POST("/organizations/:id/restore", d.admin.RestoreOrganization)
		adm.GET("/stats", d.admin.Stats)
		adm.GET("/email-logs", d.emailLogs.List)
	}

	return router, nil
}

// healthCheck reports database and Redis reachability. A down database fails the check;
// Redis is optional.
func healthCheck(pool *pgxpool.Pool, rdb *goredis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"status": "ok", "database": "ok", "redis": "disabled"}
		status := http.StatusOK
		if err := pool.Ping(ctx); err != nil {
			body["status"], body["database"] = "degraded", "down"
			status = http.StatusServiceUnavailable
		}
		if rdb != nil {
			body["redis"] = "ok"
			if !redis.Healthy(ctx, rdb) {
				body["redis"] = "down"
			}
		}
		c.JSON(status, response.Body{Success: status == http.StatusOK, Data: body})
	}
}
