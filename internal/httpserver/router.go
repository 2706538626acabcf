package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/handler"
	"taskflow/pkg/metrics"
	"taskflow/pkg/otel"
	"taskflow/pkg/rbac"
)

// Pinger 就绪检查依赖，*pgxpool.Pool 实现
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Client    *handler.ClientHandler
	Project   *handler.ProjectHandler
	Task      *handler.TaskHandler
	Dashboard *handler.DashboardHandler
	Result    *handler.ResultHandler
	AI        *handler.AIHandler
	Admin     *handler.AdminHandler
}

type Options struct {
	Tokens      TokenParser
	DB          Pinger
	CORSOrigins []string
	AILimiter   *UserRateLimiter
	Logger      *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, opts Options) *Router {
	r := gin.New()
	r.Use(
		gin.CustomRecovery(RecoveryHandler(opts.Logger)),
		TraceMiddleware(),
		otel.GinMiddleware(),
		MetricsMiddleware(),
		RequestLogger(opts.Logger),
		cors.New(corsConfig(opts.CORSOrigins)),
		ErrorMiddleware(opts.Logger),
	)

	// Health endpoints (放在最前面)
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	head := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/healthz", ok)
	r.HEAD("/healthz", head)
	r.GET("/health", ok)
	r.HEAD("/health", head)
	r.GET("/api/v1/health", ok)

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if opts.DB == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "db_not_ready"})
			return
		}
		if err := opts.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	registerDocs(r)

	authn := AuthMiddleware(opts.Tokens)
	staff := RequirePermission(rbac.PermissionUserManage)

	// Public
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", h.Auth.Logout)
		auth.POST("/forgot-password", h.Auth.ForgotPassword)
		auth.POST("/reset-password", h.Auth.ResetPassword)
		auth.GET("/google", h.Auth.GoogleRedirect)
		auth.GET("/google/callback", h.Auth.GoogleCallback)
		auth.POST("/google", h.Auth.GoogleToken)
	}

	projects := r.Group("/api/v1/projects", authn)
	{
		write := RequirePermission(rbac.PermissionProjectWrite)
		projects.GET("/next-id", write, h.Project.NextID)
		projects.GET("", RequirePermission(rbac.PermissionProjectRead), h.Project.List)
		projects.GET("/:id", RequirePermission(rbac.PermissionProjectRead), h.Project.Get)
		projects.POST("", write, h.Project.Create)
		projects.PUT("/:id", write, h.Project.Update)
		projects.DELETE("/:id", write, h.Project.Delete)
	}

	tasks := r.Group("/api/v1/tasks", authn, RequirePermission(rbac.PermissionTaskWrite))
	{
		tasks.GET("", h.Task.List)
		tasks.POST("", h.Task.Create)
		tasks.PUT("/:id", h.Task.Update)
		tasks.DELETE("/:id", h.Task.Delete)
	}

	core := r.Group("/api/core", authn)

	clients := core.Group("/clients", RequirePermission(rbac.PermissionClientManage))
	{
		clients.GET("", h.Client.List)
		clients.GET("/next-id", h.Client.NextID)
		clients.POST("", h.Client.Create)
		clients.PUT("/:id", h.Client.Update)
		clients.DELETE("/:id", h.Client.Delete)
	}

	users := core.Group("/users")
	{
		users.GET("/me", h.User.Me)
		users.GET("", staff, h.User.List)
		users.GET("/:id", staff, h.User.Get)
		users.POST("", staff, h.User.Create)
		users.PUT("/:id", staff, h.User.Update)
		users.PATCH("/:id/status", staff, h.User.UpdateStatus)
		users.PUT("/:id/role", RequirePermission(rbac.PermissionUserRole), h.User.ChangeRole)
		users.DELETE("/:id", RequirePermission(rbac.PermissionUserDelete), h.User.Delete)
	}

	dashboard := core.Group("/dashboard")
	{
		dashboard.GET("/recent-activities", h.Dashboard.RecentActivities)
		dashboard.GET("/my-tasks", h.Dashboard.MyTasks)
	}

	results := core.Group("/results")
	{
		results.GET("", h.Result.List)
		results.POST("", h.Result.Create)
	}

	ai := core.Group("/ai", RequirePermission(rbac.PermissionAIUse))
	if opts.AILimiter != nil {
		ai.Use(opts.AILimiter.Middleware())
	}
	{
		ai.POST("/summarize/", h.AI.Summarize)
		ai.POST("/sentiment/", h.AI.Sentiment)
		ai.POST("/csv/", h.AI.AnalyzeCSV)
		ai.GET("/stats", h.Result.Stats)
	}

	if h.Admin != nil {
		admin := core.Group("/admin/outbox", RequirePermission(rbac.PermissionOutboxReplay))
		admin.GET("/failed", h.Admin.FailedEvents)
		admin.POST("/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/replay-failed", h.Admin.ReplayFailedEvents)
	}

	r.NoRoute(func(c *gin.Context) {
		opts.Logger.Warn("Unhandled route accessed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found"})
	})

	return &Router{Engine: r}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Trace-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Handler 供 http.Server 使用
func (r *Router) Handler() http.Handler {
	return r.Engine
}
