// Package handlers exposes the HTTP API.
package handlers

import (
	"net/http"
	"time"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/repository"
	"github.com/example/eco-collect/internal/usecase"
)

// multipartOverhead is the allowance for multipart headers and form fields
// on top of the file itself.
const multipartOverhead = 64 << 10

// centresCacheKey is the response cache entry of GET /uploads/centres.
const centresCacheKey = "uploads:centres"

// Options carries the HTTP level settings.
type Options struct {
	Environment       string
	CookieName        string
	CookieSecure      bool
	CORSOrigins       []string
	MaxUploadSize     int64
	AllowedExtensions []string
	RateLimitRPS      float64
	RateLimitBurst    int
}

// Deps are the collaborators the routes delegate to.
type Deps struct {
	Accounts *usecase.AccountUseCase
	Profiles *usecase.ProfileUseCase
	Centers  *usecase.CenterUseCase
	Uploads  *usecase.UploadUseCase
	Sessions *auth.Manager
	// ResponseCache backs cached GET routes. A memory store is used when nil.
	ResponseCache persist.CacheStore
	Logger        *zap.Logger
	Options       Options
}

type api struct {
	Deps
	logger        *zap.Logger
	responseCache persist.CacheStore
}

// NewRouter builds the gin engine with the global middleware and all routes.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.MaxMultipartMemory = 8 << 20

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     deps.Options.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "Location", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		ginzap.RecoveryWithZap(deps.Logger, true),
		RequestIDMiddleware(),
		ginzap.GinzapWithConfig(deps.Logger, &ginzap.Config{
			TimeFormat: time.RFC3339,
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.URL.Path == "/health"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}
				if v := c.GetString(RequestIDKey); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}
				if userID, ok := auth.GetUserID(c.Request.Context()); ok {
					fields = append(fields, zap.Uint("user_id", userID))
				}
				return fields
			},
		}),
		auth.SessionMiddleware(deps.Sessions, deps.Options.CookieName, deps.Logger),
	)

	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, codeNotFound, "Not Found")
	})
	router.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method Not Allowed")
	})

	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	responseCache := deps.ResponseCache
	if responseCache == nil {
		responseCache = persist.NewMemoryStore(time.Minute)
	}
	a := &api{Deps: deps, logger: deps.Logger.Named("handlers"), responseCache: responseCache}

	limiter := NewRateLimiter(deps.Options.RateLimitRPS, deps.Options.RateLimitBurst)
	jsonBody := BodySizeLimiter(1 << 20)
	requireUser := auth.RequireUser()
	reviewer := auth.RequireRole(repository.RoleCorporate, repository.RoleAdmin)

	router.GET("/", a.index)
	router.GET("/health", a.health)

	// The account routes are served at the root and under /auth.
	for _, accounts := range []*gin.RouterGroup{router.Group(""), router.Group("/auth")} {
		accounts.POST("/register", limiter.Middleware(), jsonBody, a.register)
		accounts.POST("/login", limiter.Middleware(), jsonBody, a.login)
		accounts.POST("/logout", a.logout)
		accounts.GET("/me", a.me)
		accounts.POST("/forgot-password", limiter.Middleware(), jsonBody, a.forgotPassword)
		accounts.POST("/reset-password/:token", limiter.Middleware(), jsonBody, a.resetPassword)
	}

	profile := router.Group("/profile")
	{
		profile.GET("/me", requireUser, a.profile)
		profile.POST("/upload-avatar", requireUser, BodySizeLimiter(deps.Options.MaxUploadSize+multipartOverhead), a.uploadAvatar)
		profile.GET("/uploads/:filename", a.serveAvatar)
	}

	centers := router.Group("/api/centers", jsonBody)
	{
		centers.GET("/", a.listCenters)
		centers.POST("/", a.createCenter)
		centers.GET("/:id", a.getCenter)
		centers.PUT("/:id", a.updateCenter)
		centers.PATCH("/:id", a.updateCenter)
		centers.DELETE("/:id", a.deleteCenter)
	}

	uploads := router.Group("/uploads")
	{
		uploads.POST("/", requireUser, BodySizeLimiter(deps.Options.MaxUploadSize+multipartOverhead), a.submitUpload)
		uploads.GET("/", requireUser, a.listMyUploads)
		uploads.GET("/history", requireUser, a.history)
		uploads.GET("/centres", cache.Cache(responseCache, 30*time.Second,
			cache.WithCacheStrategyByRequest(func(*gin.Context) (bool, cache.Strategy) {
				return true, cache.Strategy{CacheKey: centresCacheKey}
			}),
		), a.centres)
		uploads.GET("/all", reviewer, a.listAllUploads)
		uploads.PATCH("/approve/:id", reviewer, a.approveUpload)
		uploads.GET("/stats", reviewer, a.stats)
		uploads.GET("/duplicates/:id", reviewer, a.duplicates)
	}
}

func (a *api) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     "Eco-Collect API",
		"version":     "1.0.0",
		"status":      "running",
		"environment": a.Options.Environment,
		"endpoints": gin.H{
			"auth":    "/auth",
			"profile": "/profile",
			"uploads": "/uploads",
			"centers": "/api/centers",
			"health":  "/health",
		},
	})
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "eco-collect-api"})
}
