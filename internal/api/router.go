// Package api wires the public HTTP surface: REST routes, middleware, CORS,
// and the WebSocket upgrade endpoint.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openlot/auction/internal/api/handler"
	"github.com/openlot/auction/internal/api/middleware"
	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/service"
	"github.com/openlot/auction/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc     *service.AuthService
	AuctionSvc  *service.AuctionService
	BidSvc      *service.BidService
	CategorySvc *service.CategoryService
	Hub         *ws.Hub
	Cfg         *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(deps.AuthSvc)
	auctionH := handler.NewAuctionHandler(deps.AuctionSvc)
	bidH := handler.NewBidHandler(deps.BidSvc)
	categoryH := handler.NewCategoryHandler(deps.CategorySvc)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	authRL := middleware.RateLimitMiddleware(10) // 10 req/s per IP for auth endpoints
	bidRL := middleware.RateLimitMiddleware(30)  // 30 req/s per IP for bid placement

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ─────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", authH.Register)
			auth.POST("/login", authH.Login)
			auth.POST("/refresh-token", authH.Refresh)
			auth.POST("/logout", jwtMW, authH.Logout)
		}

		// ── Categories (public reads, authenticated create) ──────────────────
		categories := api.Group("/categories")
		{
			categories.GET("", categoryH.List)
			categories.GET("/:id", categoryH.Get)
			categories.POST("", jwtMW, categoryH.Create)
		}

		// ── Auctions ─────────────────────────────────────────────────────────
		auctions := api.Group("/auctions")
		{
			// public browsing
			auctions.GET("", auctionH.List)
			auctions.GET("/category/:id", auctionH.ListByCategory)
			auctions.GET("/:id", auctionH.Get)
			auctions.GET("/:id/bids", bidH.ListByAuction)

			// authenticated
			auctions.POST("", jwtMW, auctionH.Create)
			auctions.GET("/my-auctions", jwtMW, auctionH.MyAuctions)
			auctions.GET("/my-bids", jwtMW, bidH.MyBids)
			auctions.POST("/:id/activate", jwtMW, auctionH.Activate)
			auctions.DELETE("/:id", jwtMW, auctionH.Cancel)
			auctions.POST("/:id/bids", jwtMW, bidRL, bidH.Place)
		}

		// ── Authenticated profile ────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			authed.GET("/me", authH.Me)
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/hubs/auction", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only the origins
// listed in ALLOWED_ORIGINS.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := map[string]bool{}
	for _, o := range strings.Split(cfg.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
