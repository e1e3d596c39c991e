// Package admin wires the operator-facing HTTP surface. It runs as a second
// binary on its own port, behind an IP allowlist and a role-gated JWT check.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openlot/auction/internal/admin/handler"
	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/domain"
	"github.com/openlot/auction/internal/repository"
	"github.com/openlot/auction/internal/service"
	"github.com/openlot/auction/internal/ws"
)

// AdminDeps bundles every dependency needed for the admin router.
type AdminDeps struct {
	AuthSvc     *service.AuthService
	AuctionSvc  *service.AuctionService
	CategorySvc *service.CategoryService
	UserRepo    *repository.UserRepository
	AuctionRepo *repository.AuctionRepository
	BidRepo     *repository.BidRepository
	Hub         *ws.Hub
	Cfg         *config.Config
}

// SetupAdminRouter creates the admin Gin engine, served on the admin port.
func SetupAdminRouter(deps AdminDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipAllowlistMiddleware(deps.Cfg.Server.AdminAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.AuctionRepo, deps.BidRepo, deps.UserRepo, deps.Hub)
	auctionH := handler.NewAuctionAdminHandler(deps.AuctionSvc, deps.BidRepo)
	userH := handler.NewUserAdminHandler(deps.UserRepo, deps.AuctionRepo, deps.BidRepo)
	categoryH := handler.NewCategoryAdminHandler(deps.CategorySvc)

	jwtMW := adminJWTMiddleware(deps.AuthSvc)

	admin := r.Group("/admin")
	admin.Use(jwtMW)
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Auctions
		a := admin.Group("/auctions")
		{
			a.GET("", auctionH.List)
			a.GET("/:id", auctionH.Detail)
			a.POST("/:id/cancel", auctionH.Cancel)
			a.POST("/:id/settle", auctionH.Settle)
		}

		// Users
		u := admin.Group("/users")
		{
			u.GET("", userH.List)
			u.GET("/:id", userH.Detail)
			u.POST("/:id/suspend", userH.Suspend)
			u.POST("/:id/activate", userH.Activate)
			u.POST("/:id/role", userH.SetRole)
		}

		// Categories
		cats := admin.Group("/categories")
		{
			cats.POST("", categoryH.Create)
		}
	}

	return r
}

// ── IP allowlist middleware ───────────────────────────────────────────────────

// ipAllowlistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipAllowlistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "access denied: your IP is not allowlisted",
			})
			return
		}
		c.Next()
	}
}

// ── Admin JWT middleware ──────────────────────────────────────────────────────

// adminJWTMiddleware validates a JWT and requires an admin-capable role
// (admin, ops, readonly).
func adminJWTMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "unauthorized",
			})
			return
		}

		claims, err := authSvc.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "invalid token",
			})
			return
		}

		if !domain.UserRole(claims.Role).CanAccessAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "insufficient permissions",
			})
			return
		}

		c.Set("userID", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}
