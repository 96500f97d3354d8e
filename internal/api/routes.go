package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playchess/backend/internal/admission"
	"github.com/playchess/backend/internal/api/handlers"
	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/session"
	"github.com/playchess/backend/internal/ws"
)

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, db *sqlx.DB, gw *admission.Gateway, hub *ws.Hub, sessions session.Store, cfg *config.Config) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		// Dev/bootstrap token issuance; production points JWT_SECRET at the
		// upstream authority and leaves player PINs unset.
		v1.POST("/auth/token", handlers.IssueToken(db, cfg))

		// Session channel (control plane + push)
		v1.GET("/ws", ws.HandleWebSocket(gw, hub, cfg))

		// Authenticated player endpoints
		me := v1.Group("/me", handlers.AuthMiddleware(cfg))
		{
			me.GET("", handlers.GetSelf(db))
			me.DELETE("", handlers.DeleteAccount(db, sessions))
		}
	}
}
