package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playchess/backend/internal/auth"
	"github.com/playchess/backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// IssueToken exchanges player_id + PIN for a session JWT. This is the dev
// bootstrap path; deployments fronted by a real identity authority leave
// pin_hash unset and this endpoint refuses every request.
func IssueToken(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PlayerID string `json:"player_id"`
			PIN      string `json:"pin"`
		}
		if err := c.BindJSON(&req); err != nil || strings.TrimSpace(req.PlayerID) == "" || req.PIN == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player_id and pin required"})
			return
		}

		var pinHash sql.NullString
		err := db.Get(&pinHash, `SELECT pin_hash FROM players WHERE id = $1`, req.PlayerID)
		if err == sql.ErrNoRows || (err == nil && !pinHash.Valid) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err != nil {
			log.Printf("[AUTH] pin lookup for %s failed: %v", req.PlayerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(pinHash.String), []byte(req.PIN)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		ttl := time.Duration(cfg.SessionTimeoutMin) * time.Minute
		token, err := auth.IssueToken(req.PlayerID, cfg.JWTSecret, ttl)
		if err != nil {
			log.Printf("[AUTH] token issue for %s failed: %v", req.PlayerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": time.Now().Add(ttl).Format(time.RFC3339),
		})
	}
}

// AuthMiddleware validates the bearer JWT and sets player_id in context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, err := auth.FromRequest(c.Request, cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Set("player_id", playerID)
		c.Next()
	}
}
