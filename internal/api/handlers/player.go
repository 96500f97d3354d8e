package handlers

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playchess/backend/internal/models"
	"github.com/playchess/backend/internal/session"
)

// GetSelf returns the authenticated player's profile.
func GetSelf(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetString("player_id")

		var player models.Player
		err := db.Get(&player, `
			SELECT id, display_name, rating, created_at
			FROM players WHERE id = $1
		`, playerID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		if err != nil {
			log.Printf("[PLAYER] self lookup for %s failed: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, player)
	}
}

// DeleteAccount removes the player's profile row along with any queue
// entries and session bindings. Games the player appears in stay: the
// pairing record is never mutated by this service.
func DeleteAccount(db *sqlx.DB, sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID := c.GetString("player_id")

		tx, err := db.Beginx()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM queue_entries WHERE player_id = $1`, playerID); err != nil {
			log.Printf("[PLAYER] queue cleanup for %s failed: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if _, err := tx.Exec(`DELETE FROM players WHERE id = $1`, playerID); err != nil {
			log.Printf("[PLAYER] delete %s failed: %v", playerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if err := sessions.UnbindPlayer(context.Background(), playerID); err != nil {
			log.Printf("[PLAYER] session cleanup for %s failed: %v", playerID, err)
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}
