// Command seed-player creates or updates a player profile for local
// development, optionally setting a PIN for the dev token endpoint.
package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/database"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	id := flag.String("id", "", "player id (required)")
	name := flag.String("name", "", "display name")
	rating := flag.Int("rating", 1200, "initial rating")
	pin := flag.String("pin", "", "PIN for the dev token endpoint (optional)")
	flag.Parse()

	if *id == "" {
		log.Fatal("usage: seed-player -id <player_id> [-name <name>] [-rating <n>] [-pin <pin>]")
	}

	godotenv.Load()
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var pinHash *string
	if *pin != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(*pin), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash PIN: %v", err)
		}
		s := string(h)
		pinHash = &s
	}

	_, err = db.Exec(`
		INSERT INTO players (id, display_name, rating, pin_hash)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE(NULLIF($2, ''), players.display_name),
			rating = $3,
			pin_hash = COALESCE($4, players.pin_hash)
	`, *id, *name, *rating, pinHash)
	if err != nil {
		log.Fatalf("Failed to seed player: %v", err)
	}

	log.Printf("Seeded player %s (rating=%d)", *id, *rating)
}
