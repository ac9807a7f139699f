package initializers

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvVariables loads .env when one exists.
// This prevents the app from crashing in production environments (Docker/K8s)
// where env vars are injected directly and .env isn't used.
func LoadEnvVariables() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatal("Error loading .env file")
		}
	}
}
