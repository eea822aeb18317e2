package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/oziev02/pixelflex/internal/app"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	application, err := app.New()
	if err != nil {
		log.Fatalf("failed to create app: %v", err)
	}

	if err := application.Start(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
