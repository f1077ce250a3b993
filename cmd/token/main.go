package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/video-factory/internal/auth"
	"github.com/suPer8Hu/video-factory/internal/config"
)

// token prints a signed bearer token for the API.
func main() {
	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is not set")
	}

	tok, err := auth.SignJWT(*subject, cfg.JWTSecret, *ttl)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok)
}
