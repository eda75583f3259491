package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"cinemagen_back/assistant"
	"cinemagen_back/authorization"
	"cinemagen_back/prompts"
	"cinemagen_back/videos"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func corsMiddleware() gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Sweep-Token"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	origins := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS"))
	if origins == "" {
		config.AllowAllOrigins = true
		config.AllowCredentials = false
	} else {
		config.AllowOrigins = strings.Split(origins, ",")
	}

	return cors.New(config)
}

func main() {
	mustLoadEnv()

	r := gin.Default()
	r.Use(corsMiddleware())

	auth, err := authorization.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register auth routes: %v", err)
	}
	guard := auth.Guard()

	if _, err := videos.RegisterRoutes(r, guard); err != nil {
		log.Fatalf("register video routes: %v", err)
	}

	assistantModule, err := assistant.RegisterRoutes(r, guard)
	if err != nil {
		log.Fatalf("register assistant routes: %v", err)
	}

	var categorizer prompts.Categorizer
	if client := assistantModule.Client(); client != nil {
		categorizer = client
	}
	if _, err := prompts.RegisterRoutes(r, guard, categorizer); err != nil {
		log.Fatalf("register prompt routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
