package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	ScorerURL                string
	RecommendationTTLSeconds int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	AdminEmail               string
	AdminPassword            string
	CartIdleHours            int
	CartSweepMinutes         int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("RECOMMENDATION_TTL_SECONDS", "300"))
	if err != nil || ttl < 1 {
		ttl = 300
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	idleHours, err := strconv.Atoi(getEnv("CART_IDLE_HOURS", "24"))
	if err != nil || idleHours < 1 {
		idleHours = 24
	}
	sweepMinutes, err := strconv.Atoi(getEnv("CART_SWEEP_MINUTES", "60"))
	if err != nil || sweepMinutes < 1 {
		sweepMinutes = 60
	}

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		ScorerURL:                strings.TrimSpace(os.Getenv("SCORER_URL")),
		RecommendationTTLSeconds: ttl,
		AuthSecret:               strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:    tokenTTL,
		AdminEmail:               strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		AdminPassword:            os.Getenv("ADMIN_PASSWORD"),
		CartIdleHours:            idleHours,
		CartSweepMinutes:         sweepMinutes,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
