package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	GatewayBaseURL string
	GatewayToken   string
	GatewayTimeout time.Duration
	JWTSecret      string
	AllowedOrigins []string
	RateLimit      string

	PaymentPollInterval  time.Duration
	PaymentTickInterval  time.Duration
	PaymentExpirySeconds int

	RefreshInterval time.Duration
	ReconcileDelay  time.Duration

	RedirectReturnURL string
	RedirectCancelURL string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:           getEnv("PORT", "8082"),
		GatewayBaseURL: strings.TrimRight(getEnv("GATEWAY_BASE_URL", "http://localhost:8080"), "/"),
		GatewayToken:   getEnv("GATEWAY_TOKEN", ""),
		GatewayTimeout: getDuration("GATEWAY_TIMEOUT", 10*time.Second),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimit:      getEnv("RATE_LIMIT", "120-M"),

		PaymentPollInterval:  getDuration("PAYMENT_POLL_INTERVAL", 3*time.Second),
		PaymentTickInterval:  getDuration("PAYMENT_TICK_INTERVAL", time.Second),
		PaymentExpirySeconds: getInt("PAYMENT_EXPIRY_SECONDS", 300),

		RefreshInterval: getDuration("REFRESH_INTERVAL", 30*time.Second),
		ReconcileDelay:  getDuration("RECONCILE_DELAY", 1500*time.Millisecond),

		RedirectReturnURL: getEnv("REDIRECT_RETURN_URL", "http://localhost:3000/payment/success"),
		RedirectCancelURL: getEnv("REDIRECT_CANCEL_URL", "http://localhost:3000/payment/cancel"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("WARN: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("WARN: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
