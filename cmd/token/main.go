package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tableside/floor/internal/auth"
	"github.com/tableside/floor/internal/config"
	"github.com/tableside/floor/internal/enum"
)

// token mints a signed floor token for local development and smoke tests.
func main() {
	// CLI flags
	userID := flag.Int64("user-id", 1, "User ID carried in the token")
	username := flag.String("username", "", "Username carried in the token")
	role := flag.String("role", enum.RoleStaff, "Role: ADMIN, STAFF or CUSTOMER")
	ttl := flag.Duration("ttl", 12*time.Hour, "Token lifetime")
	secret := flag.String("secret", "", "Signing secret (defaults to JWT_SECRET)")
	flag.Parse()

	// Fall back to environment / .env
	if *secret == "" {
		*secret = config.Load().JWTSecret
	}
	if *username == "" {
		*username = os.Getenv("TOKEN_USERNAME")
	}
	if *username == "" {
		*username = "floor-dev"
	}

	r := strings.ToUpper(*role)
	switch r {
	case enum.RoleAdmin, enum.RoleStaff, enum.RoleCustomer:
	default:
		log.Fatalf("Unknown role %q", *role)
	}
	if *ttl <= 0 {
		log.Fatal("ttl must be positive")
	}

	token, err := auth.GenerateToken(*secret, *userID, *username, r, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	log.Printf("Token for %s (id=%d, role=%s) expires %s", *username, *userID, r, time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println(token)
}
