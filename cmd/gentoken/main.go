// cmd/gentoken issues a development JWT signed with JWT_SECRET.
// Usage: go run ./cmd/gentoken -rol conducteur -user demo
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"devisbtp/internal/config"
	"devisbtp/internal/middleware"

	"github.com/google/uuid"
)

func main() {
	rol := flag.String("rol", middleware.RoleConducteur, "lecture | conducteur | administrateur")
	user := flag.String("user", "demo", "nom d'utilisateur")
	flag.Parse()

	switch *rol {
	case middleware.RoleLecture, middleware.RoleConducteur, middleware.RoleAdministrateur:
	default:
		fmt.Fprintf(os.Stderr, "rôle inconnu: %s\n", *rol)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET non défini")
		os.Exit(1)
	}

	ttl := time.Duration(cfg.JWTExpirationHours) * time.Hour
	token, err := middleware.NewToken(cfg.JWTSecret, uuid.NewString(), *user, *rol, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signature: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
