// seed inserts development users for local testing. Idempotent: users are upserted by id.
// When JWT_PRIVATE_KEY is set it also prints an access token per user for calling the presence service.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"online-status/internal/bootstrap"
	"online-status/internal/config"
	"online-status/internal/user/domain"
)

var devUsers = []domain.User{
	{ID: 1, DisplayName: "Dev Admin", Email: "admin@example.com", Roles: []string{"administrator"}},
	{ID: 2, DisplayName: "Dev Editor", Email: "editor@example.com", Roles: []string{"editor"}},
	{ID: 3, DisplayName: "Dev Member", Email: "member@example.com", Roles: []string{"subscriber"}},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.StoreDriver == config.StoreMemory {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL (or STORE_DRIVER=sqlite)")
	}

	store, err := bootstrap.OpenStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := range devUsers {
		if err := store.Users.Upsert(ctx, &devUsers[i]); err != nil {
			log.Fatalf("seed user %d: %v", devUsers[i].ID, err)
		}
	}
	log.Printf("Seeded %d users.", len(devUsers))

	tokens, err := bootstrap.TokenProvider(cfg)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	if tokens == nil || cfg.JWTPrivateKey == "" {
		log.Println("JWT_PRIVATE_KEY not set; skipping token output.")
		return
	}
	for _, u := range devUsers {
		token, expiresAt, err := tokens.IssueAccess(u.ID, u.Roles)
		if err != nil {
			log.Fatalf("issue token for user %d: %v", u.ID, err)
		}
		fmt.Printf("user %d (%s) expires %s\n  %s\n", u.ID, u.Email, expiresAt.Format(time.RFC3339), token)
	}
}
