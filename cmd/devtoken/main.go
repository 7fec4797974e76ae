// Command devtoken mints a signed bearer token for local testing.
//
//	devtoken -user m1 -role ger
//	devtoken -user root -role admdir -master -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/procure-approval/internal/config"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/infrastructure/identity"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	user := flag.String("user", "", "user id (token subject)")
	role := flag.String("role", "fun", "portal role code: fun, ger, admger, dir, admdir, admfun")
	master := flag.Bool("master", false, "grant the master override flag")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	flag.Parse()

	if err := mint(*configPath, *user, *role, *master, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func mint(configPath, user, roleCode string, master bool, ttl time.Duration) error {
	if user == "" {
		return fmt.Errorf("-user is required")
	}
	role, err := authz.ParseRole(roleCode)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	resolver := identity.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := resolver.Issue(authz.Identity{UserID: user, Role: role, IsMaster: master}, ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
