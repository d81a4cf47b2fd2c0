// Command tokengen mints access tokens for local development and operations.
// The signing secret is read from LEXIS_AUTH_JWT_SECRET or config.yaml, the
// same sources the server uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/service/auth"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	userFlag := fs.String("user", "", "user ID to embed (default: a new random UUID)")
	roleFlag := fs.String("role", string(auth.RoleUser), "role: user, moderator or admin")
	lifetime := fs.Int("lifetime", 0, "token lifetime in minutes (default: auth.token_lifetime_minutes)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	userID := uuid.New()
	if *userFlag != "" {
		parsed, err := uuid.Parse(*userFlag)
		if err != nil {
			return fmt.Errorf("invalid -user: %w", err)
		}
		userID = parsed
	}

	cfg, err := config.LoadAuth()
	if err != nil {
		return err
	}
	if *lifetime > 0 {
		cfg.TokenLifetimeMinutes = *lifetime
	}

	jwtService, err := auth.NewJWTService(*cfg)
	if err != nil {
		return err
	}
	token, err := jwtService.GenerateToken(context.Background(), userID, auth.Role(*roleFlag))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "user: %s\nrole: %s\ntoken: %s\n", userID, *roleFlag, token)
	return err
}
