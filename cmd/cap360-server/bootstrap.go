// ABOUTME: bootstrap subcommand: creates the first admin directly in the store
// ABOUTME: Writes a config with a random JWT secret when none exists and saves an admin token

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/config"
	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
	"github.com/hireteksolutions/CAP360-MAIN/internal/server"
	"github.com/hireteksolutions/CAP360-MAIN/internal/store"
)

// bootstrapTokenTTL is the lifetime of the token saved by bootstrap.
const bootstrapTokenTTL = 30 * 24 * time.Hour

// ErrAlreadyBootstrapped is returned when at least one admin exists.
var ErrAlreadyBootstrapped = errors.New("bootstrap already complete")

type bootstrapArgs struct {
	email    string
	name     string
	password string
}

// parseBootstrapArgs accepts both "--flag value" and "--flag=value".
func parseBootstrapArgs(args []string) (bootstrapArgs, error) {
	var out bootstrapArgs
	targets := map[string]*string{
		"--email":    &out.email,
		"-e":         &out.email,
		"--name":     &out.name,
		"-n":         &out.name,
		"--password": &out.password,
		"-p":         &out.password,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if flag, value, ok := strings.Cut(arg, "="); ok {
			if dst, known := targets[flag]; known {
				*dst = value
				continue
			}
			return out, fmt.Errorf("unknown flag: %s", flag)
		}
		if dst, known := targets[arg]; known {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", arg)
			}
			*dst = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			return out, fmt.Errorf("unknown flag: %s", arg)
		}
		return out, fmt.Errorf("unexpected argument: %s", arg)
	}

	if out.email == "" {
		return out, errors.New("--email flag is required")
	}
	if out.name == "" {
		return out, errors.New("--name flag is required")
	}
	return out, nil
}

// readPassword prompts on a terminal or falls back to CAP360_BOOTSTRAP_PASSWORD.
func readPassword() (string, error) {
	if pw := os.Getenv("CAP360_BOOTSTRAP_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Print("  Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// generateSecret returns a random base64 JWT secret.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// writeDefaultConfig creates a minimal SQLite config at configPath.
func writeDefaultConfig(configPath, dbPath string) error {
	secret, err := generateSecret()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	content := fmt.Sprintf(`# cap360-server configuration
# Generated by cap360-server bootstrap

server:
  grpc_addr: "localhost:50051"
  http_addr: "localhost:8080"

database:
  driver: "sqlite"
  path: "%s"

auth:
  jwt_secret: "%s"
  token_ttl: "24h"

logging:
  level: "info"
  format: "text"
`, dbPath, secret)

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// bootstrapAdmin creates the first admin in s and issues a long-lived token.
// Fails with ErrAlreadyBootstrapped when any admin exists.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, s store.Store, args bootstrapArgs, logger *slog.Logger) (*provision.Result, *auth.Token, error) {
	holders, err := s.ListRoleHolders(ctx, store.RoleAdmin)
	if err != nil {
		return nil, nil, fmt.Errorf("checking admins: %w", err)
	}
	if len(holders) > 0 {
		return nil, nil, fmt.Errorf("%w: %d admin(s) exist", ErrAlreadyBootstrapped, len(holders))
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	provider := auth.NewProvider(s, verifier, bootstrapTokenTTL)

	svc := provision.NewService(provider, s, provision.Options{
		RollbackOnFailure: cfg.Provisioning.RollbackOnFailure,
		RoleGrantPolicy:   provision.GrantPolicy(cfg.Provisioning.RoleGrantPolicy),
		Logger:            logger,
	})

	result, err := svc.Bootstrap(ctx, provision.Request{
		Email:    args.email,
		Password: args.password,
		FullName: args.name,
	})
	if err != nil {
		return nil, nil, err
	}

	token, err := provider.IssueToken(result.UserID)
	if err != nil {
		return nil, nil, err
	}
	return result, token, nil
}

// runBootstrap performs first-time setup:
// 1. Creates a config file with a random JWT secret (if none exists)
// 2. Creates the first admin: identity, profile and admin grant
// 3. Saves a bearer token for cap360-admin
func runBootstrap(ctx context.Context, rawArgs []string) error {
	args, err := parseBootstrapArgs(rawArgs)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		dbPath := filepath.Join(getDataPath(), "cap360.db")
		if err := writeDefaultConfig(configPath, dbPath); err != nil {
			return err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if args.password == "" {
		if args.password, err = readPassword(); err != nil {
			return err
		}
	}

	s, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Driver)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	result, token, err := bootstrapAdmin(ctx, cfg, s, args, quiet)
	if err != nil {
		return err
	}

	green.Printf("  ✓ Created admin: %s\n", result.Email)

	tokenPath := getTokenPath()
	if err := os.WriteFile(tokenPath, []byte(token.AccessToken), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Admin")
	cyan.Println("  -----")
	fmt.Printf("  ID:        %s\n", result.UserID)
	fmt.Printf("  Email:     %s\n", result.Email)
	fmt.Printf("  Full Name: %s\n", result.FullName)
	fmt.Printf("  Roles:     admin\n")
	fmt.Printf("  Token:     %s (expires %s)\n", tokenPath, token.ExpiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    cap360-server serve        # start the server")
	fmt.Println("    cap360-admin admins list   # verify your access")
	fmt.Println()

	return nil
}
