// ABOUTME: Entry point for cap360-server, the admin provisioning back office
// ABOUTME: Subcommands serve, init, bootstrap and health

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/hireteksolutions/CAP360-MAIN/internal/config"
	"github.com/hireteksolutions/CAP360-MAIN/internal/server"
)

// version is overridden with -ldflags "-X main.version=..." in release builds.
var version = "dev"

const banner = `
                  _____  __    ___
  ___ __ _ _ __  |___ / / /_  / _ \
 / __/ _' | '_ \   |_ \| '_ \| | | |
| (_| (_| | |_) | ___) | (_) | |_| |
 \___\__,_| .__/ |____/ \___/ \___/
          |_|
`

// getConfigPath returns the path to the server config file.
// Priority: CAP360_CONFIG env var > XDG_CONFIG_HOME/cap360/server.yaml > ~/.config/cap360/server.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CAP360_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "cap360", "server.yaml")
}

// getDataPath returns the path to the cap360 data directory.
// Priority: XDG_DATA_HOME/cap360 > ~/.local/share/cap360
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "cap360")
}

// getTokenPath returns where bootstrap stores the admin token for cap360-admin.
func getTokenPath() string {
	return filepath.Join(filepath.Dir(getConfigPath()), "token")
}

func printUsage() {
	fmt.Println("Usage: cap360-server <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                   Start the server")
	fmt.Println("  init                                    Create a new config file interactively")
	fmt.Println("  bootstrap --email E --name N [--password P]")
	fmt.Println("                                          Create the first admin and save a token")
	fmt.Println("  health                                  Check server health")
}

func main() {
	// A missing .env file is normal
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Driver)
	if !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	} else {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		} else if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Provisioning.RollbackOnFailure {
		green.Print("    ▶ ")
		fmt.Println("Rollback:  enabled")
	}
	if cfg.Telemetry.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tracing:   %s\n", cfg.Telemetry.Endpoint)
	}

	fmt.Println()

	logger.Info("starting cap360-server",
		"config", configPath,
		"version", version,
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
