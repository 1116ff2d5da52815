// ABOUTME: Admin CLI for cap360-server admin provisioning
// ABOUTME: Lists, creates and revokes admins over gRPC; signs in over HTTP to save a token

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/hireteksolutions/CAP360-MAIN/internal/auth"
	"github.com/hireteksolutions/CAP360-MAIN/internal/grpcapi"
	"github.com/hireteksolutions/CAP360-MAIN/internal/provision"
)

const banner = `
                  _____  __    ___              _           _
  ___ __ _ _ __  |___ / / /_  / _ \    __ _  __| |_ __ ___ (_)_ __
 / __/ _' | '_ \   |_ \| '_ \| | | |  / _' |/ _' | '_ ' _ \| | '_ \
| (_| (_| | |_) | ___) | (_) | |_| | | (_| | (_| | | | | | | | | | |
 \___\__,_| .__/ |____/ \___/ \___/   \__,_|\__,_|_| |_| |_|_|_| |_|
          |_|
`

// rpcTimeout bounds each CLI call.
const rpcTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	grpcAddr := os.Getenv("CAP360_GRPC")
	if grpcAddr == "" {
		if host := os.Getenv("CAP360_HOST"); host != "" {
			grpcAddr = host + ":50051"
		} else {
			grpcAddr = "localhost:50051"
		}
	}
	httpURL := getEnv("CAP360_URL", "http://localhost:8080")
	token := getToken()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "admins":
		err = cmdAdmins(grpcAddr, token, args)
	case "login":
		err = cmdLogin(httpURL, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", describeError(err))
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: cap360-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  admins                   List all admins")
	fmt.Println("  admins list              List all admins")
	fmt.Println("  admins create            Create a new admin (--email, --name, --password)")
	fmt.Println("  admins revoke <user-id>  Revoke the admin role from a user")
	fmt.Println("  login                    Sign in and save a token (--email, --password)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CAP360_HOST      Server hostname (derives gRPC :50051)")
	fmt.Println("  CAP360_GRPC      Server gRPC address (default: localhost:50051)")
	fmt.Println("  CAP360_URL       Server HTTP URL for login (default: http://localhost:8080)")
	fmt.Println("  CAP360_TOKEN     Bearer token (default: ~/.config/cap360/token)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  cap360-admin login --email you@example.com")
	fmt.Println("  cap360-admin admins create --email new@example.com --name 'Jane Doe' --password 'longenough1'")
	fmt.Println("  cap360-admin admins revoke 6f1c0a52-...")
	fmt.Println()
}

// createClient creates a gRPC client connection
func createClient(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

// describeError unwraps gRPC status errors to their message.
func describeError(err error) string {
	if st, ok := status.FromError(err); ok {
		return fmt.Sprintf("%s (%s)", st.Message(), st.Code())
	}
	return err.Error()
}

func requireToken(token string) error {
	if token == "" {
		return errors.New("no token: set CAP360_TOKEN or run 'cap360-admin login'")
	}
	return nil
}

func cmdAdmins(addr, token string, args []string) error {
	if err := requireToken(token); err != nil {
		return err
	}

	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	conn, err := createClient(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := grpcapi.NewClient(conn)
	ctx, cancel := context.WithTimeout(grpcapi.WithToken(context.Background(), token), rpcTimeout)
	defer cancel()

	switch subcmd {
	case "list":
		return cmdAdminsList(ctx, client)
	case "create":
		return cmdAdminsCreate(ctx, client, args)
	case "revoke":
		return cmdAdminsRevoke(ctx, client, args)
	default:
		return fmt.Errorf("unknown admins subcommand: %s (use list, create, revoke)", subcmd)
	}
}

func cmdAdminsList(ctx context.Context, client *grpcapi.Client) error {
	admins, err := client.ListAdmins(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Admins")
	cyan.Println("  ------")

	if len(admins) == 0 {
		fmt.Println("  (no admins)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tEMAIL\tNAME\tGRANTED")
	fmt.Fprintln(w, "  --\t-----\t----\t-------")
	for _, a := range admins {
		granted := ""
		if !a.GrantedAt.IsZero() {
			granted = a.GrantedAt.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", a.UserID, dash(a.Email), dash(truncate(a.FullName, 30)), granted)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdAdminsCreate(ctx context.Context, client *grpcapi.Client, args []string) error {
	flags, err := parseFlags(args, "email", "name", "password")
	if err != nil {
		return err
	}
	if flags["email"] == "" || flags["name"] == "" {
		return errors.New("--email and --name are required")
	}
	if flags["password"] == "" {
		if flags["password"], err = readPassword(); err != nil {
			return err
		}
	}

	res, err := client.CreateAdminUser(ctx, provision.Request{
		Email:    flags["email"],
		Password: flags["password"],
		FullName: flags["name"],
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created admin %s\n", res.Email)
	fmt.Printf("  ID:        %s\n", res.UserID)
	fmt.Printf("  Full Name: %s\n", res.FullName)
	return nil
}

func cmdAdminsRevoke(ctx context.Context, client *grpcapi.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: cap360-admin admins revoke <user-id>")
	}
	if err := client.RevokeAdmin(ctx, args[0]); err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("  ✓ Revoked admin role from %s\n", args[0])
	return nil
}

func cmdLogin(baseURL string, args []string) error {
	flags, err := parseFlags(args, "email", "password")
	if err != nil {
		return err
	}
	if flags["email"] == "" {
		return errors.New("--email is required")
	}
	if flags["password"] == "" {
		if flags["password"], err = readPassword(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	token, err := signIn(ctx, http.DefaultClient, baseURL, flags["email"], flags["password"])
	if err != nil {
		return err
	}

	tokenPath := getTokenPath()
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(tokenPath, []byte(token.AccessToken), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Saved token: %s (expires %s)\n", tokenPath, token.ExpiresAt.Local().Format("Jan 02 15:04"))
	return nil
}

// signIn exchanges email and password for a bearer token at POST /auth/token.
func signIn(ctx context.Context, client *http.Client, baseURL, email, password string) (*auth.Token, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign-in request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("sign-in failed: %s", errResp.Error)
		}
		return nil, fmt.Errorf("sign-in failed: status %d", resp.StatusCode)
	}

	var token auth.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &token, nil
}

// parseFlags reads "--name value" and "--name=value" pairs for the allowed names.
func parseFlags(args []string, allowed ...string) (map[string]string, error) {
	out := make(map[string]string, len(allowed))
	isAllowed := func(name string) bool {
		for _, a := range allowed {
			if a == name {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !isAllowed(name) {
			return nil, fmt.Errorf("unknown flag: --%s", name)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		out[name] = value
	}
	return out, nil
}

func readPassword() (string, error) {
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

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getTokenPath returns ~/.config/cap360/token, honouring XDG_CONFIG_HOME.
func getTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "cap360", "token")
}

// getToken returns the bearer token from CAP360_TOKEN or the token file.
func getToken() string {
	if token := os.Getenv("CAP360_TOKEN"); token != "" {
		return token
	}

	data, err := os.ReadFile(getTokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
