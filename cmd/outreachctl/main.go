// outreachctl is a command-line client for the outreach tracker API. It keeps the session cookie and
// access token on disk, so a login survives between invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	cookiejar "github.com/juju/persistent-cookiejar"
	"go.uber.org/zap"

	"outreach-tracker/backend/internal/client"
)

var version = "dev"

const (
	defaultServer  = "http://localhost:3000"
	requestTimeout = 30 * time.Second
)

type cliConfig struct {
	server     string
	tokenFile  string
	jsonOutput bool
	verbose    bool
}

var errShowUsage = errors.New("show usage")

func main() {
	cfg, command, args, err := parseArgs(os.Args[1:])
	if errors.Is(err, errShowUsage) {
		printUsage()
		if len(os.Args) == 1 {
			os.Exit(1)
		}
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}
	if command == "version" {
		fmt.Printf("outreachctl %s\n", version)
		return
	}
	if command == "help" {
		printUsage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := openSession(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	err = dispatch(ctx, sess, cfg, command, args)
	if saveErr := sess.jar.Save(); saveErr != nil && err == nil {
		err = fmt.Errorf("save cookies: %w", saveErr)
	}
	if err != nil {
		if errors.Is(err, client.ErrLoginRequired) {
			fmt.Fprintf(os.Stderr, "error: %v\nrun `outreachctl login` first (or sign in at %s)\n", err, sess.api.LoginURL())
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, sess *session, cfg cliConfig, command string, args []string) error {
	switch command {
	case "login":
		return runLogin(ctx, sess, cfg, args)
	case "logout":
		return runLogout(ctx, sess, args)
	case "token":
		return runToken(ctx, sess, args)
	case "whoami":
		return runWhoami(ctx, sess, cfg, args)
	case "users":
		return runUsers(ctx, sess, cfg, args)
	case "roles":
		return runRoles(ctx, sess, cfg, args)
	case "audit":
		return runAudit(ctx, sess, cfg, args)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func parseArgs(args []string) (cliConfig, string, []string, error) {
	cfg := cliConfig{
		server:    envOr("OUTREACH_SERVER", defaultServer),
		tokenFile: os.Getenv("OUTREACH_TOKEN_FILE"),
	}

	idx := 0
	for idx < len(args) {
		arg := args[idx]
		if !strings.HasPrefix(arg, "-") {
			break
		}
		switch arg {
		case "--help", "-h":
			return cfg, "", nil, errShowUsage
		case "--server", "-s":
			if idx+1 >= len(args) {
				return cfg, "", nil, fmt.Errorf("--server requires a value")
			}
			cfg.server = args[idx+1]
			idx += 2
		case "--token-file":
			if idx+1 >= len(args) {
				return cfg, "", nil, fmt.Errorf("--token-file requires a value")
			}
			cfg.tokenFile = args[idx+1]
			idx += 2
		case "--json":
			cfg.jsonOutput = true
			idx++
		case "--verbose", "-v":
			cfg.verbose = true
			idx++
		default:
			return cfg, "", nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if idx >= len(args) {
		return cfg, "", nil, errShowUsage
	}
	return cfg, args[idx], args[idx+1:], nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Print(`Usage: outreachctl [--server <url>] [--token-file <path>] [--json] [-v] <command>

Commands:
  login [eid]           Start a session (eid only works on servers with FORCE_AUTH)
  logout                End the session and forget the token
  token                 Print the current access token, fetching or refreshing it as needed
  whoami                Show the signed-in user
  users                 List users (admin)
  users delete <id>     Delete a user (admin)
  roles                 List roles (admin)
  audit [limit]         Show recent audit entries (admin)
  version               Print the client version

Environment:
  OUTREACH_SERVER       Default for --server (` + defaultServer + `)
  OUTREACH_TOKEN_FILE   Default for --token-file
`)
}

// session bundles the API client with the cookie jar that has to be saved before exit.
type session struct {
	api *client.Client
	jar *cookiejar.Jar
}

func openSession(cfg cliConfig) (*session, error) {
	tokenFile := cfg.tokenFile
	if tokenFile == "" {
		p, err := client.DefaultTokenPath()
		if err != nil {
			return nil, err
		}
		tokenFile = p
	}
	jar, err := cookiejar.New(&cookiejar.Options{
		Filename: filepath.Join(filepath.Dir(tokenFile), "cookies"),
	})
	if err != nil {
		return nil, fmt.Errorf("open cookie jar: %w", err)
	}

	logger := zap.NewNop()
	if cfg.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	api, err := client.New(cfg.server, client.NewTokenStore(client.NewFileStore(tokenFile)),
		client.WithHTTPClient(&http.Client{Jar: jar, Timeout: requestTimeout}),
		client.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &session{api: api, jar: jar}, nil
}
