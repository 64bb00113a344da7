package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgellow/authcallback/internal"
	"github.com/dgellow/authcallback/internal/config"
	"github.com/dgellow/authcallback/internal/log"
	"github.com/dgellow/authcallback/internal/storage"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %s", path)
	}
	if err := os.WriteFile(path, []byte(config.StarterConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func printIssues(title string, issues []config.ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		if issue.Path != "" {
			fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Printf("  - %s\n", issue.Message)
		}
	}
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Println()
	switch {
	case result.IsValid() && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case result.IsValid():
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

// listUsers prints the recorded users from the configured store as JSON
func listUsers(ctx context.Context, cfg config.Config, out io.Writer) error {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to setup storage: %w", err)
	}
	defer store.Close()

	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if users == nil {
		users = []storage.UserRecord{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(users)
}

func main() {
	conf := flag.String("config", "", "path to config file (AUTH_* environment variables are used when omitted)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate a starter config file at the specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	listUsersFlag := flag.Bool("list-users", false, "print recorded users from the configured storage and exit")
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (trace, debug, info, warn, error)")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *logLevel != "" {
		if err := log.SetLogLevel(*logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := loadConfig(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *listUsersFlag {
		if err := listUsers(context.Background(), cfg, os.Stdout); err != nil {
			log.LogError("Failed to list users: %v", err)
			os.Exit(1)
		}
		return
	}

	log.LogInfoWithFields("main", "Starting authcallback", map[string]any{
		"version":   BuildVersion,
		"config":    *conf,
		"log_level": log.GetLogLevel(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := internal.NewApp(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
