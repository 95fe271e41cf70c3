package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/foliosite/siterelay/internal"
	"github.com/foliosite/siterelay/internal/config"
	"github.com/foliosite/siterelay/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.ConfigVersion,
		"server": map[string]any{
			"addr":           ":8080",
			"baseURL":        "https://www.example.com",
			"allowedOrigins": []string{"https://www.example.com"},
			"rateLimit": map[string]any{
				"requestsPerMinute": config.DefaultRequestsPerMinute,
				"burst":             config.DefaultBurst,
			},
		},
		"decap": map[string]any{
			"provider":        config.ProviderGitHub,
			"clientId":        map[string]string{"$env": "DECAP_GITHUB_CLIENT_ID"},
			"clientSecret":    map[string]string{"$env": "DECAP_GITHUB_CLIENT_SECRET"},
			"stateSecret":     map[string]string{"$env": "DECAP_OAUTH_STATE_SECRET"},
			"stateTtl":        config.DefaultStateTTL.String(),
			"exchangeTimeout": config.DefaultExchangeTimeout.String(),
			"storage":         string(config.StorageMemory),
		},
		"webhook": map[string]any{
			"secret": map[string]string{"$env": "CAL_WEBHOOK_SECRET"},
			"path":   config.DefaultWebhookPath,
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) > 0:
		fmt.Println("Result: FAIL")
		return fmt.Errorf("validation failed: %d error(s)", len(result.Errors))
	case len(result.Warnings) > 0:
		fmt.Println("Result: PASS (with warnings)")
	default:
		fmt.Println("Result: PASS")
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file")
	fromEnv := flag.Bool("env", false, "read configuration from environment variables instead of a file")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
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

	if *conf == "" && !*fromEnv {
		fmt.Fprintf(os.Stderr, "Error: one of -config or -env is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	var cfg config.Config
	var err error
	if *fromEnv {
		cfg, err = config.LoadEnv()
	} else {
		cfg, err = config.Load(*conf)
	}
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting siterelay", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
		"env":     *fromEnv,
	})

	internal.Version = BuildVersion
	app, err := internal.NewSiteRelay(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
