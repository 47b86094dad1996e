package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	caresync "github.com/caredocs/caresync"
)

// getClient builds a Client backed by the local SQLite store, restoring the
// session persisted in the config file.
func getClient(ctx context.Context) (*caresync.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Default.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "No base URL configured. Run 'caresync init <base-url>' first.")
		os.Exit(1)
	}

	dir, err := configDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	store, err := caresync.OpenSQLiteStore(filepath.Join(dir, "caresync.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open local store: %v\n", err)
		os.Exit(1)
	}

	opts := []caresync.Option{caresync.WithStore(store)}
	if cfg.Default.Verbose {
		log, _ := zap.NewDevelopment()
		opts = append(opts, caresync.WithLogger(log))
	}

	client := caresync.New(cfg.Default.BaseURL, opts...)
	if cfg.Auth.AccessToken != "" {
		client.Auth().SetCredential(ctx, caresync.Credential{
			AccessToken:  cfg.Auth.AccessToken,
			RefreshToken: cfg.Auth.RefreshToken,
		})
	}
	return client, cfg
}

// persistSession mirrors the client's current credentials back into the
// config file, picking up rotated refresh tokens.
func persistSession(client *caresync.Client, cfg *Config) {
	cred := client.Auth().Credential()
	cfg.Auth.AccessToken = cred.AccessToken
	cfg.Auth.RefreshToken = cred.RefreshToken
	if err := saveConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to persist session: %v\n", err)
	}
}
