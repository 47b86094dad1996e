package main

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <base-url>",
	Short: "Store the API base URL in ~/.caresync/config.toml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Default.BaseURL = args[0]
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Base URL saved to %s\n", path)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Authenticate and store the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		client, cfg := getClient(cmd.Context())
		tokens, err := client.Auth().Login(cmd.Context(), username, string(pw))
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if tokens.AccessToken == "" {
			return fmt.Errorf("login failed: no token in response")
		}

		cfg.Auth.Username = username
		persistSession(client, cfg)
		fmt.Printf("Logged in as %s\n", username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient(cmd.Context())
		// Best effort server-side; local state is cleared regardless.
		_ = client.Auth().Logout(cmd.Context())

		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient(cmd.Context())
		user, err := client.Auth().Me(cmd.Context())
		if err != nil {
			return err
		}
		persistSession(client, cfg)

		fmt.Printf("Username: %s\n", user.Username)
		if user.Email != "" {
			fmt.Printf("Email:    %s\n", user.Email)
		}
		fmt.Printf("ID:       %s\n", user.ID)
		return nil
	},
}
