package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued mutations and photo uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient(cmd.Context())

		res, err := client.SyncPendingMutations(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		persistSession(client, cfg)

		fmt.Printf("Synced:  %d\n", res.Synced)
		fmt.Printf("Failed:  %d\n", res.Failed)
		fmt.Printf("Skipped: %d\n", res.Skipped)
		if res.Evicted > 0 {
			fmt.Printf("Dropped: %d (retry limit reached)\n", res.Evicted)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient(cmd.Context())
		st := client.Status(cmd.Context())

		online := "offline"
		if st.Online {
			online = "online"
		}
		fmt.Printf("Connectivity: %s\n", online)
		fmt.Printf("Status:       %s\n", st.Status)
		fmt.Printf("Pending:      %d\n", st.PendingCount)
		if !st.LastSync.IsZero() {
			fmt.Printf("Last sync:    %s\n", st.LastSync.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
