package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	caresync "github.com/caredocs/caresync"
)

var (
	eventsLimit int
	eventsType  string
	eventNotes  string
	eventData   string
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsAddCmd)
	eventsCmd.AddCommand(eventsStatsCmd)

	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum events to show")
	eventsListCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type")
	eventsAddCmd.Flags().StringVar(&eventNotes, "notes", "", "free-form notes")
	eventsAddCmd.Flags().StringVar(&eventData, "data", "", "event data as JSON, e.g. '{\"amount_ml\": 120}'")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Log and browse care events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent events",
	Long:  "List recent events, newest first. Served from the local cache when offline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient(cmd.Context())
		events, err := client.Events().List(cmd.Context(), caresync.EventListParams{
			Type:        eventsType,
			Limit:       eventsLimit,
			RecipientID: cfg.Default.Recipient,
		})
		if err != nil {
			return err
		}
		persistSession(client, cfg)

		if len(events) == 0 {
			fmt.Println("No events.")
			return nil
		}
		for _, ev := range events {
			marker := " "
			if ev.Offline {
				marker = "*"
			}
			fmt.Printf("%s %-12s %-20s %s\n", marker, ev.Type, ev.Timestamp, ev.Notes)
		}
		return nil
	},
}

var eventsAddCmd = &cobra.Command{
	Use:   "add <type>",
	Short: "Log a care event",
	Long:  "Log a care event such as feeding, medication, or diaper.\nWhile offline the event is queued and replayed on the next sync.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient(cmd.Context())

		event := map[string]any{"type": args[0]}
		if eventNotes != "" {
			event["notes"] = eventNotes
		}
		if cfg.Default.Recipient != "" {
			event["care_recipient_id"] = cfg.Default.Recipient
		}
		if eventData != "" {
			var data map[string]any
			if err := json.Unmarshal([]byte(eventData), &data); err != nil {
				return fmt.Errorf("invalid --data JSON: %w", err)
			}
			event["event_data"] = data
		}

		created, err := client.Events().Create(cmd.Context(), event)
		if err != nil {
			return err
		}
		persistSession(client, cfg)

		if created.Offline {
			fmt.Printf("Queued offline event %s (will sync when online)\n", created.ID)
		} else {
			fmt.Printf("Logged event %s\n", created.ID)
		}
		return nil
	},
}

var eventsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-type event counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient(cmd.Context())
		stats, err := client.Events().Stats(cmd.Context(), cfg.Default.Recipient)
		if err != nil {
			return err
		}
		persistSession(client, cfg)

		for eventType, count := range stats {
			fmt.Printf("%-16s %d\n", eventType, count)
		}
		return nil
	},
}
