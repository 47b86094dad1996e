package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	caresync "github.com/caredocs/caresync"
)

var watchTransport string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchTransport, "transport", "sse", "push transport: sse or ws")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live care events from the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient(cmd.Context())

		transport := caresync.TransportSSE
		if watchTransport == "ws" {
			transport = caresync.TransportWS
		}

		stream := client.NewStream(transport, nil)
		stream.OnEventChanged(func(kind string, p caresync.EventChangedPayload) {
			fmt.Printf("%s %s event=%s type=%s\n",
				time.Now().Format("15:04:05"), kind, p.EventID, p.EventType)
		})
		stream.OnPhotoUploaded(func(p caresync.PhotoUploadedPayload) {
			fmt.Printf("%s photo_uploaded photo=%s event=%s\n",
				time.Now().Format("15:04:05"), p.PhotoID, p.EventID)
		})
		stream.OnReminderDue(func(p caresync.ReminderDuePayload) {
			fmt.Printf("%s reminder_due reminder=%s due=%s\n",
				time.Now().Format("15:04:05"), p.ReminderID, p.DueAt)
		})
		stream.On("ping", func(eventType string, payload json.RawMessage) {})
		stream.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Fprintf(os.Stderr, "reconnecting (attempt %d) in %s...\n", attempt, delay)
		})

		if err := stream.Connect(cmd.Context()); err != nil {
			return fmt.Errorf("connect stream: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Watching for events. Ctrl-C to stop.")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		return stream.Disconnect()
	},
}
