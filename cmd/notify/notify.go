// Package notify implements the test notification command.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/mqtt"
	"github.com/tphakala/platewatch/internal/notification"
)

// Command returns a cobra command that sends a test notification through
// every configured provider.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		prio     string
		title    string
		message  string
		plate    string
		timeout  time.Duration
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification to the configured providers",
		Long: `Send a test notification through the configured providers.

Examples:
  platewatch notify --priority=high --title="Test" --message="Hello"
  platewatch notify --plate=AB123C --metadata="similarity=92.5" --metadata="gate=north"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseMetadata(metadata)
			if err != nil {
				return err
			}

			var client mqtt.Client
			if settings.Notification.MQTT.Enabled {
				cfg := mqtt.ConfigFromSettings(settings.Notification.MQTT, settings.Main.Name, mqtt.RolePublisher)
				if client, err = mqtt.NewClient(cfg, nil); err != nil {
					return err
				}
				defer client.Disconnect()
			}

			dispatcher := notification.DispatcherFromSettings(settings, nil,
				notification.ProvidersFromSettings(settings, client)...)
			if dispatcher.Len() == 0 {
				return fmt.Errorf("no notification providers are enabled")
			}

			n := notification.NewNotification(notification.TypeTest, notification.ParsePriority(prio), title, message).
				WithPlate(strings.ToUpper(plate))
			for k, v := range meta {
				n.WithMetadata(k, v)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := dispatcher.Dispatch(ctx, n); err != nil {
				return fmt.Errorf("failed to send notification: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Notification sent: id=%s priority=%s providers=%s",
				n.ID, n.Priority, strings.Join(dispatcher.Providers(), ","))
			if len(n.Metadata) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " metadata=%d_keys", len(n.Metadata))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&prio, "priority", "normal", "Notification priority: critical|high|normal|low")
	cmd.Flags().StringVar(&title, "title", "Test Notification", "Notification title")
	cmd.Flags().StringVar(&message, "message", "This is a platewatch test notification", "Notification message")
	cmd.Flags().StringVar(&plate, "plate", "", "Plate text to attach")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time to wait for delivery")
	cmd.Flags().StringSliceVar(&metadata, "metadata", nil, "Metadata key-value pairs in format key=value (supports numbers, booleans, and strings)")

	return cmd
}

// parseMetadata turns key=value pairs into typed values: numbers first, then
// booleans, otherwise strings.
func parseMetadata(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid metadata format: %s (expected key=value)", kv)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = floatVal
		} else if boolVal, err := strconv.ParseBool(value); err == nil {
			out[key] = boolVal
		} else {
			out[key] = value
		}
	}
	return out, nil
}
