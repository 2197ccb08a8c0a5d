package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.clipd.dev/clipd/internal/clip"
	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/notify"
	"go.clipd.dev/clipd/internal/transport"
)

func newAgentCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the device agent (local clipboard ↔ relay)",
		Long: `Runs the clipd device agent. Local clipboard changes are pushed
to the relay and fanned out to the user's other devices; remote changes are
written straight into this device's clipboard.

The agent reconnects automatically and keeps watching the clipboard while
the relay is unreachable; changes made during an outage are not replayed.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runAgent(v) },
	}

	addClientFlags(cmd)
	cmd.Flags().String("wire-secret", "", "relay secret for wire encryption (empty = plaintext)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runAgent(v *viper.Viper) error {
	setupLogging(v)

	userID := v.GetString("user")
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	device := v.GetString("device")

	key, token, err := clientWireConfig(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := clip.Serialize(clip.New())
	defer backend.Close()
	slog.Info("clipd agent starting",
		"version", Version,
		"relay", v.GetString("relay"),
		"user", userID,
		"device", device,
		"clipboard", backend.Name(),
	)

	client := transport.New(transport.Config{
		Addr:     v.GetString("relay"),
		UserID:   userID,
		DeviceID: device,
		Token:    token,
		Key:      key,
	}, backend, nil)
	client.Start(ctx)
	defer client.Stop()

	subject := notify.NewSubject()
	subject.Attach(client)

	watchClipboard(ctx, backend, subject, client, userID, device)
	return nil
}

// watchClipboard publishes local clipboard changes until ctx ends. Changes
// that were just applied from the relay, and unchanged re-reads, are skipped.
func watchClipboard(ctx context.Context, backend clip.Backend, subject *notify.Subject, client *transport.Client, userID, device string) {
	var last item.Item
	changes := backend.Watch()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}

		it, err := backend.Read()
		if err != nil {
			slog.Warn("clipboard read failed", "err", err)
			continue
		}
		if it == nil || it.Empty() {
			continue
		}
		it.UserID = userID
		it.OriginDevice = device

		if client.SeenRecently(*it) {
			slog.Debug("skipping remote echo")
			continue
		}
		if it.SameContent(last) {
			continue
		}
		last = *it

		slog.Debug("local change captured", "type", it.Kind, "bytes", len(it.Content))
		subject.Notify(userID, *it)
	}
}
