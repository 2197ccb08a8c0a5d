package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/message"
	"go.clipd.dev/clipd/internal/wire"
)

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "copy [text]",
		Short: "Push a clip to the relay",
		Long: `Pushes one clip into the user's clipboard room. With no argument
the clip is read from stdin. The relay stamps it, stores it in history, and
delivers it to the user's other connected devices.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, args []string) error { return runCopy(v, args) },
	}

	addClientFlags(cmd)
	cmd.Flags().String("wire-secret", "", "relay secret for wire encryption (empty = plaintext)")
	cmd.Flags().Bool("image", false, "treat stdin as PNG image data")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runCopy(v *viper.Viper, args []string) error {
	setupLogging(v)

	userID := v.GetString("user")
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	key, token, err := clientWireConfig(v)
	if err != nil {
		return err
	}

	it, err := readInput(v, args)
	if err != nil {
		return err
	}
	it.UserID = userID
	it.OriginDevice = v.GetString("device")

	nc, err := net.DialTimeout("tcp", v.GetString("relay"), 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	wc := wire.New(nc, key)
	defer wc.Close()

	if err := wc.Write(message.Join(userID, it.OriginDevice, token)); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if err := wc.Write(message.Clip(it)); err != nil {
		return fmt.Errorf("send clip: %w", err)
	}

	persisted, err := awaitAck(wc)
	if err != nil {
		return err
	}
	if !persisted {
		fmt.Fprintln(os.Stderr, "clip delivered, but the relay could not store it in history")
		return nil
	}
	fmt.Fprintf(os.Stderr, "clip accepted (%d bytes)\n", len(it.Content))
	return nil
}

func readInput(v *viper.Viper, args []string) (item.Item, error) {
	if v.GetBool("image") {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return item.Item{}, fmt.Errorf("reading stdin: %w", err)
		}
		return item.NewImage(data, "png"), nil
	}
	if len(args) == 1 {
		return item.NewText(args[0]), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return item.Item{}, fmt.Errorf("reading stdin: %w", err)
	}
	return item.NewText(string(data)), nil
}

// awaitAck reads until the relay acknowledges the clip, answering liveness
// pings along the way.
func awaitAck(wc *wire.Conn) (bool, error) {
	wc.SetReadDeadline(10 * time.Second)
	for {
		msg, err := wc.Read()
		if err != nil {
			return false, fmt.Errorf("awaiting ack: %w", err)
		}
		switch msg.Type {
		case message.TypeAck:
			return msg.Persisted != nil && *msg.Persisted, nil
		case message.TypePing:
			_ = wc.Write(&message.Message{Type: message.TypePong})
		case message.TypeError:
			return false, errors.New(msg.Error)
		}
	}
}
