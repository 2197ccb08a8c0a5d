package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPasteCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "paste",
		Short: "Print the user's latest clip",
		Long: `Fetches the most recent clip from the user's history and writes
its payload to stdout. Image payloads are written raw; redirect to a file.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runPaste(v) },
	}

	addClientFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runPaste(v *viper.Viper) error {
	setupLogging(v)

	userID := v.GetString("user")
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	items, err := fetchHistory(v.GetString("relay"), userID, v.GetString("token"), 1)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no clips for user %s", userID)
	}

	if _, err := os.Stdout.Write(items[0].Content); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}
