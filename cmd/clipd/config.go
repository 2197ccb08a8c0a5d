package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.clipd.dev/clipd/internal/logging"
	"go.clipd.dev/clipd/internal/secret"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPD_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPD_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipd")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipd/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/clipd", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPD")
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addClientFlags adds the flags shared by every command that talks to a relay.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("relay", "localhost:8941", "relay address (host:port)")
	f.String("user", "", "user id owning the clipboard room")
	f.String("token", "", "credential: JWT or the relay's shared secret")
	f.String("device", defaultDevice(), "name for this device in origin tags")
}

// clientWireConfig resolves the wire key and JOIN token for commands that
// dial the relay's wire protocol. With only --wire-secret set the secret
// doubles as the shared token, matching the relay's single-user mode.
func clientWireConfig(v *viper.Viper) (*[32]byte, string, error) {
	wireSecret := v.GetString("wire-secret")
	token := v.GetString("token")
	if token == "" {
		token = wireSecret
	}

	var key *[32]byte
	if wireSecret != "" {
		var err error
		key, err = secret.DeriveKey(wireSecret)
		if err != nil {
			return nil, "", fmt.Errorf("key derivation: %w", err)
		}
	}
	return key, token, nil
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}
