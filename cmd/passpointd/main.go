// Command passpointd queries Passpoint access points over wpa_supplicant and
// writes every decoded ANQP response as a JSON event.
//
// Usage:
//
//	passpointd run [--config path] [--log-level info] [--log-format json]
//	passpointd decode --element DomainName 0b6578616d706c652e636f6d
//
// Every flag can also be set through the environment with the PASSPOINTD_
// prefix (PASSPOINTD_LOG_LEVEL, PASSPOINTD_CONFIG_PATH, ...).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "passpointd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PASSPOINTD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "passpointd",
		Short:         "Passpoint ANQP query daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.PersistentFlags().String("log-format", "json", "log format: json, text")
	_ = v.BindPFlag("log_format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(newRunCmd(v))
	root.AddCommand(newDecodeCmd(v))
	return root
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

func loggerFrom(cmd *cobra.Command, v *viper.Viper) (*slog.Logger, error) {
	return buildLogger(cmd.ErrOrStderr(), v.GetString("log_level"), v.GetString("log_format"))
}
