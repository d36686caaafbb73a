// Package cli implements the tunelink command line: parameter listing,
// one-shot set/get, live monitoring, stream capture and an interactive
// shell, all over the link selected by the --link DSN.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ancware/tunelink/pkg/sdk"
)

var rootCmd = &cobra.Command{
	Use:   "tunelink",
	Short: "Workbench for tuning active noise control units",
	Long: `Tunelink talks to an active noise control unit over its serial tuning
protocol. It resolves logical parameter paths through a mapping registry,
encodes them into framed wire messages, and decodes whatever the unit
reports back.

The link is selected with --link:

  serial:///dev/ttyUSB0?baud=115200   a serial device
  serial://COM3                       a Windows port name
  loop://                             in-process loopback, no hardware`,
	Version: "0.1.0",
}

// Context key types to avoid collisions
type contextKey string

const loggerKey contextKey = "logger"

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteWithContext runs the root command with a context carrying the logger
func ExecuteWithContext(ctx context.Context) error {
	rootCmd.SetContext(ctx)

	if logger := getLoggerFromContext(ctx); logger != nil {
		logger.Info().Str("cmd", "root").Msg("Executing root command")
	}

	return rootCmd.Execute()
}

// WithLogger stores the CLI logger in a context for ExecuteWithContext
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// getLoggerFromContext retrieves the logger from context
func getLoggerFromContext(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return &logger
	}
	return nil
}

// getDisplay builds the display honoring the --plain flag
func getDisplay(cmd *cobra.Command) *Display {
	plain, _ := cmd.Flags().GetBool("plain")
	return newDisplay(plain)
}

// linkOptions resolves the root link flags into SDK options
func linkOptions(cmd *cobra.Command) (*sdk.Options, error) {
	dsn, _ := cmd.Flags().GetString("link")
	opt, err := sdk.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if mapping, _ := cmd.Flags().GetString("mapping"); mapping != "" {
		opt.MappingFile = mapping
	}
	return opt, nil
}

// newClient builds a client without touching the device. Commands that only
// read the mapping registry use this.
func newClient(cmd *cobra.Command) (*sdk.Client, error) {
	opt, err := linkOptions(cmd)
	if err != nil {
		return nil, err
	}
	return sdk.NewClient(opt)
}

// openClient dials the link selected by the root flags
func openClient(cmd *cobra.Command, mutate ...func(*sdk.Options)) (*sdk.Client, error) {
	opt, err := linkOptions(cmd)
	if err != nil {
		return nil, err
	}
	for _, fn := range mutate {
		fn(opt)
	}
	return sdk.Open(opt)
}

// oneShot disables the retry queue for commands that exit right after
// sending; a failed send reports immediately instead of queueing a resend
// the process will never run.
func oneShot(opt *sdk.Options) {
	opt.DisableRetry = true
}

func init() {
	rootCmd.PersistentFlags().StringP("link", "l", "serial:///dev/ttyUSB0", "link DSN: serial://<device>?baud=N or loop://")
	rootCmd.PersistentFlags().String("mapping", "", "parameter mapping document to overlay")
	rootCmd.PersistentFlags().Bool("plain", false, "undecorated output for scripts")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}
