package cli

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/ancware/tunelink/protocol"
)

var setCmd = &cobra.Command{
	Use:   "set <path> <value> [<path> <value>...]",
	Short: "Send parameter values to the unit",
	Long: `Send one or more parameter values over the link.

A single pair goes out as one request frame. Multiple pairs are grouped
by message type and sent as one frame per type, ordered by type number,
so related values land on the unit together.

Values follow the mapped kind: switches take on/off, lists take
comma-separated entries, floats take decimal notation.

Examples:
  tunelink set anc.enabled on
  tunelink set vehicle.speed 120
  tunelink set channel.input_amplitude 100,200,300
  tunelink set processing.alpha 0.5 vehicle.speed 80 anc.enabled off`,
	Args: validateSetArgs,
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func validateSetArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || len(args)%2 != 0 {
		return errors.New("set takes path and value pairs")
	}
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	client, err := openClient(cmd, oneShot)
	if err != nil {
		d.Error("Failed to open link: %v", err)
		return err
	}
	defer client.Close()

	values := make(protocol.ParamMap, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		path, raw := args[i], args[i+1]

		info, err := client.Describe(path)
		if err != nil {
			d.Error("Unknown parameter '%s'", path)
			d.Info("Use 'tunelink params list' to see mapped paths")
			return err
		}

		v, err := parseParamValue(info, raw)
		if err != nil {
			d.Error("Bad value for '%s': %v", path, err)
			return err
		}
		values[path] = v
	}

	if logger != nil {
		logger.Info().Str("cmd", "set").Int("params", len(values)).Msg("Sending parameters")
	}

	if len(values) == 1 {
		for path, v := range values {
			if err := client.Set(path, v); err != nil {
				if logger != nil {
					logger.Error().Str("cmd", "set").Str("path", path).Err(err).Msg("Send failed")
				}
				d.Error("Send failed: %v", err)
				return err
			}
			d.Success("Sent %s = %s over %s", path, formatValue(v), client.Description())
		}
		return nil
	}

	report, err := client.SetGroup(values)
	if err != nil {
		if logger != nil {
			logger.Error().Str("cmd", "set").Err(err).Msg("Group send failed")
		}
		if report != nil && len(report.Failed) > 0 {
			for t, groupErr := range report.Failed {
				d.Error("%s group failed: %v", protocol.MessageTypeName(t), groupErr)
			}
			for _, t := range report.Sent {
				d.Warning("%s group had already been sent", protocol.MessageTypeName(t))
			}
		} else {
			d.Error("Send failed: %v", err)
		}
		return err
	}

	d.Success("Sent %d parameters in %d message groups over %s",
		len(values), len(report.Sent), client.Description())
	return nil
}
