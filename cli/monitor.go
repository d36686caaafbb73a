package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/protocol"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow messages arriving on the link",
	Long: `Follow decoded messages as they arrive on the link.

Every frame the unit sends is printed with its message type, function
code and parameter values. Rejected frames (bad checksum, unknown type,
failed validation) are reported as warnings so wiring problems show up
immediately.

Runs until interrupted, or until --count messages have been shown.

Examples:
  tunelink monitor
  tunelink monitor --type STREAM_CHECK
  tunelink monitor --json --count 100 > traffic.jsonl`,
	RunE: runMonitor,
}

type monitorOptions struct {
	typeName string
	jsonOut  bool
	count    int
}

var monitorOpts = &monitorOptions{}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&monitorOpts.typeName, "type", "", "only show messages of this type")
	monitorCmd.Flags().BoolVar(&monitorOpts.jsonOut, "json", false, "print one JSON object per message")
	monitorCmd.Flags().IntVar(&monitorOpts.count, "count", 0, "stop after this many messages, 0 for unlimited")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	client, err := openClient(cmd)
	if err != nil {
		d.Error("Failed to open link: %v", err)
		return err
	}
	defer client.Close()

	var (
		sub    <-chan *protocol.DecodedMessage
		cancel func()
	)
	if monitorOpts.typeName != "" {
		t, ok := protocol.MessageTypeFromName(monitorOpts.typeName)
		if !ok {
			d.Error("Unknown message type '%s'", monitorOpts.typeName)
			return errors.Errorf("unknown message type %q", monitorOpts.typeName)
		}
		sub, cancel = client.SubscribeType(t, 64)
	} else {
		sub, cancel = client.Subscribe(64)
	}
	defer cancel()

	if !monitorOpts.jsonOut {
		// Corrupt frames never reach the subscription, so surface them here
		client.OnError(func(err error) {
			d.Warning("Frame rejected: %v", err)
		})
		d.Info("Monitoring %s, interrupt to stop", client.Description())
	}

	if logger != nil {
		logger.Info().Str("cmd", "monitor").Str("type", monitorOpts.typeName).Msg("Monitoring link")
	}

	seen := 0
	for {
		select {
		case <-ctx.Done():
			printMonitorSummary(d, client.Stats(), seen)
			return nil

		case msg, ok := <-sub:
			if !ok {
				printMonitorSummary(d, client.Stats(), seen)
				return nil
			}
			seen++
			if err := printMessage(d, msg); err != nil {
				return err
			}
			if monitorOpts.count > 0 && seen >= monitorOpts.count {
				printMonitorSummary(d, client.Stats(), seen)
				return nil
			}
		}
	}
}

// printMessage renders one decoded message in the selected format
func printMessage(d *Display, msg *protocol.DecodedMessage) error {
	if monitorOpts.jsonOut {
		data, err := json.Marshal(map[string]interface{}{
			"time":     time.Now().Format(time.RFC3339Nano),
			"type":     protocol.MessageTypeName(msg.Type),
			"function": protocol.FunctionCodeName(msg.Function),
			"params":   paramsToGo(msg.Params),
		})
		if err != nil {
			return errors.Wrap(err, "encode message")
		}
		fmt.Println(string(data))
		return nil
	}

	d.Info("%s %s [%s] %s",
		time.Now().Format("15:04:05.000"),
		protocol.MessageTypeName(msg.Type),
		protocol.FunctionCodeName(msg.Function),
		formatParams(msg.Params))
	return nil
}

// formatParams renders a parameter map as sorted path=value pairs
func formatParams(p protocol.ParamMap) string {
	paths := make([]string, 0, len(p))
	for path := range p {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	parts := make([]string, len(paths))
	for i, path := range paths {
		parts[i] = path + "=" + formatValue(p[path])
	}
	return strings.Join(parts, " ")
}

func printMonitorSummary(d *Display, st engine.Stats, seen int) {
	if monitorOpts.jsonOut {
		return
	}
	d.Info("%d messages shown, %d frames received, %d rejected, %d decode errors",
		seen, st.FramesReceived, st.Rejected, st.DecodeErrors)
}
