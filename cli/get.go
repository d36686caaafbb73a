package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/ancware/tunelink/pkg/sdk"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Read a parameter from link traffic",
	Long: `Read one parameter as the unit reports it.

The protocol has no read request: the unit pushes state on its own
schedule and answers writes with response frames. get subscribes to the
parameter's message type and waits for the next frame carrying the path,
falling back to the last value seen on the link when the wait expires.

Read-only stream paths (stream.*) work here too even though they cannot
be set.

Examples:
  tunelink get vehicle.speed
  tunelink get stream.sample_rate --wait 10s
  tunelink get anc.enabled --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

type getOptions struct {
	wait    time.Duration
	jsonOut bool
}

var getOpts = &getOptions{}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().DurationVar(&getOpts.wait, "wait", 5*time.Second, "how long to wait for a report")
	getCmd.Flags().BoolVar(&getOpts.jsonOut, "json", false, "print the value as JSON")
}

func runGet(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	client, err := openClient(cmd)
	if err != nil {
		d.Error("Failed to open link: %v", err)
		return err
	}
	defer client.Close()

	msgType, err := resolveReadPath(client, path)
	if err != nil {
		d.Error("Unknown parameter '%s'", path)
		d.Info("Use 'tunelink params list' to see mapped paths")
		return err
	}

	if logger != nil {
		logger.Info().Str("cmd", "get").Str("path", path).Str("type", protocol.MessageTypeName(msgType)).Msg("Waiting for report")
	}

	sub, cancel := client.SubscribeType(msgType, 16)
	defer cancel()

	timer := time.NewTimer(getOpts.wait)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return errors.New("link closed while waiting")
			}
			if v, found := msg.Params[path]; found {
				return printValue(d, path, v)
			}
		case <-timer.C:
			if v, found := client.Get(path); found {
				d.Warning("No fresh report within %s; last value seen on the link:", getOpts.wait)
				return printValue(d, path, v)
			}
			d.Error("No report carrying '%s' within %s", path, getOpts.wait)
			return errors.Errorf("no report for %s within %s", path, getOpts.wait)
		}
	}
}

// resolveReadPath maps a path to its message type, accepting both mapped
// parameters and the read-only paths the inbound codecs emit
func resolveReadPath(client *sdk.Client, path string) (protocol.MessageType, error) {
	if info, err := client.Describe(path); err == nil {
		return info.Type, nil
	}

	registry := protocol.NewRegistry()
	factory := protocol.NewCodecFactory()
	if err := messages.RegisterAll(registry, factory); err != nil {
		return 0, err
	}
	for _, t := range registry.List() {
		info, err := registry.Info(t)
		if err != nil {
			continue
		}
		for _, known := range info.Paths {
			if known == path {
				return t, nil
			}
		}
	}
	return 0, errors.Errorf("parameter %s is not mapped", path)
}

// printValue emits the value in the format the flags selected
func printValue(d *Display, path string, v protocol.Value) error {
	if getOpts.jsonOut {
		data, err := json.Marshal(map[string]interface{}{path: valueToGo(v)})
		if err != nil {
			return errors.Wrap(err, "encode value")
		}
		fmt.Println(string(data))
		return nil
	}
	d.Success("%s = %s", path, formatValue(v))
	return nil
}
