package cli

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/ancware/tunelink/params"
	"github.com/ancware/tunelink/protocol"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Inspect the parameter mapping",
	Long: `Inspect the logical parameter paths the link understands.

The stack ships with a builtin mapping covering every supported message
type. A mapping document passed with --mapping overlays the builtin rows,
which is how device teams rename wire fields or deprecate paths between
firmware revisions.

Examples:
  tunelink params list                          # All mapped paths
  tunelink params list --type VEHICLE_STATE     # Paths of one message type
  tunelink params describe anc.enabled          # One path in detail`,
}

var paramsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mapped parameter paths",
	RunE:  runParamsList,
}

var paramsDescribeCmd = &cobra.Command{
	Use:   "describe <path>",
	Short: "Show one parameter's mapping in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runParamsDescribe,
}

type paramsListOptions struct {
	typeName string
}

var paramsListOpts = &paramsListOptions{}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.AddCommand(paramsListCmd)
	paramsCmd.AddCommand(paramsDescribeCmd)

	paramsListCmd.Flags().StringVar(&paramsListOpts.typeName, "type", "", "only show paths of this message type")
}

func runParamsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	if logger != nil {
		logger.Info().Str("cmd", "params-list").Str("type", paramsListOpts.typeName).Msg("Listing mapped parameters")
	}

	client, err := newClient(cmd)
	if err != nil {
		d.Error("Failed to load parameter mapping: %v", err)
		return err
	}
	defer client.Close()

	var filter protocol.MessageType
	filtered := paramsListOpts.typeName != ""
	if filtered {
		t, ok := protocol.MessageTypeFromName(paramsListOpts.typeName)
		if !ok {
			d.Error("Unknown message type '%s'", paramsListOpts.typeName)
			return errors.Errorf("unknown message type %q", paramsListOpts.typeName)
		}
		filter = t
	}

	var rows [][]string
	for _, path := range client.Paths() {
		info, err := client.Describe(path)
		if err != nil {
			d.Error("Failed to resolve path '%s': %v", path, err)
			return err
		}
		if filtered && info.Type != filter {
			continue
		}
		rows = append(rows, []string{
			info.LogicalPath,
			protocol.MessageTypeName(info.Type),
			kindLabel(info),
			formatValue(info.Default),
			parameterNotes(info),
		})
	}

	if len(rows) == 0 {
		d.Info("No mapped parameters match")
		return nil
	}

	if err := d.Table(TableData{
		Headers: []string{"Path", "Message", "Kind", "Default", "Notes"},
		Rows:    rows,
	}); err != nil {
		return err
	}

	d.Info("%d parameters mapped", len(rows))
	return nil
}

func runParamsDescribe(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	if logger != nil {
		logger.Info().Str("cmd", "params-describe").Str("path", path).Msg("Describing parameter")
	}

	client, err := newClient(cmd)
	if err != nil {
		d.Error("Failed to load parameter mapping: %v", err)
		return err
	}
	defer client.Close()

	info, err := client.Describe(path)
	if err != nil {
		d.Error("Unknown parameter '%s'", path)
		d.Info("Use 'tunelink params list' to see mapped paths")
		return err
	}

	d.Info("Parameter: %s", info.LogicalPath)
	d.Info("  Wire field:  %s", info.WireField)
	d.Info("  Kind:        %s", kindLabel(info))
	d.Info("  Default:     %s", formatValue(info.Default))
	d.Info("  Message:     %s", protocol.MessageTypeName(info.Type))
	if id, ok := protocol.ProtoIDForType(info.Type); ok {
		d.Info("  ProtoID:     %d", id)
	}
	if info.Description != "" {
		d.Info("  Description: %s", info.Description)
	}
	if info.Deprecated {
		d.Warning("Deprecated path; use '%s' instead", info.ReplacedBy)
	}
	return nil
}

// kindLabel renders the field kind, marking list-valued parameters
func kindLabel(info params.ParameterInfo) string {
	label := protocol.ValueKindNames[info.Kind]
	if info.Default.Kind == protocol.KindList {
		return label + " list"
	}
	return label
}

// parameterNotes summarizes description and deprecation for the list view
func parameterNotes(info params.ParameterInfo) string {
	if info.Deprecated {
		return "deprecated, use " + info.ReplacedBy
	}
	return info.Description
}
