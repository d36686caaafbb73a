package cli

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/ancware/tunelink/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show protocol version and compatibility",
	Long: `Show the protocol version this build speaks and the versions it
advertises to peers.

With --check the given peer version is judged under the selected
compatibility mode, the same verdict the link applies to handshakes.
An incompatible peer makes the command fail, which scripts can use
before flashing a unit.

Examples:
  tunelink version
  tunelink version --check 1.0.2
  tunelink version --check 2.0.0 --compat strict`,
	RunE: runVersion,
}

type versionOptions struct {
	local  string
	compat string
	check  string
}

var versionOpts = &versionOptions{}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVar(&versionOpts.local, "local", engine.ProtocolVersion, "local protocol version to judge from")
	versionCmd.Flags().StringVar(&versionOpts.compat, "compat", "minor", "compatibility mode: minor, strict, backward or forward")
	versionCmd.Flags().StringVar(&versionOpts.check, "check", "", "peer protocol version to judge")
}

func runVersion(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)

	mode, err := engine.ParseCompatibilityMode(versionOpts.compat)
	if err != nil {
		d.Error("Unknown compatibility mode '%s'", versionOpts.compat)
		return err
	}

	gate, err := engine.NewVersionGate(versionOpts.local, mode, cliLogger(ctx))
	if err != nil {
		d.Error("Bad protocol version '%s': %v", versionOpts.local, err)
		return err
	}

	d.Info("tunelink %s", rootCmd.Version)
	d.Info("Protocol version %s, compatibility mode %s", gate.Local(), gate.Mode())
	d.Info("Advertised versions: %s", strings.Join(gate.Supported(), ", "))

	if versionOpts.check == "" {
		return nil
	}

	ok, reason := gate.Check(versionOpts.check)
	if !ok {
		d.Error("Peer %s is incompatible: %s", versionOpts.check, reason)
		return errors.Errorf("peer version %s rejected: %s", versionOpts.check, reason)
	}
	d.Success("Peer %s is compatible: %s", versionOpts.check, reason)
	return nil
}
