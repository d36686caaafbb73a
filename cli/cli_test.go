package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancware/tunelink/params"
	"github.com/ancware/tunelink/pkg/sdk"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
)

// newRegistryClient builds a loopback client for tests that only consult
// the parameter mapping
func newRegistryClient(t *testing.T) *sdk.Client {
	t.Helper()

	client, err := sdk.NewClient(&sdk.Options{Loopback: true})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestResolveReadPath(t *testing.T) {
	client := newRegistryClient(t)

	mt, err := resolveReadPath(client, "vehicle.speed")
	require.NoError(t, err)
	assert.Equal(t, protocol.VehicleState, mt)

	// Stream paths are inbound-only and live outside the mapping
	mt, err = resolveReadPath(client, "stream.sample_rate")
	require.NoError(t, err)
	assert.Equal(t, protocol.StreamCheck, mt)

	_, err = resolveReadPath(client, "made.up")
	assert.Error(t, err)
}

func TestValidateSetArgs(t *testing.T) {
	assert.Error(t, validateSetArgs(nil, nil))
	assert.Error(t, validateSetArgs(nil, []string{"anc.enabled"}))
	assert.NoError(t, validateSetArgs(nil, []string{"anc.enabled", "on"}))
	assert.NoError(t, validateSetArgs(nil, []string{"anc.enabled", "on", "vehicle.speed", "80"}))
}

func TestKindLabelMarksLists(t *testing.T) {
	client := newRegistryClient(t)

	info, err := client.Describe(messages.PathChannelInputAmplitude)
	require.NoError(t, err)
	assert.Equal(t, "Uint32 list", kindLabel(info))

	info, err = client.Describe(messages.PathAncEnabled)
	require.NoError(t, err)
	assert.Equal(t, "Bool", kindLabel(info))
}

func TestParameterNotes(t *testing.T) {
	deprecated := params.ParameterInfo{Deprecated: true, ReplacedBy: "anc.enabled", Description: "old control"}
	assert.Equal(t, "deprecated, use anc.enabled", parameterNotes(deprecated))

	plain := params.ParameterInfo{Description: "Vehicle speed km/h"}
	assert.Equal(t, "Vehicle speed km/h", parameterNotes(plain))
}

func TestShellCompletion(t *testing.T) {
	client := newRegistryClient(t)
	s := &shellSession{client: client}

	line, pos, ok := s.complete("desc", 4, '\t')
	require.True(t, ok)
	assert.Equal(t, "describe", line)
	assert.Equal(t, len("describe"), pos)

	line, _, ok = s.complete("get vehicle.en", 14, '\t')
	require.True(t, ok)
	assert.Equal(t, "get vehicle.engine_speed", line)

	// Several vehicle paths share the prefix, so nothing completes
	_, _, ok = s.complete("get vehicle.", 12, '\t')
	assert.False(t, ok)

	// Only tab at the end of the line completes
	_, _, ok = s.complete("stats", 5, 'x')
	assert.False(t, ok)
	_, _, ok = s.complete("desc", 2, '\t')
	assert.False(t, ok)
}

func TestSetCommandOverLoopback(t *testing.T) {
	rootCmd.SetArgs([]string{"--link", "loop://", "--plain", "set", "vehicle.speed", "80"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--link", "loop://", "--plain", "set", "vehicle.speed", "way-too-fast"})
	require.Error(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--link", "loop://", "--plain", "set", "made.up", "1"})
	require.Error(t, rootCmd.Execute())
}

func TestParamsCommandsOverLoopback(t *testing.T) {
	rootCmd.SetArgs([]string{"--link", "loop://", "--plain", "params", "list"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--link", "loop://", "--plain", "params", "describe", "anc.enabled"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--link", "loop://", "--plain", "params", "describe", "made.up"})
	require.Error(t, rootCmd.Execute())
}

func TestVersionCommandJudgesPeers(t *testing.T) {
	rootCmd.SetArgs([]string{"--plain", "version", "--check", "1.0.2"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--plain", "version", "--check", "2.0.0"})
	require.Error(t, rootCmd.Execute())
}
