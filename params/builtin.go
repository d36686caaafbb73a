package params

import (
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
)

// builtin describes one seeded mapping row
type builtin struct {
	path        string
	wireField   string
	kind        protocol.ValueKind
	def         protocol.Value
	msgType     protocol.MessageType
	description string
}

// builtins seeds every settable path of the shipped codecs so the stack is
// usable before any mapping document is loaded. A loaded document overlays
// these rows.
var builtins = []builtin{
	{messages.PathAncEnabled, "anc_off", protocol.KindBool, protocol.BoolValue(false), protocol.AncSwitch, "ANC enable/disable control"},
	{messages.PathEncEnabled, "enc_off", protocol.KindBool, protocol.BoolValue(false), protocol.AncSwitch, "ENC enable/disable control"},
	{messages.PathRncEnabled, "rnc_off", protocol.KindBool, protocol.BoolValue(false), protocol.AncSwitch, "RNC enable/disable control"},

	{messages.PathProcessingAlpha, "alpha_value", protocol.KindFloat32, protocol.Float32Value(0.5), protocol.AlphaParams, "RNC step size alpha"},
	{messages.PathProcessingBeta, "beta_value", protocol.KindFloat32, protocol.Float32Value(0), protocol.AlphaParams, "RNC step size beta"},
	{messages.PathProcessingGamma, "gamma_value", protocol.KindFloat32, protocol.Float32Value(0), protocol.AlphaParams, "RNC step size gamma"},

	{messages.PathChannelReferNum, "refer_num", protocol.KindUint32, protocol.Uint32Value(0), protocol.ChannelNumber, "Reference channel count"},
	{messages.PathChannelErrNum, "err_num", protocol.KindUint32, protocol.Uint32Value(0), protocol.ChannelNumber, "Error microphone channel count"},
	{messages.PathChannelSpkNum, "spk_num", protocol.KindUint32, protocol.Uint32Value(0), protocol.ChannelNumber, "Speaker channel count"},

	{messages.PathChannelInputAmplitude, "input_amplitude", protocol.KindUint32, protocol.ListValue(), protocol.ChannelAmplitude, "Per-input amplitude calibration"},
	{messages.PathChannelOutputAmplitude, "output_amplitude", protocol.KindUint32, protocol.Uint32Value(0), protocol.ChannelAmplitude, "Output amplitude"},

	{messages.PathChannelFInputPoi, "f_input_poi", protocol.KindUint32, protocol.ListValue(), protocol.ChannelSwitch, "Input frequency switch points"},
	{messages.PathChannelFOutputPoi, "f_output_poi", protocol.KindUint32, protocol.ListValue(), protocol.ChannelSwitch, "Output frequency switch points"},

	{messages.PathVehicleSpeed, "speed", protocol.KindUint32, protocol.Uint32Value(0), protocol.VehicleState, "Vehicle speed km/h"},
	{messages.PathVehicleEngineSpeed, "engine_speed", protocol.KindUint32, protocol.Uint32Value(0), protocol.VehicleState, "Engine speed rpm"},
	{messages.PathVehicleAC, "ac", protocol.KindUint32, protocol.Uint32Value(0), protocol.VehicleState, "Air conditioning level"},
	{messages.PathVehicleGear, "gear", protocol.KindUint32, protocol.Uint32Value(0), protocol.VehicleState, "Gear position"},
	{messages.PathVehicleDriveMod, "drive_mod", protocol.KindUint32, protocol.Uint32Value(0), protocol.VehicleState, "Drive mode"},
	{messages.PathVehicleDoor, "door", protocol.KindUint32, protocol.ListValue(), protocol.VehicleState, "Door opening degrees"},
	{messages.PathVehicleWindow, "window", protocol.KindUint32, protocol.ListValue(), protocol.VehicleState, "Window opening degrees"},
	{messages.PathVehicleMedia, "media", protocol.KindUint32, protocol.ListValue(), protocol.VehicleState, "Media channel states"},
}

// builtinMappings materializes the seed table into a fresh entry map
func builtinMappings() map[string]ParameterInfo {
	entries := make(map[string]ParameterInfo, len(builtins))
	for _, b := range builtins {
		entries[b.path] = ParameterInfo{
			LogicalPath: b.path,
			WireField:   b.wireField,
			Kind:        b.kind,
			Default:     b.def,
			Type:        b.msgType,
			Description: b.description,
		}
	}
	return entries
}
