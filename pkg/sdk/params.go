package sdk

import (
	"github.com/go-faster/errors"

	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/params"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
)

// Set resolves a logical path and sends its value as a request frame. On
// success the value enters the last-known-value cache. A transport failure
// with retry enabled still returns the error; the frame waits in the retry
// queue and its final outcome arrives through OnSendEvent.
func (c *Client) Set(path string, value protocol.Value) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	c.engMu.Lock()
	err := c.eng.SendParameter(path, value)
	c.engMu.Unlock()
	if err != nil {
		return err
	}

	c.rememberValues(protocol.ParamMap{path: value})
	return nil
}

// SetMany sends a map of parameters that must all resolve to one message
// type, producing a single frame. Mixed maps are refused; use SetGroup.
func (c *Client) SetMany(values protocol.ParamMap) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	c.engMu.Lock()
	err := c.eng.SendParameterValues(values)
	c.engMu.Unlock()
	if err != nil {
		return err
	}

	c.rememberValues(values)
	return nil
}

// SetGroup partitions a mixed parameter map by message type and sends one
// frame per group. The report records which groups went out; values of the
// failed groups stay out of the cache.
func (c *Client) SetGroup(values protocol.ParamMap) (*engine.GroupReport, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	c.engMu.Lock()
	report, err := c.eng.SendParameterGroup(values)
	c.engMu.Unlock()
	if report == nil {
		return nil, err
	}

	if len(report.Failed) == 0 {
		c.rememberValues(values)
		return report, err
	}

	sent := make(protocol.ParamMap, len(values))
	for path, v := range values {
		info, rerr := c.eng.Params().Resolve(path)
		if rerr != nil {
			continue
		}
		if _, failed := report.Failed[info.Type]; !failed {
			sent[path] = v
		}
	}
	c.rememberValues(sent)
	return report, err
}

// SetANCEnabled switches active noise cancellation
func (c *Client) SetANCEnabled(on bool) error {
	return c.Set(messages.PathAncEnabled, protocol.BoolValue(on))
}

// SetENCEnabled switches engine noise cancellation
func (c *Client) SetENCEnabled(on bool) error {
	return c.Set(messages.PathEncEnabled, protocol.BoolValue(on))
}

// SetRNCEnabled switches road noise cancellation
func (c *Client) SetRNCEnabled(on bool) error {
	return c.Set(messages.PathRncEnabled, protocol.BoolValue(on))
}

// SetAlpha sets the adaptive filter alpha step size. Alpha is the one
// coefficient the unit accepts on its own; beta and gamma only ride along
// with it, so they have no standalone setters. Use SetStepSizes for those.
func (c *Client) SetAlpha(v float32) error {
	return c.Set(messages.PathProcessingAlpha, protocol.Float32Value(v))
}

// SetStepSizes sets all three adaptive filter step sizes in one frame
func (c *Client) SetStepSizes(alpha, beta, gamma float32) error {
	return c.SetMany(protocol.ParamMap{
		messages.PathProcessingAlpha: protocol.Float32Value(alpha),
		messages.PathProcessingBeta:  protocol.Float32Value(beta),
		messages.PathProcessingGamma: protocol.Float32Value(gamma),
	})
}

// SetChannelCounts declares the reference, error microphone and speaker
// channel counts in one frame
func (c *Client) SetChannelCounts(refer, errMics, speakers uint32) error {
	return c.SetMany(protocol.ParamMap{
		messages.PathChannelReferNum: protocol.Uint32Value(refer),
		messages.PathChannelErrNum:   protocol.Uint32Value(errMics),
		messages.PathChannelSpkNum:   protocol.Uint32Value(speakers),
	})
}

// SetInputAmplitudes sets the per-input amplitude calibration array
func (c *Client) SetInputAmplitudes(values []uint32) error {
	return c.Set(messages.PathChannelInputAmplitude, uint32List(values))
}

// SetOutputAmplitude sets the output amplitude
func (c *Client) SetOutputAmplitude(v uint32) error {
	return c.Set(messages.PathChannelOutputAmplitude, protocol.Uint32Value(v))
}

// SetSwitchPoints sets the frequency switch point arrays. A nil slice skips
// its side; both sides nil is refused.
func (c *Client) SetSwitchPoints(input, output []uint32) error {
	values := make(protocol.ParamMap, 2)
	if input != nil {
		values[messages.PathChannelFInputPoi] = uint32List(input)
	}
	if output != nil {
		values[messages.PathChannelFOutputPoi] = uint32List(output)
	}
	if len(values) == 0 {
		return errors.New("tunelink: no switch points supplied")
	}
	return c.SetMany(values)
}

// SetVehicleSpeed reports the vehicle speed in km/h
func (c *Client) SetVehicleSpeed(kmh uint32) error {
	return c.Set(messages.PathVehicleSpeed, protocol.Uint32Value(kmh))
}

// SetEngineSpeed reports the engine speed in rpm
func (c *Client) SetEngineSpeed(rpm uint32) error {
	return c.Set(messages.PathVehicleEngineSpeed, protocol.Uint32Value(rpm))
}

// uint32List builds a list value from a uint32 slice
func uint32List(vs []uint32) protocol.Value {
	list := make([]protocol.Value, len(vs))
	for i, v := range vs {
		list[i] = protocol.Uint32Value(v)
	}
	return protocol.ListValue(list...)
}

// Get returns the last value written or reported for a path. The cache fills
// from successful sets and from decoded inbound messages; it says nothing
// about what the unit has applied.
func (c *Client) Get(path string) (protocol.Value, bool) {
	c.valMu.RLock()
	defer c.valMu.RUnlock()
	v, ok := c.values[path]
	return v, ok
}

// GetBool returns a cached bool value
func (c *Client) GetBool(path string) (bool, bool) {
	v, ok := c.Get(path)
	if !ok || v.Kind != protocol.KindBool {
		return false, false
	}
	return v.Bool, true
}

// GetUint32 returns a cached uint32 value
func (c *Client) GetUint32(path string) (uint32, bool) {
	v, ok := c.Get(path)
	if !ok || v.Kind != protocol.KindUint32 {
		return 0, false
	}
	return v.Uint32, true
}

// GetFloat32 returns a cached float32 value
func (c *Client) GetFloat32(path string) (float32, bool) {
	v, ok := c.Get(path)
	if !ok || v.Kind != protocol.KindFloat32 {
		return 0, false
	}
	return v.Float32, true
}

// Values returns a snapshot of the whole last-known-value cache
func (c *Client) Values() map[string]protocol.Value {
	c.valMu.RLock()
	defer c.valMu.RUnlock()
	out := make(map[string]protocol.Value, len(c.values))
	for path, v := range c.values {
		out[path] = v
	}
	return out
}

// Describe returns the mapping entry for a logical path
func (c *Client) Describe(path string) (params.ParameterInfo, error) {
	return c.eng.Params().Resolve(path)
}

// Paths returns every mapped logical path in sorted order
func (c *Client) Paths() []string {
	return c.eng.Params().Paths()
}

// LoadMapping overlays a parameter mapping document onto the registry
func (c *Client) LoadMapping(path string) error {
	return c.eng.Params().LoadFile(path)
}

// LocalVersion returns the protocol version this client offers
func (c *Client) LocalVersion() string {
	return c.eng.Gate().Local().String()
}

// SetPeerVersion records the unit's announced protocol version. While an
// incompatible version is recorded, inbound frames are dropped.
func (c *Client) SetPeerVersion(version string) error {
	return c.eng.SetPeerVersion(version)
}

// ClearPeerVersion forgets the unit's version until its next announcement
func (c *Client) ClearPeerVersion() {
	c.eng.ClearPeerVersion()
}

// PeerVersion returns the recorded peer version and whether it passed the
// gate
func (c *Client) PeerVersion() (string, bool) {
	return c.eng.PeerVersion()
}
