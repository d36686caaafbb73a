package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/ancware/tunelink/pkg/errors"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Serial transport defaults
const (
	DefaultBaudRate        = 115200
	DefaultSendTimeout     = 3 * time.Second
	DefaultCheckInterval   = 5 * time.Second
	reconnectAfterError    = 2 * time.Second
	reconnectAfterCheck    = 1 * time.Second
	serialReadBufferSize   = 4096
	serialReadPollInterval = 50 * time.Millisecond
)

// SerialConfig holds serial link configuration
type SerialConfig struct {
	PortName      string        `yaml:"port_name" json:"port_name"`
	BaudRate      int           `yaml:"baud_rate" json:"baud_rate"`
	SendTimeout   time.Duration `yaml:"send_timeout" json:"send_timeout"`
	AutoReconnect bool          `yaml:"auto_reconnect" json:"auto_reconnect"`
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
}

// DefaultSerialConfig returns the standard tuning link settings, 115200 8N1
func DefaultSerialConfig() *SerialConfig {
	return &SerialConfig{
		BaudRate:      DefaultBaudRate,
		SendTimeout:   DefaultSendTimeout,
		CheckInterval: DefaultCheckInterval,
	}
}

// SerialTransport drives a serial port with a background read loop, a
// connection check ticker and optional automatic reconnection. The port is
// always 8N1 without flow control.
type SerialTransport struct {
	callbacks

	config *SerialConfig
	logger zerolog.Logger

	mu           sync.Mutex
	port         serial.Port
	opened       bool
	wasConnected bool
	stopCheck    chan struct{}
	readerDone   chan struct{}
}

// NewSerialTransport creates a serial transport. Nil config uses defaults;
// the port name must be set before Open.
func NewSerialTransport(config *SerialConfig, logger zerolog.Logger) *SerialTransport {
	if config == nil {
		config = DefaultSerialConfig()
	}
	if config.BaudRate <= 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}

	return &SerialTransport{
		config: config,
		logger: logger.With().Str("component", "serial-transport").Logger(),
	}
}

// ListPorts enumerates the serial ports visible to the host
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.New(ErrOpenFailed, "cannot enumerate serial ports", err)
	}
	return ports, nil
}

// Open opens the configured port and starts the read loop and connection
// checker. Opening an already-open transport succeeds without side effects.
func (t *SerialTransport) Open() error {
	t.mu.Lock()
	if t.opened {
		t.mu.Unlock()
		t.logger.Debug().Str("port", t.config.PortName).Msg("Serial port already open")
		return nil
	}
	if t.config.PortName == "" {
		t.mu.Unlock()
		err := errors.New(ErrOpenFailed, "port name is empty", nil)
		t.emitError(err)
		return err
	}

	mode := &serial.Mode{
		BaudRate: t.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.config.PortName, mode)
	if err != nil {
		t.mu.Unlock()
		wrapped := errors.Newf(ErrOpenFailed, "cannot open serial port %s", t.config.PortName).WithCause(err)
		t.logger.Warn().Str("port", t.config.PortName).Err(err).Msg("Failed to open serial port")
		t.emitError(wrapped)
		return wrapped
	}
	port.SetReadTimeout(serialReadPollInterval)

	t.port = port
	t.opened = true
	t.wasConnected = true
	t.stopCheck = make(chan struct{})
	t.readerDone = make(chan struct{})
	go t.readLoop(port, t.readerDone)
	go t.checkLoop(t.stopCheck)
	t.mu.Unlock()

	t.logger.Info().
		Str("port", t.config.PortName).
		Int("baud", t.config.BaudRate).
		Msg("Serial port opened")
	t.emitState(true)
	return nil
}

// Close stops the background loops and closes the port
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	if !t.opened {
		t.mu.Unlock()
		return nil
	}
	t.opened = false
	close(t.stopCheck)
	port := t.port
	t.port = nil
	notify := t.wasConnected
	t.wasConnected = false
	readerDone := t.readerDone
	t.mu.Unlock()

	err := port.Close()
	<-readerDone

	t.logger.Info().Str("port", t.config.PortName).Msg("Serial port closed")
	if notify {
		t.emitState(false)
	}
	if err != nil {
		return errors.New(ErrCloseFailed, "error closing serial port", err)
	}
	return nil
}

// IsOpen reports whether the port is open
func (t *SerialTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

// Send writes the whole buffer within the configured send timeout
func (t *SerialTransport) Send(data []byte) error {
	t.mu.Lock()
	port := t.port
	open := t.opened
	t.mu.Unlock()

	if !open || port == nil {
		err := errors.New(ErrNotConnected, "serial port is not open", nil)
		t.emitError(err)
		return err
	}

	type writeResult struct {
		n   int
		err error
	}
	done := make(chan writeResult, 1)
	go func() {
		n, err := port.Write(data)
		done <- writeResult{n, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			wrapped := errors.New(ErrSendFailed, "serial write failed", res.err)
			t.emitError(wrapped)
			return wrapped
		}
		if res.n != len(data) {
			wrapped := errors.Newf(ErrSendFailed, "incomplete write: %d/%d bytes", res.n, len(data))
			t.emitError(wrapped)
			return wrapped
		}
		t.logger.Debug().Int("bytes", len(data)).Msg("Serial data sent")
		return nil
	case <-time.After(t.config.SendTimeout):
		wrapped := errors.Newf(ErrSendTimeout, "serial write timed out after %s", t.config.SendTimeout)
		t.emitError(wrapped)
		return wrapped
	}
}

// Description returns the port summary
func (t *SerialTransport) Description() string {
	return fmt.Sprintf("serial %s at %d bps", t.config.PortName, t.config.BaudRate)
}

// Kind returns the transport family name
func (t *SerialTransport) Kind() string {
	return "serial"
}

// readLoop pulls bytes off the port until it closes or fails. Read timeouts
// surface as empty reads and keep the loop polling.
func (t *SerialTransport) readLoop(port serial.Port, done chan struct{}) {
	defer close(done)

	buf := make([]byte, serialReadBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.logger.Debug().Int("bytes", n).Msg("Serial data received")
			t.emitData(data)
		}
		if err != nil {
			t.mu.Lock()
			stillOpen := t.opened && t.port == port
			t.mu.Unlock()
			if !stillOpen {
				return
			}
			t.handleLinkLost(err, reconnectAfterError)
			return
		}
	}
}

// handleLinkLost marks the link down and schedules a reconnect when enabled
func (t *SerialTransport) handleLinkLost(err error, reconnectDelay time.Duration) {
	t.logger.Warn().Err(err).Msg("Serial link lost")
	t.emitError(errors.New(ErrReadFailed, "serial link lost", err))

	t.mu.Lock()
	if !t.opened {
		t.mu.Unlock()
		return
	}
	t.opened = false
	close(t.stopCheck)
	port := t.port
	t.port = nil
	notify := t.wasConnected
	t.wasConnected = false
	t.mu.Unlock()

	if port != nil {
		port.Close()
	}
	if notify {
		t.emitState(false)
	}
	if t.config.AutoReconnect {
		time.AfterFunc(reconnectDelay, func() { t.attemptReconnect() })
	}
}

// checkLoop probes port health on a fixed interval. Read failures already
// tear the link down; the probe catches ports that die without erroring the
// read loop. Adapters without modem lines fail the first probe and are left
// unprobed after that.
func (t *SerialTransport) checkLoop(stop chan struct{}) {
	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	probeSupported := true
	probed := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			port := t.port
			open := t.opened
			t.mu.Unlock()
			if !open || port == nil || !probeSupported {
				continue
			}

			_, err := port.GetModemStatusBits()
			if err == nil {
				probed = true
				continue
			}
			if !probed {
				probeSupported = false
				t.logger.Debug().Msg("Serial adapter does not report modem status, connection checks disabled")
				continue
			}
			t.handleLinkLost(err, reconnectAfterCheck)
			return
		}
	}
}

// attemptReconnect reopens the port unless it came back already
func (t *SerialTransport) attemptReconnect() {
	if t.IsOpen() {
		return
	}
	t.logger.Info().Str("port", t.config.PortName).Msg("Attempting serial reconnection")
	if err := t.Open(); err != nil {
		t.logger.Debug().Err(err).Msg("Serial reconnection failed, will retry")
		if t.config.AutoReconnect {
			time.AfterFunc(reconnectAfterError, func() { t.attemptReconnect() })
		}
	}
}
