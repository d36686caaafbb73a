// Package config defines the bench daemon configuration tree and its
// YAML load/save/validate surface.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ancware/tunelink/engine"
	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/transport"
)

// Config is the root configuration for the bench daemon.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Link    LinkConfig    `yaml:"link"`
	Engine  EngineConfig  `yaml:"engine"`
	Queue   QueueConfig   `yaml:"queue"`
	Gateway GatewayConfig `yaml:"gateway"`
	History HistoryConfig `yaml:"history"`
	Capture CaptureConfig `yaml:"capture"`
}

// LogConfig controls log level, destinations and file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	FilePath   string `yaml:"file_path"`
	Cleanup    bool   `yaml:"cleanup"`     // truncate the log file on startup
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
}

// LinkConfig selects the wire the daemon talks over.
type LinkConfig struct {
	Kind   string           `yaml:"kind"` // serial or loopback
	Serial SerialLinkConfig `yaml:"serial"`
}

// SerialLinkConfig mirrors the serial transport settings with
// millisecond units so the file stays hand-editable.
type SerialLinkConfig struct {
	PortName        string `yaml:"port_name"`
	BaudRate        int    `yaml:"baud_rate"`
	SendTimeoutMs   int    `yaml:"send_timeout_ms"`
	AutoReconnect   bool   `yaml:"auto_reconnect"`
	CheckIntervalMs int    `yaml:"check_interval_ms"`
}

// Build converts the config-file form into the transport settings.
func (s SerialLinkConfig) Build() *transport.SerialConfig {
	return &transport.SerialConfig{
		PortName:      s.PortName,
		BaudRate:      s.BaudRate,
		SendTimeout:   time.Duration(s.SendTimeoutMs) * time.Millisecond,
		AutoReconnect: s.AutoReconnect,
		CheckInterval: time.Duration(s.CheckIntervalMs) * time.Millisecond,
	}
}

// EngineConfig configures the protocol engine hosted by the daemon.
type EngineConfig struct {
	LocalVersion  string      `yaml:"local_version"`
	Compatibility string      `yaml:"compatibility"` // strict, backward, forward, minor
	Retry         RetryConfig `yaml:"retry"`
	DisableRetry  bool        `yaml:"disable_retry"`
	FramerLimit   int         `yaml:"framer_limit"`
	MappingFile   string      `yaml:"mapping_file"` // optional parameter mapping overlay
}

// RetryConfig is the config-file form of the engine resend policy.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	IntervalMs  int `yaml:"interval_ms"`
	MaxQueued   int `yaml:"max_queued"`
}

// Build converts the engine section into an engine.Config.
func (e EngineConfig) Build() (engine.Config, error) {
	mode, err := engine.ParseCompatibilityMode(e.Compatibility)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		LocalVersion:  e.LocalVersion,
		Compatibility: mode,
		Retry: engine.RetryConfig{
			MaxAttempts: e.Retry.MaxAttempts,
			Interval:    time.Duration(e.Retry.IntervalMs) * time.Millisecond,
			MaxQueued:   e.Retry.MaxQueued,
		},
		DisableRetry: e.DisableRetry,
		FramerLimit:  e.FramerLimit,
	}, nil
}

// QueueConfig bounds the daemon run loop queues.
type QueueConfig struct {
	RxCapacity  int `yaml:"rx_capacity"`
	CmdCapacity int `yaml:"cmd_capacity"`
}

// GatewayConfig configures the HTTP diagnostics endpoint.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// HistoryConfig configures the send/receive history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CaptureConfig configures stream capture recording and export.
type CaptureConfig struct {
	Enabled bool         `yaml:"enabled"`
	Dir     string       `yaml:"dir"`
	Export  ExportConfig `yaml:"export"`
}

// ExportConfig holds object storage credentials for capture upload.
type ExportConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LoadDefaultConfig returns a configuration with sensible defaults.
func LoadDefaultConfig() *Config {
	serial := transport.DefaultSerialConfig()
	retry := engine.DefaultRetryConfig()
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			FilePath:   DEFAULT_LOG_FILE,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Link: LinkConfig{
			Kind: LINK_KIND_SERIAL,
			Serial: SerialLinkConfig{
				PortName:        serial.PortName,
				BaudRate:        serial.BaudRate,
				SendTimeoutMs:   int(serial.SendTimeout / time.Millisecond),
				AutoReconnect:   serial.AutoReconnect,
				CheckIntervalMs: int(serial.CheckInterval / time.Millisecond),
			},
		},
		Engine: EngineConfig{
			LocalVersion:  engine.ProtocolVersion,
			Compatibility: engine.ModeMinor.String(),
			Retry: RetryConfig{
				MaxAttempts: retry.MaxAttempts,
				IntervalMs:  int(retry.Interval / time.Millisecond),
				MaxQueued:   retry.MaxQueued,
			},
			MappingFile: DEFAULT_MAPPING_FILE,
		},
		Queue: QueueConfig{
			RxCapacity:  RX_QUEUE_CAPACITY,
			CmdCapacity: CMD_QUEUE_CAPACITY,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Address: DEFAULT_GATEWAY_ADDRESS,
			Port:    GATEWAY_SERVER_PORT,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DEFAULT_HISTORY_PATH,
		},
		Capture: CaptureConfig{
			Enabled: false,
			Dir:     DEFAULT_CAPTURE_DIR,
		},
	}
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(ErrConfigFileNotFound, "config file not found", err).AddContext("path", path)
		}
		return nil, errors.New(ErrConfigReadFailed, "failed to read config file", err).AddContext("path", path)
	}

	cfg := LoadDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(ErrConfigParseFailed, "failed to parse config file", err).AddContext("path", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New(ErrConfigEncodeFailed, "failed to encode config", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(ErrConfigWriteFailed, "failed to create config directory", err).AddContext("dir", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(ErrConfigWriteFailed, "failed to write config file", err).AddContext("path", path)
	}
	return nil
}

// Validate checks the whole configuration tree.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Link.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	return c.Capture.Validate()
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true, "panic": true,
}

// Validate checks the log section.
func (l LogConfig) Validate() error {
	if !validLogLevels[l.Level] {
		return errors.New(ErrInvalidLogLevel, "invalid log level", nil).AddContext("level", l.Level)
	}
	if !l.Console && l.FilePath == "" {
		return errors.New(ErrInvalidLogOutput, "logging requires console output or a file path", nil)
	}
	if l.MaxSize < 0 || l.MaxBackups < 0 || l.MaxAge < 0 {
		return errors.New(ErrInvalidLogOutput, "rotation settings must not be negative", nil)
	}
	return nil
}

// Validate checks the link section.
func (l LinkConfig) Validate() error {
	switch l.Kind {
	case LINK_KIND_SERIAL:
		if l.Serial.BaudRate <= 0 {
			return errors.New(ErrInvalidLinkKind, "serial link requires a positive baud rate", nil).
				AddContext("baud_rate", strconv.Itoa(l.Serial.BaudRate))
		}
		if l.Serial.SendTimeoutMs < 0 || l.Serial.CheckIntervalMs < 0 {
			return errors.New(ErrInvalidLinkKind, "serial timeouts must not be negative", nil)
		}
	case LINK_KIND_LOOPBACK:
	default:
		return errors.New(ErrInvalidLinkKind, "link kind must be serial or loopback", nil).AddContext("kind", l.Kind)
	}
	return nil
}

// Validate checks the engine section.
func (e EngineConfig) Validate() error {
	if _, err := engine.ParseCompatibilityMode(e.Compatibility); err != nil {
		return errors.New(ErrInvalidVersionMode, "invalid compatibility mode", err).AddContext("mode", e.Compatibility)
	}
	if e.LocalVersion != "" {
		if _, err := engine.ParseVersion(e.LocalVersion); err != nil {
			return errors.New(ErrInvalidVersionMode, "invalid local protocol version", err).
				AddContext("version", e.LocalVersion)
		}
	}
	if e.Retry.MaxAttempts < 0 || e.Retry.IntervalMs < 0 || e.Retry.MaxQueued < 0 {
		return errors.New(ErrInvalidRetryConfig, "retry settings must not be negative", nil)
	}
	if e.FramerLimit < 0 {
		return errors.New(ErrInvalidRetryConfig, "framer limit must not be negative", nil).
			AddContext("framer_limit", strconv.Itoa(e.FramerLimit))
	}
	return nil
}

// Validate checks the queue section.
func (q QueueConfig) Validate() error {
	if q.RxCapacity <= 0 {
		return errors.New(ErrInvalidQueueConfig, "rx queue capacity must be positive", nil).
			AddContext("rx_capacity", strconv.Itoa(q.RxCapacity))
	}
	if q.CmdCapacity <= 0 {
		return errors.New(ErrInvalidQueueConfig, "command queue capacity must be positive", nil).
			AddContext("cmd_capacity", strconv.Itoa(q.CmdCapacity))
	}
	return nil
}

// Validate checks the gateway section.
func (g GatewayConfig) Validate() error {
	if !g.Enabled {
		return nil
	}
	if g.Address == "" {
		return errors.New(ErrInvalidAddress, "gateway address must not be empty", nil)
	}
	if !IsValidPort(g.Port) {
		return errors.New(ErrInvalidPort, "gateway port out of range", nil).AddContext("port", strconv.Itoa(g.Port))
	}
	return nil
}

// Validate checks the history section.
func (h HistoryConfig) Validate() error {
	if h.Enabled && h.Path == "" {
		return errors.New(ErrInvalidHistoryPath, "history requires a database path", nil)
	}
	return nil
}

// Validate checks the capture section.
func (c CaptureConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Dir == "" {
		return errors.New(ErrInvalidCaptureDir, "capture requires a directory", nil)
	}
	if c.Export.Enabled {
		if c.Export.Endpoint == "" || c.Export.Bucket == "" {
			return errors.New(ErrInvalidExportConfig, "capture export requires an endpoint and bucket", nil)
		}
		if c.Export.AccessKey == "" || c.Export.SecretKey == "" {
			return errors.New(ErrInvalidExportConfig, "capture export requires credentials", nil)
		}
	}
	return nil
}

// ListenAddress joins the gateway address and port.
func (g GatewayConfig) ListenAddress() string {
	return net.JoinHostPort(g.Address, strconv.Itoa(g.Port))
}
