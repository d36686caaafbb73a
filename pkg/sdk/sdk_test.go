package sdk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ancware/tunelink/pkg/sdk"
	"github.com/ancware/tunelink/transport"
)

func TestSDKBasics(t *testing.T) {
	// Test that we can create options
	logger := zap.NewNop()
	options := &sdk.Options{
		Logger: logger,
		Port:   "/dev/ttyUSB0",
	}

	// Test setting defaults
	options = options.SetDefaults()
	assert.Equal(t, "/dev/ttyUSB0", options.Port)
	assert.Equal(t, 115200, options.BaudRate)
	assert.Equal(t, 3*time.Second, options.SendTimeout)
	assert.Equal(t, 5*time.Second, options.CheckInterval)
	assert.Equal(t, "1.0.0", options.LocalVersion)
	assert.Equal(t, "minor", options.Compatibility)
}

func TestSetDefaultsFillsLogger(t *testing.T) {
	options := (&sdk.Options{}).SetDefaults()
	require.NotNil(t, options.Logger)
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		check    func(t *testing.T, opt *sdk.Options)
		hasError bool
	}{
		{
			name: "serial with device path",
			dsn:  "serial:///dev/ttyUSB0?baud=230400&reconnect=1",
			check: func(t *testing.T, opt *sdk.Options) {
				assert.Equal(t, "/dev/ttyUSB0", opt.Port)
				assert.Equal(t, 230400, opt.BaudRate)
				assert.True(t, opt.AutoReconnect)
			},
		},
		{
			name: "serial with bare port name",
			dsn:  "serial://COM3",
			check: func(t *testing.T, opt *sdk.Options) {
				assert.Equal(t, "COM3", opt.Port)
				assert.Equal(t, 0, opt.BaudRate)
				assert.False(t, opt.AutoReconnect)
			},
		},
		{
			name: "loopback",
			dsn:  "loop://",
			check: func(t *testing.T, opt *sdk.Options) {
				assert.True(t, opt.Loopback)
				assert.Empty(t, opt.Port)
			},
		},
		{
			name: "version and compat settings",
			dsn:  "serial://COM1?version=1.2.0&compat=strict",
			check: func(t *testing.T, opt *sdk.Options) {
				assert.Equal(t, "1.2.0", opt.LocalVersion)
				assert.Equal(t, "strict", opt.Compatibility)
			},
		},
		{
			name:     "serial without device",
			dsn:      "serial://",
			hasError: true,
		},
		{
			name:     "unknown scheme",
			dsn:      "postgres://localhost:5432/db",
			hasError: true,
		},
		{
			name:     "missing scheme",
			dsn:      "/dev/ttyUSB0",
			hasError: true,
		},
		{
			name:     "bad baud rate",
			dsn:      "serial://COM1?baud=fast",
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := sdk.ParseDSN(tt.dsn)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				tt.check(t, opt)
			}
		})
	}
}

func TestNewClientRequiresDevice(t *testing.T) {
	_, err := sdk.NewClient(&sdk.Options{})
	assert.ErrorIs(t, err, sdk.ErrMissingDevice)
}

func TestNewClientRejectsBadCompatibility(t *testing.T) {
	_, err := sdk.NewClient(&sdk.Options{
		Loopback:      true,
		Compatibility: "sideways",
	})
	assert.Error(t, err)
}

func TestNewClientAcceptsCustomTransport(t *testing.T) {
	loop := transport.NewLoopTransport("custom")
	client, err := sdk.NewClient(&sdk.Options{Transport: loop})
	require.NoError(t, err)
	defer client.Close()

	assert.False(t, client.Connected())
	require.NoError(t, client.Open())
	assert.True(t, client.Connected())
	assert.Contains(t, client.Description(), "custom")
}

func TestLocalVersion(t *testing.T) {
	client, err := sdk.NewClient(&sdk.Options{Loopback: true, LocalVersion: "1.3.5"})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "1.3.5", client.LocalVersion())
}
