package transport

import (
	"github.com/rs/zerolog"
)

// Both implementations must satisfy the Transport interface
var (
	_ Transport = (*SerialTransport)(nil)
	_ Transport = (*LoopTransport)(nil)
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
