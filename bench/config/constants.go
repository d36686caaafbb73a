package config

// Diagnostics gateway constants
// The port is selected to avoid common development servers (8080, 3000,
// 5000) and the usual metrics ports (9090, 9100).
const (
	// Gateway Port - HTTP diagnostics endpoint of the bench daemon
	GATEWAY_SERVER_PORT = 4710

	// Default bind address; the bench talks to hardware on this machine,
	// diagnostics stay local unless configured otherwise
	DEFAULT_GATEWAY_ADDRESS = "127.0.0.1"
)

// Link constants
const (
	// Supported link kinds
	LINK_KIND_SERIAL   = "serial"
	LINK_KIND_LOOPBACK = "loopback"
)

// Run loop queue capacities
const (
	// RX_QUEUE_CAPACITY bounds buffered inbound byte chunks before the run
	// loop drains them
	RX_QUEUE_CAPACITY = 256

	// CMD_QUEUE_CAPACITY bounds queued commands (sends, reloads) from other
	// goroutines
	CMD_QUEUE_CAPACITY = 64
)

// Default file locations, relative to the working directory
const (
	DEFAULT_LOG_FILE     = "logs/tunelink-bench.log"
	DEFAULT_MAPPING_FILE = ""
	DEFAULT_HISTORY_PATH = "data/history.db"
	DEFAULT_CAPTURE_DIR  = "data/captures"
)

// Port validation constants
const (
	MIN_PORT = 1
	MAX_PORT = 65535
)

// IsValidPort checks if a port number is within valid range
func IsValidPort(port int) bool {
	return port >= MIN_PORT && port <= MAX_PORT
}
