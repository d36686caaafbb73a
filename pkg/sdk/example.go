package sdk

import (
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/ancware/tunelink/protocol"
)

// ExampleBasicUsage demonstrates connecting to a unit over serial and
// switching noise cancellation on
func ExampleBasicUsage() {
	// Create logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Create options
	opt := &Options{
		Logger:        logger,
		Port:          "/dev/ttyUSB0",
		BaudRate:      115200,
		AutoReconnect: true,
	}

	// Create client and open the link
	client, err := Open(opt)
	if err != nil {
		log.Fatalf("Failed to open link: %v", err)
	}
	defer client.Close()

	// Switch ANC on and tune the step sizes
	if err := client.SetANCEnabled(true); err != nil {
		log.Fatalf("Failed to enable ANC: %v", err)
	}
	if err := client.SetStepSizes(0.5, 0.1, 0.05); err != nil {
		log.Fatalf("Failed to set step sizes: %v", err)
	}

	fmt.Println("Connected to", client.Description())
}

// ExampleDSN demonstrates DSN parsing
func ExampleDSN() {
	// Parse DSN
	dsn := "serial:///dev/ttyUSB0?baud=230400&reconnect=1&compat=strict"
	opt, err := ParseDSN(dsn)
	if err != nil {
		log.Fatalf("Failed to parse DSN: %v", err)
	}

	// Create client from DSN
	client, err := Open(opt)
	if err != nil {
		log.Fatalf("Failed to open link: %v", err)
	}
	defer client.Close()

	fmt.Printf("Connected to %s\n", opt.Port)
}

// ExampleSubscription demonstrates watching inbound messages
func ExampleSubscription() {
	client, err := Open(&Options{Port: "/dev/ttyUSB0"})
	if err != nil {
		log.Fatalf("Failed to open link: %v", err)
	}
	defer client.Close()

	// Watch stream health reports only
	messages, cancel := client.SubscribeType(protocol.StreamCheck, 32)
	defer cancel()

	for msg := range messages {
		fmt.Printf("stream report with %d params\n", len(msg.Params))
	}
}

// ExampleOffline demonstrates the in-process loopback link, useful for
// development without hardware
func ExampleOffline() {
	client, err := Open(&Options{Loopback: true})
	if err != nil {
		log.Fatalf("Failed to open loopback: %v", err)
	}
	defer client.Close()

	if err := client.SetVehicleSpeed(120); err != nil {
		log.Fatalf("Failed to set speed: %v", err)
	}

	stats := client.Stats()
	fmt.Printf("frames sent: %d\n", stats.FramesSent)
}
