// unitsim plays the unit end of a tuning link for manual testing.
//
// Point it at one end of a pty pair and the CLI or bench daemon at the
// other, and it streams synthetic health reports while echoing every
// parameter write back as a state report:
//
//	socat -d -d pty,raw,echo=0,link=/tmp/ttyUNIT pty,raw,echo=0,link=/tmp/ttyHOST
//	go run ./scripts/testing/unitsim -link serial:///tmp/ttyUNIT
//	tunelink monitor --link serial:///tmp/ttyHOST
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/ancware/tunelink/pkg/sdk"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
	"github.com/ancware/tunelink/transport"
)

func main() {
	var (
		link     = flag.String("link", "serial:///dev/ttyUSB1", "link DSN, serial://<device>[?baud=N] or loop://")
		rate     = flag.Float64("rate", 5, "stream reports per second")
		channels = flag.Int("channels", 4, "simulated audio channels")
		duration = flag.Duration("duration", 0, "how long to run, 0 for until interrupted")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if *channels < 1 {
		*channels = 1
	}
	if *channels > 32 {
		*channels = 32
	}

	logger.Info("Starting unit simulator", zap.String("link", *link))

	tr, err := openTransport(*link)
	if err != nil {
		logger.Fatal("Failed to build transport", zap.Error(err))
	}

	packager, err := messages.NewDefaultPackager()
	if err != nil {
		logger.Fatal("Failed to build packager", zap.Error(err))
	}

	sim := &simulator{
		tr:       tr,
		packager: packager,
		logger:   logger,
		framer:   protocol.NewPacketFramer(),
		state:    make(protocol.ParamMap),
		channels: *channels,
	}

	tr.OnDataReceived(sim.handleBytes)
	tr.OnStateChanged(func(connected bool) {
		logger.Info("Link state changed", zap.Bool("connected", connected))
	})
	tr.OnError(func(err error) {
		logger.Warn("Link error", zap.Error(err))
	})

	if err := tr.Open(); err != nil {
		logger.Fatal("Failed to open link", zap.Error(err))
	}
	defer tr.Close()
	logger.Info("Link open", zap.String("description", tr.Description()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Interrupt received, stopping simulator")
		cancel()
	}()

	sim.run(ctx, *rate)
	logger.Info("Simulator stopped",
		zap.Uint64("stream_reports", sim.streamReports),
		zap.Uint64("vehicle_reports", sim.vehicleReports),
		zap.Uint64("writes_applied", sim.writesApplied))
}

// openTransport builds the device-side transport from a DSN. The DSN
// grammar is the same one the CLI uses for --link.
func openTransport(dsn string) (transport.Transport, error) {
	opt, err := sdk.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opt.Loopback {
		return transport.NewLoopTransport("unitsim"), nil
	}

	trLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg := transport.DefaultSerialConfig()
	cfg.PortName = opt.Port
	if opt.BaudRate != 0 {
		cfg.BaudRate = opt.BaudRate
	}
	return transport.NewSerialTransport(cfg, trLogger), nil
}

// simulator holds the synthetic unit state: per-channel amplitudes on a
// random walk and a vehicle speed sweep.
type simulator struct {
	tr       transport.Transport
	packager *protocol.Packager
	logger   *zap.Logger
	channels int

	sendMu sync.Mutex

	framerMu sync.Mutex
	framer   *protocol.PacketFramer

	stateMu sync.Mutex
	state   protocol.ParamMap

	streamReports  uint64
	vehicleReports uint64
	writesApplied  uint64
}

func (s *simulator) run(ctx context.Context, rate float64) {
	if rate <= 0 {
		rate = 1
	}
	streamTick := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer streamTick.Stop()
	vehicleTick := time.NewTicker(500 * time.Millisecond)
	defer vehicleTick.Stop()

	amplitudes := make([]float32, s.channels)
	for i := range amplitudes {
		amplitudes[i] = 20 + rand.Float32()*40
	}
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-streamTick.C:
			s.walkAmplitudes(amplitudes)
			if err := s.sendStreamReport(amplitudes); err != nil {
				s.logger.Warn("Stream report failed", zap.Error(err))
			} else {
				s.streamReports++
			}
		case <-vehicleTick.C:
			if err := s.sendVehicleState(time.Since(start)); err != nil {
				s.logger.Warn("Vehicle report failed", zap.Error(err))
			} else {
				s.vehicleReports++
			}
		}
	}
}

// walkAmplitudes nudges each channel amplitude, clamped to the codec's
// accepted range.
func (s *simulator) walkAmplitudes(amplitudes []float32) {
	for i := range amplitudes {
		amplitudes[i] += rand.Float32()*6 - 3
		if amplitudes[i] < 0 {
			amplitudes[i] = 0
		}
		if amplitudes[i] > 100 {
			amplitudes[i] = 100
		}
	}
}

func (s *simulator) sendStreamReport(amplitudes []float32) error {
	entries := make([]protocol.Value, len(amplitudes))
	for i, amp := range amplitudes {
		entries[i] = protocol.MapValue(map[string]protocol.Value{
			"channel_id": protocol.Uint32Value(uint32(i)),
			"amplitude":  protocol.Float32Value(amp),
			"frequency":  protocol.Float32Value(100 + float32(i)*50),
		})
	}

	params := protocol.ParamMap{
		messages.PathStreamChannelCount: protocol.Uint32Value(uint32(len(amplitudes))),
		messages.PathStreamSampleRate:   protocol.Uint32Value(48000),
		messages.PathStreamDataFormat:   protocol.Uint32Value(1),
		messages.PathStreamChannels:     protocol.ListValue(entries...),
		messages.PathStreamTimestamp:    protocol.Float64Value(float64(time.Now().UnixMilli())),
	}
	return s.send(protocol.StreamCheck, params)
}

// sendVehicleState sweeps the speed up and down a 0..140 km/h triangle
// so gauges at the host end visibly move.
func (s *simulator) sendVehicleState(elapsed time.Duration) error {
	phase := math.Mod(elapsed.Seconds(), 60) / 60
	speed := 140 * (1 - math.Abs(2*phase-1))
	rpm := 800 + speed*45

	params := protocol.ParamMap{
		messages.PathVehicleSpeed:       protocol.Uint32Value(uint32(speed)),
		messages.PathVehicleEngineSpeed: protocol.Uint32Value(uint32(rpm)),
		messages.PathVehicleGear:        protocol.Uint32Value(uint32(1 + speed/30)),
	}
	return s.send(protocol.VehicleState, params)
}

func (s *simulator) send(t protocol.MessageType, params protocol.ParamMap) error {
	env, err := s.packager.EncodeParams(t, protocol.FunctionResponse, params)
	if err != nil {
		return err
	}
	frame, err := protocol.BuildFrame(env)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.tr.Send(frame)
}

// handleBytes runs on the transport's read goroutine.
func (s *simulator) handleBytes(data []byte) {
	s.framerMu.Lock()
	frames, err := s.framer.Feed(data)
	s.framerMu.Unlock()
	if err != nil {
		s.logger.Warn("Framing error", zap.Error(err))
	}

	for _, frame := range frames {
		msg, err := s.packager.DecodeParams(frame)
		if err != nil {
			s.logger.Warn("Undecodable frame", zap.Error(err))
			continue
		}
		s.handleMessage(msg)
	}
}

// handleMessage applies a host write and echoes the new state back, the
// way the unit reports after accepting a change.
func (s *simulator) handleMessage(msg *protocol.DecodedMessage) {
	s.logger.Info("Received message",
		zap.String("type", protocol.MessageTypeName(msg.Type)),
		zap.String("function", protocol.FunctionCodeName(msg.Function)),
		zap.Int("params", len(msg.Params)))

	if msg.Function != protocol.FunctionRequest {
		return
	}

	s.stateMu.Lock()
	for path, v := range msg.Params {
		s.state[path] = v
	}
	s.stateMu.Unlock()
	s.writesApplied++

	echoType := msg.Type
	echoParams := msg.Params
	time.AfterFunc(50*time.Millisecond, func() {
		if err := s.send(echoType, echoParams); err != nil {
			s.logger.Warn("State echo failed", zap.Error(err))
		}
	})
}
