// Package capture records live stream health reports to newline-delimited
// JSON files and can push finished captures to object storage.
package capture

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/pkg/errors"
	"github.com/ancware/tunelink/protocol"
	"github.com/ancware/tunelink/protocol/messages"
	"github.com/ancware/tunelink/utils"
)

// ChannelSample is one microphone channel reading inside a snapshot.
type ChannelSample struct {
	ChannelID uint32  `json:"channel_id"`
	Amplitude float32 `json:"amplitude"`
	Frequency float32 `json:"frequency"`
}

// StreamSnapshot is one capture line: the decoded stream health report
// plus the wall-clock time it arrived.
type StreamSnapshot struct {
	CapturedAt   time.Time       `json:"captured_at"`
	ChannelCount uint32          `json:"channel_count"`
	SampleRate   uint32          `json:"sample_rate"`
	DataFormat   uint32          `json:"data_format"`
	Channels     []ChannelSample `json:"channels"`
	Timestamp    uint64          `json:"timestamp,omitempty"` // device sample clock
}

// SnapshotFromMessage converts a decoded stream health report. The second
// return is false for any other message type.
func SnapshotFromMessage(msg *protocol.DecodedMessage) (*StreamSnapshot, bool) {
	if msg == nil || msg.Type != protocol.StreamCheck {
		return nil, false
	}

	snap := &StreamSnapshot{
		CapturedAt:   time.Now().UTC(),
		ChannelCount: msg.Params[messages.PathStreamChannelCount].Uint32,
		SampleRate:   msg.Params[messages.PathStreamSampleRate].Uint32,
		DataFormat:   msg.Params[messages.PathStreamDataFormat].Uint32,
	}
	for _, elem := range msg.Params[messages.PathStreamChannels].List {
		snap.Channels = append(snap.Channels, ChannelSample{
			ChannelID: elem.Map[streamChannelID].Uint32,
			Amplitude: elem.Map[streamAmplitude].Float32,
			Frequency: elem.Map[streamFrequency].Float32,
		})
	}
	if ts, ok := msg.Params[messages.PathStreamTimestamp]; ok {
		snap.Timestamp = uint64(ts.Float64)
	}
	return snap, true
}

// Map keys of a stream.channels entry
const (
	streamChannelID = "channel_id"
	streamAmplitude = "amplitude"
	streamFrequency = "frequency"
)

// Info summarizes a capture file.
type Info struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Records int       `json:"records"`
	Bytes   int64     `json:"bytes"`
	Started time.Time `json:"started"`
}

// Recorder writes stream snapshots to one NDJSON file per capture.
type Recorder struct {
	dir    string
	logger zerolog.Logger

	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	info    Info
	dropped int
}

// NewRecorder creates a recorder that stores captures under dir.
func NewRecorder(dir string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		dir:    dir,
		logger: logger.With().Str("component", "capture").Logger(),
	}
}

// Start opens a new capture file and returns its capture ID. Only one
// capture can run at a time.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return "", errors.New(ErrCaptureActive, "a capture is already running", nil).
			AddContext("capture_id", r.info.ID)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", errors.New(ErrCaptureIO, "failed to create capture directory", err).AddContext("dir", r.dir)
	}

	id := utils.GenerateULIDString()
	path := filepath.Join(r.dir, id+".ndjson")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.New(ErrCaptureIO, "failed to create capture file", err).AddContext("path", path)
	}

	r.file = file
	r.writer = bufio.NewWriter(file)
	r.info = Info{ID: id, Path: path, Started: time.Now().UTC()}
	r.dropped = 0

	r.logger.Info().Str("capture_id", id).Str("path", path).Msg("Capture started")
	return id, nil
}

// Record appends one snapshot line. Messages other than stream health
// reports and calls while no capture runs are ignored.
func (r *Recorder) Record(msg *protocol.DecodedMessage) {
	snap, ok := SnapshotFromMessage(msg)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}

	line, err := json.Marshal(snap)
	if err != nil {
		r.dropped++
		return
	}
	n, err := r.writer.Write(append(line, '\n'))
	if err != nil {
		r.dropped++
		r.logger.Warn().Err(err).Str("capture_id", r.info.ID).Msg("Failed to write capture record")
		return
	}

	r.info.Records++
	r.info.Bytes += int64(n)
}

// Active reports whether a capture file is open.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file != nil
}

// Current returns the running capture summary.
func (r *Recorder) Current() (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info, r.file != nil
}

// Stop flushes and closes the capture file, returning its summary.
func (r *Recorder) Stop() (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return Info{}, errors.New(ErrCaptureInactive, "no capture is running", nil)
	}

	flushErr := r.writer.Flush()
	closeErr := r.file.Close()
	info := r.info
	dropped := r.dropped

	r.file = nil
	r.writer = nil
	r.info = Info{}
	r.dropped = 0

	if flushErr != nil {
		return info, errors.New(ErrCaptureIO, "failed to flush capture file", flushErr).AddContext("path", info.Path)
	}
	if closeErr != nil {
		return info, errors.New(ErrCaptureIO, "failed to close capture file", closeErr).AddContext("path", info.Path)
	}

	evt := r.logger.Info().
		Str("capture_id", info.ID).
		Int("records", info.Records).
		Int64("bytes", info.Bytes)
	if dropped > 0 {
		evt = evt.Int("dropped", dropped)
	}
	evt.Msg("Capture stopped")
	return info, nil
}

// List returns summaries of finished capture files in the directory,
// newest first.
func (r *Recorder) List() ([]Info, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(ErrCaptureIO, "failed to read capture directory", err).AddContext("dir", r.dir)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".ndjson" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".ndjson")]
		started := fi.ModTime().UTC()
		if u, err := utils.ParseULID(id); err == nil {
			started = time.UnixMilli(int64(u.Time())).UTC()
		}
		infos = append(infos, Info{
			ID:      id,
			Path:    filepath.Join(r.dir, entry.Name()),
			Bytes:   fi.Size(),
			Started: started,
		})
	}

	// ULIDs sort by creation time, newest last; reverse for newest first
	for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
		infos[i], infos[j] = infos[j], infos[i]
	}
	return infos, nil
}
