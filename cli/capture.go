package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ancware/tunelink/bench/capture"
	"github.com/ancware/tunelink/protocol"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record stream health reports",
	Long: `Record the unit's stream health reports to capture files.

Each capture is one newline-delimited JSON file of decoded reports with
arrival timestamps. Finished captures can be pushed to S3-compatible
object storage for analysis elsewhere.

Examples:
  tunelink capture record --duration 30s
  tunelink capture record --export --endpoint localhost:9000 --bucket captures
  tunelink capture list
  tunelink capture export 01J8ZV9NQW3F2T7K4D8B5Y6X1C --endpoint localhost:9000 --bucket captures`,
}

var captureRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record stream reports from the link",
	RunE:  runCaptureRecord,
}

var captureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List finished captures",
	RunE:  runCaptureList,
}

var captureExportCmd = &cobra.Command{
	Use:   "export <capture-id>",
	Short: "Upload a finished capture to object storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaptureExport,
}

type captureOptions struct {
	dir       string
	endpoint  string
	accessKey string
	secretKey string
	bucket    string
	ssl       bool
}

type captureRecordOptions struct {
	duration time.Duration
	export   bool
}

var (
	captureOpts       = &captureOptions{}
	captureRecordOpts = &captureRecordOptions{}
)

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.AddCommand(captureRecordCmd)
	captureCmd.AddCommand(captureListCmd)
	captureCmd.AddCommand(captureExportCmd)

	captureCmd.PersistentFlags().StringVar(&captureOpts.dir, "dir", "data/captures", "directory holding capture files")
	captureCmd.PersistentFlags().StringVar(&captureOpts.endpoint, "endpoint", "", "object storage endpoint for export")
	captureCmd.PersistentFlags().StringVar(&captureOpts.accessKey, "access-key", "", "object storage access key")
	captureCmd.PersistentFlags().StringVar(&captureOpts.secretKey, "secret-key", "", "object storage secret key")
	captureCmd.PersistentFlags().StringVar(&captureOpts.bucket, "bucket", "", "object storage bucket")
	captureCmd.PersistentFlags().BoolVar(&captureOpts.ssl, "ssl", false, "use TLS for object storage")

	captureRecordCmd.Flags().DurationVar(&captureRecordOpts.duration, "duration", 0, "stop after this long, 0 for until interrupted")
	captureRecordCmd.Flags().BoolVar(&captureRecordOpts.export, "export", false, "upload the capture when recording stops")
}

func runCaptureRecord(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	client, err := openClient(cmd)
	if err != nil {
		d.Error("Failed to open link: %v", err)
		return err
	}
	defer client.Close()

	recorder := capture.NewRecorder(captureOpts.dir, cliLogger(ctx))
	id, err := recorder.Start()
	if err != nil {
		d.Error("Failed to start capture: %v", err)
		return err
	}

	sub, cancel := client.SubscribeType(protocol.StreamCheck, 256)
	defer cancel()

	if logger != nil {
		logger.Info().Str("cmd", "capture-record").Str("capture_id", id).Msg("Recording stream reports")
	}

	d.Info("Capture %s recording stream reports from %s", id, client.Description())
	if captureRecordOpts.duration > 0 {
		d.Info("Recording for %s", captureRecordOpts.duration)
	} else {
		d.Info("Interrupt to stop")
	}

	var timeout <-chan time.Time
	if captureRecordOpts.duration > 0 {
		timer := time.NewTimer(captureRecordOpts.duration)
		defer timer.Stop()
		timeout = timer.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timeout:
			break loop
		case msg, ok := <-sub:
			if !ok {
				break loop
			}
			recorder.Record(msg)
		}
	}

	info, err := recorder.Stop()
	if err != nil {
		d.Error("Failed to close capture: %v", err)
		return err
	}
	d.Success("Captured %d stream reports (%d bytes) to %s", info.Records, info.Bytes, info.Path)

	if captureRecordOpts.export {
		// The command context may already be canceled by the interrupt
		// that stopped recording; the upload still has to run.
		return exportCapture(context.Background(), d, info)
	}
	return nil
}

func runCaptureList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)

	recorder := capture.NewRecorder(captureOpts.dir, cliLogger(ctx))
	infos, err := recorder.List()
	if err != nil {
		d.Error("Failed to list captures: %v", err)
		return err
	}

	if len(infos) == 0 {
		d.Info("No captures in %s", captureOpts.dir)
		return nil
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.ID,
			formatBytes(info.Bytes),
			info.Started.Format("2006-01-02 15:04:05"),
			info.Path,
		})
	}

	if err := d.Table(TableData{
		Headers: []string{"Capture", "Size", "Started", "Path"},
		Rows:    rows,
	}); err != nil {
		return err
	}

	d.Info("%d captures in %s", len(infos), captureOpts.dir)
	return nil
}

func runCaptureExport(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	recorder := capture.NewRecorder(captureOpts.dir, cliLogger(ctx))
	infos, err := recorder.List()
	if err != nil {
		d.Error("Failed to list captures: %v", err)
		return err
	}

	for _, info := range infos {
		if info.ID != id {
			continue
		}
		if logger != nil {
			logger.Info().Str("cmd", "capture-export").Str("capture_id", id).Msg("Exporting capture")
		}
		return exportCapture(ctx, d, info)
	}

	d.Error("No capture '%s' in %s", id, captureOpts.dir)
	d.Info("Use 'tunelink capture list' to see finished captures")
	return errors.Errorf("capture %s not found", id)
}

// exportCapture uploads one capture using the shared storage flags
func exportCapture(ctx context.Context, d *Display, info capture.Info) error {
	exporter, err := capture.NewExporter(capture.ExportSettings{
		Endpoint:  captureOpts.endpoint,
		AccessKey: captureOpts.accessKey,
		SecretKey: captureOpts.secretKey,
		Bucket:    captureOpts.bucket,
		UseSSL:    captureOpts.ssl,
	}, cliLogger(ctx))
	if err != nil {
		d.Error("Export not configured: %v", err)
		return err
	}

	object, err := exporter.Export(ctx, info)
	if err != nil {
		d.Error("Export failed: %v", err)
		return err
	}

	d.Success("Exported capture to %s/%s", captureOpts.bucket, object)
	return nil
}

// cliLogger adapts the context logger for components that take one by value
func cliLogger(ctx context.Context) zerolog.Logger {
	if logger := getLoggerFromContext(ctx); logger != nil {
		return *logger
	}
	return zerolog.Nop()
}

// formatBytes renders a byte count with a binary unit suffix
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return strconv.FormatFloat(float64(n)/(1<<20), 'f', 1, 64) + " MiB"
	case n >= 1<<10:
		return strconv.FormatFloat(float64(n)/(1<<10), 'f', 1, 64) + " KiB"
	default:
		return strconv.FormatInt(n, 10) + " B"
	}
}
