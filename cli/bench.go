package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	benchclient "github.com/ancware/tunelink/bench/client"
	"github.com/ancware/tunelink/bench/history"
	"github.com/ancware/tunelink/protocol"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Query a running bench daemon",
	Long: `Query the diagnostics gateway of a running tunelink-bench daemon.

The daemon owns the serial link; these commands go over HTTP and never
touch the hardware, so they are safe while a tuning session is live.

Examples:
  tunelink bench status
  tunelink bench stats
  tunelink bench history --type VEHICLE_STATE --since 15m
  tunelink bench captures --addr http://bench-rig:4710`,
}

var benchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, link and queue state",
	RunE:  runBenchStatus,
}

var benchStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the daemon's link counters",
	RunE:  runBenchStats,
}

var benchHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Search the daemon's message log",
	RunE:  runBenchHistory,
}

var benchCapturesCmd = &cobra.Command{
	Use:   "captures",
	Short: "List the daemon's stream captures",
	RunE:  runBenchCaptures,
}

type benchOptions struct {
	addr    string
	timeout time.Duration
	asJSON  bool

	session   string
	typeName  string
	direction string
	outcome   string
	since     string
	limit     int
}

var benchOpts = &benchOptions{}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.AddCommand(benchStatusCmd)
	benchCmd.AddCommand(benchStatsCmd)
	benchCmd.AddCommand(benchHistoryCmd)
	benchCmd.AddCommand(benchCapturesCmd)

	benchCmd.PersistentFlags().StringVar(&benchOpts.addr, "addr", benchclient.DefaultBaseURL, "gateway URL of the bench daemon")
	benchCmd.PersistentFlags().DurationVar(&benchOpts.timeout, "timeout", 5*time.Second, "request timeout")
	benchCmd.PersistentFlags().BoolVar(&benchOpts.asJSON, "json", false, "print raw JSON for scripting")

	benchHistoryCmd.Flags().StringVar(&benchOpts.session, "session", "", "only this session ID")
	benchHistoryCmd.Flags().StringVar(&benchOpts.typeName, "type", "", "only this message type")
	benchHistoryCmd.Flags().StringVar(&benchOpts.direction, "direction", "", "sent or received")
	benchHistoryCmd.Flags().StringVar(&benchOpts.outcome, "outcome", "", "sent, failed or decoded")
	benchHistoryCmd.Flags().StringVar(&benchOpts.since, "since", "", "age like 15m, or an RFC3339 time")
	benchHistoryCmd.Flags().IntVar(&benchOpts.limit, "limit", 20, "maximum rows, 0 for all")
}

func openBench(ctx context.Context) (*benchclient.Client, error) {
	return benchclient.New(benchclient.Settings{
		BaseURL: benchOpts.addr,
		Timeout: benchOpts.timeout,
	}, cliLogger(ctx))
}

func runBenchStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	if logger != nil {
		logger.Info().Str("cmd", "bench-status").Str("addr", benchOpts.addr).Msg("Querying bench status")
	}

	c, err := openBench(ctx)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	st, err := c.Status(ctx)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	if benchOpts.asJSON {
		return printJSON(st)
	}

	d.Success("Bench daemon at %s, session %s", c.BaseURL(), st.SessionID)
	d.Info("Up %s since %s", (time.Duration(st.UptimeSeconds) * time.Second).String(), st.StartedAt.Format("2006-01-02 15:04:05"))
	link := "down"
	if st.LinkConnected {
		link = "connected"
	}
	d.Info("Link %s (%s), %s", st.LinkKind, st.LinkDescription, link)
	d.Info("Send state %s, %d pending retries", st.SendState, st.PendingRetries)
	d.Info("Rx queue depth %d, %d dropped", st.RxQueueDepth, st.RxDropped)
	if st.PeerVersion != "" {
		d.Info("Peer protocol version %s", st.PeerVersion)
	}
	d.Info("History %s, capture %s", onOff(st.HistoryEnabled), activeIdle(st.CaptureActive))
	return nil
}

func runBenchStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	if logger != nil {
		logger.Info().Str("cmd", "bench-stats").Str("addr", benchOpts.addr).Msg("Querying bench stats")
	}

	c, err := openBench(ctx)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	st, err := c.Stats(ctx)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	if benchOpts.asJSON {
		return printJSON(st)
	}

	d.Info("Frames sent %d (%d bytes), received %d (%d bytes)", st.FramesSent, st.BytesSent, st.FramesReceived, st.BytesReceived)
	d.Info("Errors: %d encode, %d decode, %d send, %d rejected", st.EncodeErrors, st.DecodeErrors, st.SendErrors, st.Rejected)
	d.Info("Retries %d, exhausted %d, resyncs %d, %d bytes discarded", st.Retries, st.Exhausted, st.Resyncs, st.BytesDiscarded)
	if st.LastError != "" {
		d.Warning("Last error at %s: %s", st.LastErrorAt.Format("15:04:05"), st.LastError)
	}

	if len(st.ByType) == 0 {
		return nil
	}

	types := make([]protocol.MessageType, 0, len(st.ByType))
	for t := range st.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return protocol.MessageTypeName(types[i]) < protocol.MessageTypeName(types[j])
	})

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		ts := st.ByType[t]
		rows = append(rows, []string{
			protocol.MessageTypeName(t),
			fmt.Sprintf("%d", ts.Sent),
			fmt.Sprintf("%d", ts.Received),
			fmt.Sprintf("%d", ts.EncodeErrors),
			fmt.Sprintf("%d", ts.DecodeErrors),
		})
	}
	return d.Table(TableData{
		Headers: []string{"Type", "Sent", "Received", "Encode errors", "Decode errors"},
		Rows:    rows,
	})
}

func runBenchHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	if logger != nil {
		logger.Info().Str("cmd", "bench-history").Str("addr", benchOpts.addr).Msg("Querying bench history")
	}

	since, err := parseSince(benchOpts.since)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	c, err := openBench(ctx)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	recs, err := c.History(ctx, history.Query{
		SessionID:   benchOpts.session,
		MessageType: benchOpts.typeName,
		Direction:   benchOpts.direction,
		Outcome:     benchOpts.outcome,
		Since:       since,
		Limit:       benchOpts.limit,
	})
	if err != nil {
		d.Error("%v", err)
		return err
	}

	if benchOpts.asJSON {
		return printJSON(recs)
	}

	if len(recs) == 0 {
		d.Info("No matching history records")
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		outcome := r.Outcome
		if r.Detail != "" {
			outcome += ": " + r.Detail
		}
		rows = append(rows, []string{
			r.CreatedAt.Format("15:04:05.000"),
			r.Direction,
			r.MessageType,
			outcome,
			r.Paths,
		})
	}
	if err := d.Table(TableData{
		Headers: []string{"Time", "Direction", "Type", "Outcome", "Paths"},
		Rows:    rows,
	}); err != nil {
		return err
	}
	d.Info("%d records", len(recs))
	return nil
}

func runBenchCaptures(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	if logger != nil {
		logger.Info().Str("cmd", "bench-captures").Str("addr", benchOpts.addr).Msg("Querying bench captures")
	}

	c, err := openBench(ctx)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	caps, err := c.Captures(ctx)
	if err != nil {
		d.Error("%v", err)
		return err
	}

	if benchOpts.asJSON {
		return printJSON(caps)
	}

	if caps.Active != nil {
		d.Info("Capture %s is recording since %s", caps.Active.ID, caps.Active.Started.Format("15:04:05"))
	}
	if len(caps.Captures) == 0 {
		d.Info("No finished captures")
		return nil
	}

	rows := make([][]string, 0, len(caps.Captures))
	for _, info := range caps.Captures {
		rows = append(rows, []string{
			info.ID,
			fmt.Sprintf("%d", info.Records),
			formatBytes(info.Bytes),
			info.Started.Format("2006-01-02 15:04:05"),
		})
	}
	return d.Table(TableData{
		Headers: []string{"Capture", "Records", "Size", "Started"},
		Rows:    rows,
	})
}

// parseSince accepts an age like "15m" or an absolute RFC3339 time.
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if age, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-age), nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.Errorf("--since must be a duration like 15m or an RFC3339 time: %q", raw)
	}
	return at, nil
}

func printJSON(v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func activeIdle(b bool) string {
	if b {
		return "active"
	}
	return "idle"
}
