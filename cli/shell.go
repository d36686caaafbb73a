package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ancware/tunelink/pkg/sdk"
	"github.com/ancware/tunelink/protocol"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session on the link",
	Long: `Open an interactive session on the link.

The shell keeps one connection up across commands, so values reported by
the unit accumulate and sends reuse the handshake state. Tab completes
command names and parameter paths. Leave with 'quit' or Ctrl-D.

Examples:
  tunelink shell
  tunelink --link loop:// shell       # dry-run without hardware`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d := getDisplay(cmd)
	logger := getLoggerFromContext(ctx)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		d.Error("The shell needs a terminal on stdin")
		return errors.New("stdin is not a terminal")
	}

	client, err := openClient(cmd)
	if err != nil {
		d.Error("Failed to open link: %v", err)
		return err
	}
	defer client.Close()

	if logger != nil {
		logger.Info().Str("cmd", "shell").Str("link", client.Description()).Msg("Shell session started")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		d.Error("Failed to switch the terminal to raw mode: %v", err)
		return err
	}
	defer term.Restore(fd, oldState)

	screen := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	t := term.NewTerminal(screen, "tunelink> ")

	s := &shellSession{t: t, client: client}
	t.AutoCompleteCallback = s.complete

	s.say("Connected to %s, protocol %s", client.Description(), client.LocalVersion())
	s.say("Type 'help' for commands, 'quit' to leave")

	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		words := strings.Fields(strings.TrimSpace(line))
		if len(words) == 0 {
			continue
		}
		if s.dispatch(words) {
			return nil
		}
	}
}

// shellSession holds the terminal and link for one interactive run
type shellSession struct {
	t      *term.Terminal
	client *sdk.Client
}

// say writes one line. The terminal is raw, so line endings are explicit.
func (s *shellSession) say(format string, args ...interface{}) {
	fmt.Fprintf(s.t, format+"\r\n", args...)
}

// dispatch runs one command line and reports whether the session ends
func (s *shellSession) dispatch(words []string) bool {
	switch words[0] {
	case "help", "?":
		s.help()
	case "paths":
		s.paths()
	case "describe":
		s.describe(words[1:])
	case "set":
		s.set(words[1:])
	case "get":
		s.get(words[1:])
	case "monitor":
		s.monitor(words[1:])
	case "stats":
		s.stats()
	case "peer":
		s.peer(words[1:])
	case "version":
		s.version()
	case "quit", "exit":
		return true
	default:
		s.say("unknown command '%s', try 'help'", words[0])
	}
	return false
}

var shellCommands = []string{
	"describe", "exit", "get", "help", "monitor", "paths", "peer",
	"quit", "set", "stats", "version",
}

// complete fills in command names and parameter paths on tab
func (s *shellSession) complete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || pos != len(line) {
		return line, pos, false
	}

	words := strings.Fields(line)
	endsOpen := len(line) > 0 && line[len(line)-1] != ' '

	var candidates []string
	var partial string
	switch {
	case len(words) == 0:
		return line, pos, false
	case len(words) == 1 && endsOpen:
		candidates, partial = shellCommands, words[0]
	default:
		switch words[0] {
		case "describe", "get", "set":
			if endsOpen {
				partial = words[len(words)-1]
			}
			candidates = s.client.Paths()
		default:
			return line, pos, false
		}
	}

	var match string
	for _, c := range candidates {
		if !strings.HasPrefix(c, partial) {
			continue
		}
		if match != "" {
			return line, pos, false // ambiguous
		}
		match = c
	}
	if match == "" || match == partial {
		return line, pos, false
	}

	newLine := line[:len(line)-len(partial)] + match
	return newLine, len(newLine), true
}

func (s *shellSession) help() {
	s.say("Commands:")
	s.say("  paths                      list mapped parameter paths")
	s.say("  describe <path>            show one path's mapping")
	s.say("  set <path> <value> ...     send parameter values")
	s.say("  get <path>                 show the last value seen on the link")
	s.say("  monitor [count]            print the next messages as they arrive")
	s.say("  stats                      link and pipeline counters")
	s.say("  peer [<version>|clear]     record or clear the peer's version")
	s.say("  version                    local protocol version")
	s.say("  quit                       leave the shell")
}

func (s *shellSession) paths() {
	for _, path := range s.client.Paths() {
		info, err := s.client.Describe(path)
		if err != nil {
			continue
		}
		s.say("  %-28s %-18s %s", path, protocol.MessageTypeName(info.Type), kindLabel(info))
	}
}

func (s *shellSession) describe(args []string) {
	if len(args) != 1 {
		s.say("usage: describe <path>")
		return
	}
	info, err := s.client.Describe(args[0])
	if err != nil {
		s.say("unknown parameter '%s'", args[0])
		return
	}
	s.say("%s", info.LogicalPath)
	s.say("  wire field %s, kind %s, default %s", info.WireField, kindLabel(info), formatValue(info.Default))
	s.say("  message %s", protocol.MessageTypeName(info.Type))
	if info.Description != "" {
		s.say("  %s", info.Description)
	}
	if info.Deprecated {
		s.say("  deprecated, use '%s'", info.ReplacedBy)
	}
}

func (s *shellSession) set(args []string) {
	if len(args) == 0 || len(args)%2 != 0 {
		s.say("usage: set <path> <value> [<path> <value>...]")
		return
	}

	values := make(protocol.ParamMap, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		info, err := s.client.Describe(args[i])
		if err != nil {
			s.say("unknown parameter '%s'", args[i])
			return
		}
		v, err := parseParamValue(info, args[i+1])
		if err != nil {
			s.say("bad value for '%s': %v", args[i], err)
			return
		}
		values[args[i]] = v
	}

	if len(values) == 1 {
		for path, v := range values {
			if err := s.client.Set(path, v); err != nil {
				s.say("send failed: %v", err)
				return
			}
			s.say("sent %s = %s", path, formatValue(v))
		}
		return
	}

	report, err := s.client.SetGroup(values)
	if err != nil {
		if report != nil {
			for t, groupErr := range report.Failed {
				s.say("%s group failed: %v", protocol.MessageTypeName(t), groupErr)
			}
		} else {
			s.say("send failed: %v", err)
		}
		return
	}
	s.say("sent %d parameters in %d message groups", len(values), len(report.Sent))
}

func (s *shellSession) get(args []string) {
	if len(args) != 1 {
		s.say("usage: get <path>")
		return
	}
	if v, ok := s.client.Get(args[0]); ok {
		s.say("%s = %s", args[0], formatValue(v))
		return
	}
	s.say("no value for '%s' seen yet; the unit reports on its own schedule", args[0])
}

func (s *shellSession) monitor(args []string) {
	count := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			s.say("usage: monitor [count]")
			return
		}
		count = n
	}

	sub, cancel := s.client.Subscribe(64)
	defer cancel()

	s.say("waiting for %d messages, up to 30s", count)
	deadline := time.After(30 * time.Second)
	seen := 0
	for seen < count {
		select {
		case msg, ok := <-sub:
			if !ok {
				return
			}
			seen++
			s.say("%s %s [%s] %s",
				time.Now().Format("15:04:05.000"),
				protocol.MessageTypeName(msg.Type),
				protocol.FunctionCodeName(msg.Function),
				formatParams(msg.Params))
		case <-deadline:
			s.say("%d of %d messages within 30s", seen, count)
			return
		}
	}
}

func (s *shellSession) stats() {
	st := s.client.Stats()
	s.say("link %s, connected %v", s.client.Description(), s.client.Connected())
	s.say("frames sent %d (%d bytes), received %d (%d bytes)",
		st.FramesSent, st.BytesSent, st.FramesReceived, st.BytesReceived)
	s.say("errors: encode %d, decode %d, send %d, rejected %d",
		st.EncodeErrors, st.DecodeErrors, st.SendErrors, st.Rejected)
	s.say("retries %d, exhausted %d, pending %d, resyncs %d, discarded %d bytes",
		st.Retries, st.Exhausted, s.client.PendingRetries(), st.Resyncs, st.BytesDiscarded)
	if st.LastError != "" {
		s.say("last error at %s: %s", st.LastErrorAt.Format("15:04:05"), st.LastError)
	}
}

func (s *shellSession) peer(args []string) {
	switch {
	case len(args) == 0:
		if v, ok := s.client.PeerVersion(); ok {
			s.say("peer version %s, compatible", v)
		} else if v != "" {
			s.say("peer version %s, incompatible, inbound frames are dropped", v)
		} else {
			s.say("no peer version recorded, gate open")
		}
	case args[0] == "clear":
		s.client.ClearPeerVersion()
		s.say("peer version cleared, gate open")
	default:
		if err := s.client.SetPeerVersion(args[0]); err != nil {
			s.say("peer version %s rejected: %v", args[0], err)
			s.say("inbound frames will be dropped until 'peer clear'")
			return
		}
		s.say("peer version %s accepted", args[0])
	}
}

func (s *shellSession) version() {
	s.say("protocol %s", s.client.LocalVersion())
}
