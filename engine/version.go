package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/pkg/errors"
)

// ProtocolVersion is the version this build speaks.
const ProtocolVersion = "1.0.0"

// defaultSupportedVersions seeds the advertised compatibility list.
var defaultSupportedVersions = []string{"1.0.0", "1.0.1", "1.0.2", "1.1.0"}

// CompatibilityMode selects how a peer's protocol version is judged against
// the local one.
type CompatibilityMode uint8

const (
	// ModeMinor accepts any peer that shares the local major version.
	ModeMinor CompatibilityMode = iota
	// ModeStrict accepts only an exact version match.
	ModeStrict
	// ModeBackward accepts peers at or below the local version.
	ModeBackward
	// ModeForward accepts peers at or above the local version.
	ModeForward
)

func (m CompatibilityMode) String() string {
	switch m {
	case ModeMinor:
		return "minor"
	case ModeStrict:
		return "strict"
	case ModeBackward:
		return "backward"
	case ModeForward:
		return "forward"
	default:
		return "unknown"
	}
}

// ParseCompatibilityMode maps a mode name from configuration to its
// CompatibilityMode value. The empty string selects the default mode.
func ParseCompatibilityMode(s string) (CompatibilityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minor":
		return ModeMinor, nil
	case "strict":
		return ModeStrict, nil
	case "backward":
		return ModeBackward, nil
	case "forward":
		return ModeForward, nil
	default:
		return ModeMinor, errors.Newf(ErrInvalidVersion, "unknown compatibility mode %q", s)
	}
}

// Version is a parsed major.minor.patch protocol version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "major.minor" or "major.minor.patch". A missing patch
// segment reads as zero; trailing segments beyond the third are rejected.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	parts := strings.Split(trimmed, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, errors.Newf(ErrInvalidVersion, "version %q must have two or three dot-separated segments", s)
	}

	segs := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, errors.Newf(ErrInvalidVersion, "version %q has a non-numeric segment %q", s, part)
		}
		segs[i] = n
	}
	return Version{Major: segs[0], Minor: segs[1], Patch: segs[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders two versions: -1 when v is older than o, 0 when equal,
// 1 when newer.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		return sign(v.Major - o.Major)
	}
	if v.Minor != o.Minor {
		return sign(v.Minor - o.Minor)
	}
	return sign(v.Patch - o.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// VersionGate answers whether envelopes from a peer of a given protocol
// version should be accepted. It also carries the advertised compatibility
// list shown to peers and tooling; that list is informational only, the
// verdict comes from the configured mode.
type VersionGate struct {
	mu        sync.RWMutex
	local     Version
	mode      CompatibilityMode
	supported map[string]struct{}
	logger    zerolog.Logger
}

// NewVersionGate builds a gate for the given local version and mode. The
// advertised list starts from the stock supported versions.
func NewVersionGate(local string, mode CompatibilityMode, logger zerolog.Logger) (*VersionGate, error) {
	v, err := ParseVersion(local)
	if err != nil {
		return nil, err
	}

	supported := make(map[string]struct{}, len(defaultSupportedVersions))
	for _, s := range defaultSupportedVersions {
		supported[s] = struct{}{}
	}

	return &VersionGate{
		local:     v,
		mode:      mode,
		supported: supported,
		logger:    logger.With().Str("component", "version-gate").Logger(),
	}, nil
}

// Local returns the gate's own protocol version.
func (g *VersionGate) Local() Version {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.local
}

// Mode returns the active compatibility mode.
func (g *VersionGate) Mode() CompatibilityMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// SetMode switches the compatibility mode at runtime.
func (g *VersionGate) SetMode(mode CompatibilityMode) {
	g.mu.Lock()
	g.mode = mode
	g.mu.Unlock()
	g.logger.Info().Str("mode", mode.String()).Msg("Compatibility mode changed")
}

// Check judges a remote version string against the local version under the
// active mode. The reason explains the verdict either way.
func (g *VersionGate) Check(remote string) (bool, string) {
	rv, err := ParseVersion(remote)
	if err != nil {
		return false, fmt.Sprintf("unparseable remote version %q", remote)
	}

	g.mu.RLock()
	local := g.local
	mode := g.mode
	g.mu.RUnlock()

	if rv == local {
		return true, "exact version match"
	}

	ok := false
	reason := ""
	switch mode {
	case ModeStrict:
		reason = fmt.Sprintf("strict mode requires %s, remote is %s", local, rv)
	case ModeBackward:
		if rv.Compare(local) <= 0 {
			ok, reason = true, "remote at or below local version"
		} else {
			reason = fmt.Sprintf("remote %s is newer than local %s", rv, local)
		}
	case ModeForward:
		if rv.Compare(local) >= 0 {
			ok, reason = true, "remote at or above local version"
		} else {
			reason = fmt.Sprintf("remote %s is older than local %s", rv, local)
		}
	case ModeMinor:
		if rv.Major == local.Major {
			ok, reason = true, "same major version"
		} else {
			reason = fmt.Sprintf("remote %s differs in major version from local %s", rv, local)
		}
	default:
		reason = fmt.Sprintf("unknown compatibility mode %d", mode)
	}

	if ok {
		g.logger.Warn().
			Str("remote", rv.String()).
			Str("local", local.String()).
			Str("mode", mode.String()).
			Msg("Peer version differs but is compatible")
	}
	return ok, reason
}

// AddSupported adds a version to the advertised list.
func (g *VersionGate) AddSupported(version string) error {
	v, err := ParseVersion(version)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.supported[v.String()] = struct{}{}
	g.mu.Unlock()
	return nil
}

// RemoveSupported drops a version from the advertised list.
func (g *VersionGate) RemoveSupported(version string) {
	v, err := ParseVersion(version)
	if err != nil {
		return
	}

	g.mu.Lock()
	delete(g.supported, v.String())
	g.mu.Unlock()
}

// Supported returns the advertised version list, sorted ascending.
func (g *VersionGate) Supported() []string {
	g.mu.RLock()
	versions := make([]Version, 0, len(g.supported))
	for s := range g.supported {
		if v, err := ParseVersion(s); err == nil {
			versions = append(versions, v)
		}
	}
	g.mu.RUnlock()

	sort.Slice(versions, func(i, j int) bool { return versions[i].Compare(versions[j]) < 0 })

	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out
}
