package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/harborctl/harbor/pkg/log"
)

// MinMemoryBytes and MinDiskBytes are the floors every driver enforces
// on a requested ShipSpec, regardless of what the caller asked for.
const (
	MinMemoryBytes int64 = 128 * 1024 * 1024
	MinDiskBytes   int64 = 100 * 1024 * 1024
)

var unitMultipliers = map[string]int64{
	"":   1,
	"k":  1000,
	"m":  1000 * 1000,
	"g":  1000 * 1000 * 1000,
	"kb": 1000,
	"mb": 1000 * 1000,
	"gb": 1000 * 1000 * 1000,
	"ki": 1024,
	"mi": 1024 * 1024,
	"gi": 1024 * 1024 * 1024,
}

var sizeStringPattern = regexp.MustCompile(`^(\d+)([a-zA-Z]*)$`)

// parseSizeString parses strings like "512m", "1Gi", "100000" into a byte
// count. It is deliberately permissive about case and accepts both the
// binary (Ki/Mi/Gi) and decimal (k/m/g, kb/mb/gb) suffix families.
func parseSizeString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	match := sizeStringPattern.FindStringSubmatch(s)
	if match == nil {
		return 0, fmt.Errorf("invalid size string: %q", s)
	}
	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size string: %q", s)
	}
	unit := strings.ToLower(match[2])
	multiplier, ok := unitMultipliers[unit]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q in %q", match[2], s)
	}
	return value * multiplier, nil
}

// parseAndEnforceMinimumMemory parses a memory spec string and clamps it
// up to MinMemoryBytes, logging a warning when it does.
func parseAndEnforceMinimumMemory(memory string) (int64, error) {
	bytes, err := parseSizeString(memory)
	if err != nil {
		return 0, err
	}
	if bytes < MinMemoryBytes {
		log.WithComponent("runtime").Warn().
			Str("requested", memory).
			Int64("enforced_bytes", MinMemoryBytes).
			Msg("memory request below floor, clamping up")
		return MinMemoryBytes, nil
	}
	return bytes, nil
}

// parseAndEnforceMinimumDisk parses a disk spec string and clamps it up
// to MinDiskBytes, logging a warning when it does.
func parseAndEnforceMinimumDisk(disk string) (int64, error) {
	bytes, err := parseSizeString(disk)
	if err != nil {
		return 0, err
	}
	if bytes < MinDiskBytes {
		log.WithComponent("runtime").Warn().
			Str("requested", disk).
			Int64("enforced_bytes", MinDiskBytes).
			Msg("disk request below floor, clamping up")
		return MinDiskBytes, nil
	}
	return bytes, nil
}

// dockerToK8sSuffix maps the multiplier table above onto Kubernetes'
// own quantity suffix spelling, where they diverge.
var dockerToK8sSuffix = map[string]string{
	"k": "k", "kb": "k", "ki": "Ki",
	"m": "Mi", "mb": "M", "mi": "Mi",
	"g": "G", "gb": "G", "gi": "Gi",
	"": "",
}

// normalizeMemoryForK8s converts a Docker-style memory string into a
// Kubernetes resource.Quantity-compatible string, enforcing the same
// 128MiB floor as the other drivers. A value raised to the floor comes
// back as a raw byte count; any other value keeps its number and has its
// suffix rewritten through dockerToK8sSuffix.
//
// The bare "m" suffix is the crucial bug to avoid here: Docker treats
// "512m" as 512 mebibytes, but Kubernetes' quantity parser treats a
// trailing "m" as milli- (one-thousandth) of a base unit, so "512m"
// would be interpreted as 0.512 bytes. Harbor rewrites a Docker-style
// "m" or "mi" suffix to "Mi" (and "mb" to "M") before handing it to the
// Kubernetes client.
func normalizeMemoryForK8s(memory string) (string, error) {
	requested, err := parseSizeString(memory)
	if err != nil {
		return "", err
	}
	bytesVal, err := parseAndEnforceMinimumMemory(memory)
	if err != nil {
		return "", err
	}
	if bytesVal != requested {
		return strconv.FormatInt(bytesVal, 10), nil
	}
	match := sizeStringPattern.FindStringSubmatch(strings.TrimSpace(memory))
	return match[1] + dockerToK8sSuffix[strings.ToLower(match[2])], nil
}

func ensureShipDirs(baseDir, shipID string) (homeDir, metadataDir string, err error) {
	base := expandHome(baseDir)
	homeDir = filepath.Join(base, shipID, "home")
	metadataDir = filepath.Join(base, shipID, "metadata")
	for _, dir := range []string{homeDir, metadataDir} {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return "", "", fmt.Errorf("creating ship directory %s: %w", dir, err)
		}
	}
	return homeDir, metadataDir, nil
}

func shipDataExists(baseDir, shipID string) bool {
	base := expandHome(baseDir)
	homeDir := filepath.Join(base, shipID, "home")
	info, err := os.Stat(homeDir)
	return err == nil && info.IsDir()
}

// deleteShipData removes shipID's entire data directory (home and
// metadata). Only called from a driver's DeleteShipData, never from a
// stop path.
func deleteShipData(baseDir, shipID string) error {
	base := expandHome(baseDir)
	if err := os.RemoveAll(filepath.Join(base, shipID)); err != nil {
		return fmt.Errorf("deleting ship data for %s: %w", shipID, err)
	}
	return nil
}

// DownstreamAddress derives the reachable "host:port" for a Ship's
// address as the driver returned it. Host-mapped drivers already
// return "127.0.0.1:<port>"; internal-network drivers return a bare
// IP that needs the configured default ship port appended. Detection
// is the colon test the spec calls for: an address already carrying a
// port is left untouched.
func DownstreamAddress(address string, defaultPort int) string {
	if strings.Contains(address, ":") {
		return address
	}
	return fmt.Sprintf("%s:%d", address, defaultPort)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
