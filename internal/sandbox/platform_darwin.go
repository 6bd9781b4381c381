//go:build darwin

package sandbox

import (
	"syscall"

	"claimchain/internal/config"
)

// processLimit is a no-op on macOS; RLIMIT_NPROC is per-user there and
// clamping it would affect unrelated processes.
func processLimit(config.SandboxConfig) []string { return nil }

// maxRSSBytes passes through macOS's byte-denominated ru_maxrss.
func maxRSSBytes(rusage *syscall.Rusage) int64 {
	return rusage.Maxrss
}
