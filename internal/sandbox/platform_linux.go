//go:build linux

package sandbox

import (
	"fmt"
	"syscall"

	"claimchain/internal/config"
)

// processLimit returns the ulimit clause for the process-count ceiling,
// which only Linux supports.
func processLimit(cfg config.SandboxConfig) []string {
	if cfg.MaxProcesses <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("ulimit -u %d", cfg.MaxProcesses)}
}

// maxRSSBytes converts Linux's kilobyte ru_maxrss to bytes.
func maxRSSBytes(rusage *syscall.Rusage) int64 {
	return rusage.Maxrss * 1024
}
