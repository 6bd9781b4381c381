//go:build !windows

package sandbox

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"claimchain/internal/config"
)

// wrapWithLimits prefixes the command with shell ulimit calls so the
// ceilings apply inside the child before it execs the real binary. The
// original argv is passed through untouched via "$0" "$@".
func wrapWithLimits(cfg config.SandboxConfig, binary string, args []string) (string, []string) {
	var ulimits []string
	if cfg.MaxMemoryMB > 0 {
		ulimits = append(ulimits, fmt.Sprintf("ulimit -v %d", cfg.MaxMemoryMB*1024))
	}
	if cfg.MaxCPUTime > 0 {
		secs := int64(cfg.MaxCPUTime.Seconds())
		if secs < 1 {
			secs = 1
		}
		ulimits = append(ulimits, fmt.Sprintf("ulimit -t %d", secs))
	}
	ulimits = append(ulimits, processLimit(cfg)...)
	if len(ulimits) == 0 {
		return binary, args
	}

	script := strings.Join(ulimits, "; ") + `; exec "$0" "$@"`
	wrapped := append([]string{"-c", script, binary}, args...)
	return "/bin/sh", wrapped
}

// setupProcessGroup puts the child in its own process group so the whole
// tree can be killed on timeout.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
			syscall.Kill(-pgid, syscall.SIGTERM)
		}
	}
	if err := cmd.Process.Kill(); err != nil {
		if !strings.Contains(err.Error(), "process already finished") {
			return err
		}
	}
	return nil
}

// processUsage extracts rusage from a finished command.
func processUsage(cmd *exec.Cmd) *Usage {
	if cmd.ProcessState == nil {
		return nil
	}
	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return nil
	}
	return &Usage{
		UserTimeMs:   rusage.Utime.Sec*1000 + int64(rusage.Utime.Usec/1000),
		SystemTimeMs: rusage.Stime.Sec*1000 + int64(rusage.Stime.Usec/1000),
		MaxRSSBytes:  maxRSSBytes(rusage),
	}
}
