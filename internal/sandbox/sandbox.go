// Package sandbox runs untrusted commands (generated test suites, compile
// steps) in a throwaway working directory with enforced resource ceilings.
// Memory, CPU time, and process count are applied through rlimits in the
// child; wall-clock timeout and output size are enforced by the launcher.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/config"
	"claimchain/internal/logging"
)

// Command is one sandboxed invocation.
type Command struct {
	Binary  string
	Args    []string
	Dir     string
	Env     map[string]string
	Stdin   string
	Timeout time.Duration // zero means the configured default
}

// Usage is the observed resource footprint of a finished command.
type Usage struct {
	UserTimeMs   int64
	SystemTimeMs int64
	MaxRSSBytes  int64
}

// Result reports a completed (or killed) sandboxed run. A non-zero exit code
// is not an error; the command ran and the caller interprets the outcome.
type Result struct {
	ExitCode       int
	Stdout         string
	Stderr         string
	Truncated      bool
	TruncatedBytes int64
	Killed         bool
	KillReason     string
	StartedAt      time.Time
	Duration       time.Duration
	Usage          *Usage
}

// Sandbox launches commands under the configured ceilings.
type Sandbox struct {
	cfg config.SandboxConfig
	log *zap.Logger
}

func New(cfg config.SandboxConfig) *Sandbox {
	return &Sandbox{cfg: cfg, log: logging.For(logging.CategorySandbox)}
}

// NewWorkdir creates a throwaway working directory for one run. The cleanup
// func removes the directory and everything under it.
func (s *Sandbox) NewWorkdir(prefix string) (string, func(), error) {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating sandbox workdir: %w", err)
	}
	s.log.Debug("sandbox workdir created", zap.String("dir", dir))
	return dir, func() { os.RemoveAll(dir) }, nil
}

// Run executes the command and blocks until it exits, is killed by the
// timeout, or the context fires. The command's working directory must be set
// by the caller, typically to a NewWorkdir result.
func (s *Sandbox) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Dir == "" {
		return nil, errors.New("sandbox: command has no working directory")
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary, args := wrapWithLimits(s.cfg, cmd.Binary, cmd.Args)
	execCmd := exec.CommandContext(runCtx, binary, args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = s.buildEnv(cmd.Env)
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = 5 * time.Second

	maxOutput := s.cfg.MaxOutputBytes
	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderr := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	result := &Result{ExitCode: -1, StartedAt: time.Now()}
	s.log.Debug("sandbox run starting",
		zap.String("binary", cmd.Binary),
		zap.Duration("timeout", timeout))

	err := execCmd.Run()
	result.Duration = time.Since(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	if stdout.truncated || stderr.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdout.discarded + stderr.discarded
		s.log.Warn("sandbox output truncated", zap.Int64("discarded", result.TruncatedBytes))
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case runCtx.Err() == context.DeadlineExceeded:
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		s.log.Warn("sandbox run killed",
			zap.String("binary", cmd.Binary),
			zap.String("reason", result.KillReason))
	case runCtx.Err() == context.Canceled:
		result.Killed = true
		result.KillReason = "canceled"
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("sandbox: launching %s: %w", cmd.Binary, err)
		}
	}

	result.Usage = processUsage(execCmd)
	s.log.Debug("sandbox run finished",
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("killed", result.Killed),
		zap.Duration("elapsed", result.Duration))
	return result, nil
}

// buildEnv assembles the child environment from the allowlist plus the
// command's own variables. When network access is disallowed, proxy
// variables are dropped so tooling that honors them stays offline.
func (s *Sandbox) buildEnv(cmdEnv map[string]string) []string {
	env := make([]string, 0, len(s.cfg.EnvAllowlist)+len(cmdEnv))
	for _, key := range s.cfg.EnvAllowlist {
		if !s.cfg.AllowNetwork && isProxyVar(key) {
			continue
		}
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	for key, val := range cmdEnv {
		if !s.cfg.AllowNetwork && isProxyVar(key) {
			continue
		}
		env = append(env, key+"="+val)
	}
	if !s.cfg.AllowNetwork {
		env = append(env, "GOPROXY=off", "GOFLAGS=-mod=mod")
	}
	return env
}

func isProxyVar(key string) bool {
	switch strings.ToLower(key) {
	case "http_proxy", "https_proxy", "all_proxy", "ftp_proxy":
		return true
	}
	return false
}

// limitedWriter caps total bytes written, discarding overflow while
// reporting the original length so the child never sees a short write.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		m, err := lw.w.Write(p)
		lw.written += int64(m)
		return n, err
	}
	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		m, err := lw.w.Write(p[:remaining])
		lw.written += int64(m)
		return n, err
	}
	m, err := lw.w.Write(p)
	lw.written += int64(m)
	return n, err
}
