//go:build windows

package sandbox

import (
	"os/exec"

	"claimchain/internal/config"
)

// Windows has no rlimits; commands run with only the wall-clock timeout and
// output caps enforced.
func wrapWithLimits(_ config.SandboxConfig, binary string, args []string) (string, []string) {
	return binary, args
}

func setupProcessGroup(*exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func processUsage(*exec.Cmd) *Usage { return nil }
