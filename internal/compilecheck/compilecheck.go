// Package compilecheck gates generated code on compilability. A cheap
// interpreter pre-flight catches parse and type errors without touching the
// toolchain; the full check writes sources into a sandbox workdir and runs
// the real compiler there.
package compilecheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"claimchain/internal/logging"
	"claimchain/internal/sandbox"
)

// Error is one structured compiler diagnostic.
type Error struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e Error) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// Result reports one compile attempt.
type Result struct {
	Success bool    `json:"success"`
	Errors  []Error `json:"errors,omitempty"`
	Output  string  `json:"output,omitempty"`
}

// Checker runs compile checks inside a sandbox.
type Checker struct {
	sb  *sandbox.Sandbox
	log *zap.Logger
}

func NewChecker(sb *sandbox.Sandbox) *Checker {
	return &Checker{sb: sb, log: logging.For(logging.CategorySandbox)}
}

// CheckSource pre-flights each source in the interpreter, then writes the
// files into a fresh workdir and compiles them with the toolchain. Sources
// the interpreter already rejects never reach the sandbox. File names are
// relative; a minimal module file is added when none is supplied.
func (c *Checker) CheckSource(ctx context.Context, files map[string]string) (*Result, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var preErrs []Error
	for _, name := range names {
		if !strings.HasSuffix(name, ".go") {
			continue
		}
		preErrs = append(preErrs, fileLocal(Preflight(ctx, name, files[name]))...)
	}
	if len(preErrs) > 0 {
		c.log.Debug("pre-flight rejected sources", zap.Int("errors", len(preErrs)))
		return &Result{Success: false, Errors: preErrs}, nil
	}

	dir, cleanup, err := c.sb.NewWorkdir("compilecheck")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if _, ok := files["go.mod"]; !ok {
		if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module check\n\ngo 1.24\n"), 0o644); err != nil {
			return nil, fmt.Errorf("writing go.mod: %w", err)
		}
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return c.CompileDir(ctx, dir)
}

// CompileDir runs `go build ./...` in dir under the sandbox ceilings.
func (c *Checker) CompileDir(ctx context.Context, dir string) (*Result, error) {
	run, err := c.sb.Run(ctx, sandbox.Command{
		Binary: "go",
		Args:   []string{"build", "./..."},
		Dir:    dir,
	})
	if err != nil {
		return nil, fmt.Errorf("launching compiler: %w", err)
	}
	if run.Killed {
		return nil, fmt.Errorf("compile killed: %s", run.KillReason)
	}

	result := &Result{
		Success: run.ExitCode == 0,
		Output:  run.Stderr,
	}
	if !result.Success {
		result.Errors = ParseDiagnostics(run.Stderr)
	}
	c.log.Debug("compile check finished",
		zap.Bool("success", result.Success),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

var diagRe = regexp.MustCompile(`^(.+\.go):(\d+):(\d+): (.+)$`)

// ParseDiagnostics extracts structured errors from compiler stderr. Lines
// that do not match the file:line:col form are folded into the preceding
// error's message.
func ParseDiagnostics(stderr string) []Error {
	var errs []Error
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := diagRe.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			errs = append(errs, Error{
				File:       m[1],
				Line:       lineNo,
				Column:     col,
				Message:    m[4],
				Suggestion: suggestionFor(m[4]),
			})
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if len(errs) > 0 && strings.HasPrefix(line, "\t") {
			errs[len(errs)-1].Message += " " + trimmed
		}
	}
	return errs
}

// suggestionFor maps frequent compiler complaints to a remedial hint.
func suggestionFor(message string) string {
	switch {
	case strings.HasPrefix(message, "undefined:"):
		return "declare the identifier or add the missing import"
	case strings.Contains(message, "imported and not used"):
		return "remove the unused import"
	case strings.Contains(message, "declared and not used"):
		return "use or remove the variable"
	case strings.Contains(message, "missing return"):
		return "add a return statement on every path"
	case strings.Contains(message, "cannot use") && strings.Contains(message, "as"):
		return "fix the type mismatch or add a conversion"
	}
	return ""
}
