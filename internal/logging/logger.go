// Package logging provides categorized structured logging for claimchain.
// Library packages log through a category logger; nothing is emitted until an
// entrypoint installs a real zap logger, so embedding the pipeline in another
// program stays silent by default.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryChain    Category = "chain"    // verification chain stages
	CategoryPipeline Category = "pipeline" // claim pipeline orchestration
	CategoryWorkItem Category = "workitem" // work item generation and assignment
	CategoryAgent    Category = "agent"    // agent dispatcher and task lifecycle
	CategorySandbox  Category = "sandbox"  // sandboxed execution
	CategoryScan     Category = "scan"     // implementation/test discovery
	CategoryWatch    Category = "watch"    // filesystem watching
	CategoryGen      Category = "gen"      // generation collaborators
	CategorySemantic Category = "semantic" // semantic verification
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Install sets the process-wide root logger. Call once at startup.
func Install(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}

// For returns a logger named after the category.
func For(c Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(string(c))
}

// NewDevelopment builds a human-readable console logger at the given level.
// Used by the CLI; library code never calls this.
func NewDevelopment(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}
