package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"claimchain/internal/config"
	"claimchain/internal/types"
)

func writeClaims(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claims.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadClaims(t *testing.T) {
	path := writeClaims(t, `claims:
  - statement: "Expired tokens are refreshed before authorization"
    type: security
    source: "docs/auth.md"
  - statement: "Responses are cached for five minutes"
`)
	claims, err := loadClaims(path)
	if err != nil {
		t.Fatalf("loadClaims() error = %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(claims))
	}
	if claims[0].Type != types.ClaimSecurity {
		t.Errorf("Type = %s, want security", claims[0].Type)
	}
	if claims[0].SourceExcerpt != "docs/auth.md" {
		t.Errorf("SourceExcerpt = %q", claims[0].SourceExcerpt)
	}
	if claims[1].Type != types.ClaimFunctional {
		t.Errorf("default Type = %s, want functional", claims[1].Type)
	}
	if claims[0].ID == claims[1].ID {
		t.Error("claims share an id")
	}
}

func TestLoadClaimsRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty file":      "claims: []\n",
		"blank statement": "claims:\n  - statement: \"  \"\n",
		"unknown type":    "claims:\n  - statement: \"x is fast\"\n    type: quantum\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadClaims(writeClaims(t, content)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestHeuristicExtractorSplitsClauses(t *testing.T) {
	claim := types.Claim{
		ID:        types.NewID(),
		Statement: "Tokens are validated and expired tokens are refreshed; failures are logged",
	}
	reqs, err := heuristicExtractor{}.ExtractRequirements(context.Background(), claim)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 3 {
		t.Fatalf("got %d requirements, want 3: %+v", len(reqs), reqs)
	}
	for _, r := range reqs {
		if r.ClaimID != claim.ID {
			t.Errorf("ClaimID = %v", r.ClaimID)
		}
		if r.Priority != 5 {
			t.Errorf("Priority = %d, want 5", r.Priority)
		}
	}
}

func TestVerifierCloseReleasesResources(t *testing.T) {
	origCfg, origWorkspace, origLogger := cfg, workspace, logger
	defer func() { cfg, workspace, logger = origCfg, origWorkspace, origLogger }()

	cfg = config.Default()
	cfg.Pipeline.RunDir = filepath.Join(t.TempDir(), "runs")
	workspace = t.TempDir()
	logger = zap.NewNop()

	v, err := newVerifier(context.Background())
	if err != nil {
		t.Fatalf("newVerifier() error = %v", err)
	}
	if v.checker == nil {
		t.Fatal("verifier holds no scan checker")
	}
	if err := v.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSourceKeyNeverEscapesWorkdir(t *testing.T) {
	cases := map[string]string{
		"/abs/path/main.go": "abs/path/main.go",
		"../../etc/passwd":  "_/_/etc/passwd",
		"pkg/util_test.go":  "pkg/util_test.go",
	}
	for in, want := range cases {
		if got := sourceKey(in); got != want {
			t.Errorf("sourceKey(%q) = %q, want %q", in, got, want)
		}
	}
}
