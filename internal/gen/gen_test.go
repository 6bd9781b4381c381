package gen

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"claimchain/internal/types"
)

// flakyClient fails a fixed number of times before succeeding.
type flakyClient struct {
	failures int32
	err      error
	response string
}

func (f *flakyClient) Generate(context.Context, string) (string, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return "", f.err
	}
	return f.response, nil
}

func TestExtractRequirements(t *testing.T) {
	stub := NewStubClient().On("Derive concrete, testable requirements", "```json\n"+
		`[{"description":"refresh expired tokens","acceptance_criteria":["old token invalidated"],"priority":7},
		  {"description":"reject malformed tokens","acceptance_criteria":[],"priority":99}]`+"\n```")
	e := NewEngine(stub, 3)

	claim := types.Claim{ID: types.NewID(), Statement: "System refreshes OAuth tokens"}
	reqs, err := e.ExtractRequirements(context.Background(), claim)
	if err != nil {
		t.Fatalf("ExtractRequirements() error = %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("got %d requirements, want 2", len(reqs))
	}
	if reqs[0].ClaimID != claim.ID {
		t.Error("requirement not linked to claim")
	}
	if reqs[0].Priority != 7 {
		t.Errorf("Priority = %d, want 7", reqs[0].Priority)
	}
	// Out-of-range priority clamps to the midpoint.
	if reqs[1].Priority != 5 {
		t.Errorf("Priority = %d, want 5", reqs[1].Priority)
	}
}

func TestGenerateTestSpecsEmptyIsPermanent(t *testing.T) {
	stub := NewStubClient().On("test specifications", "[]")
	e := NewEngine(stub, 3)

	_, err := e.GenerateTestSpecs(context.Background(), types.Claim{ID: types.NewID()}, nil)
	if err == nil {
		t.Fatal("empty spec list should fail")
	}
	if retryable(err) {
		t.Error("empty spec list must not be retried")
	}
	if stub.Calls() != 1 {
		t.Errorf("Calls = %d, want 1 (no retries)", stub.Calls())
	}
}

func TestGenerateTestsStripsFences(t *testing.T) {
	stub := NewStubClient().On("Go test", "```go\npackage auth\n\nimport \"testing\"\n\nfunc TestRefresh(t *testing.T) {}\n```")
	e := NewEngine(stub, 3)

	code, err := e.GenerateTests(context.Background(), types.Claim{ID: types.NewID()}, []TestSpec{{Name: "refresh"}})
	if err != nil {
		t.Fatalf("GenerateTests() error = %v", err)
	}
	if strings.Contains(code.Code, "```") {
		t.Error("code fence leaked into output")
	}
	if !strings.HasPrefix(code.Code, "package auth") {
		t.Errorf("code = %q", code.Code)
	}
}

func TestGenerateImplementationRejectsNonCode(t *testing.T) {
	stub := NewStubClient().On("specification", "Sure! Here is an explanation instead of code.")
	e := NewEngine(stub, 3)

	_, err := e.GenerateImplementation(context.Background(), "spec", "tests")
	if err == nil {
		t.Fatal("prose output should fail")
	}
	if stub.Calls() != 1 {
		t.Errorf("Calls = %d, want 1 (missing package clause is permanent)", stub.Calls())
	}
}

func TestWithRetryRecoversFromTransientFailures(t *testing.T) {
	client := &flakyClient{failures: 2, err: errors.New("503 service unavailable"), response: "package x"}
	e := NewEngine(client, 3)

	code, err := e.generateCode(context.Background(), "prompt", ".go")
	if err != nil {
		t.Fatalf("generateCode() error = %v", err)
	}
	if code.Code != "package x" {
		t.Errorf("code = %q", code.Code)
	}
}

func TestWithRetryStopsAtAttemptCap(t *testing.T) {
	client := &flakyClient{failures: 10, err: errors.New("rate limit exceeded")}
	e := NewEngine(client, 3)

	_, err := e.generateCode(context.Background(), "prompt", ".go")
	if err == nil {
		t.Fatal("exhausted retries should fail")
	}
	if remaining := atomic.LoadInt32(&client.failures); remaining != 7 {
		t.Errorf("made %d attempts, want 3", 10-remaining)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("429 too many requests"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("model overloaded"), true},
		{Permanent(errors.New("bad prompt")), false},
		{Transient(errors.New("anything")), true},
		{context.Canceled, false},
		{errors.New("invalid argument"), false},
	}
	for _, tc := range cases {
		if got := retryable(tc.err); got != tc.want {
			t.Errorf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestGenerateJSONDecodeFailureBecomesPermanent(t *testing.T) {
	stub := NewStubClient().On("prompt", "not json at all")
	e := NewEngine(stub, 5)

	var v []TestSpec
	err := e.generateJSON(context.Background(), "prompt", &v)
	if err == nil {
		t.Fatal("undecodable output should fail")
	}
	// First decode failure retries once; the second gives up.
	if stub.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", stub.Calls())
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"plain":                      "plain",
		"```go\ncode\n```":           "code",
		"```\ncode\n```":             "code",
		"  ```json\n{\"a\":1}\n``` ": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, zap.NewNop(), 3, func() error {
		return errors.New("503 unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
