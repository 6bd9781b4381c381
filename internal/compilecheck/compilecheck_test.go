package compilecheck

import (
	"context"
	"strings"
	"testing"
)

func TestParseDiagnostics(t *testing.T) {
	stderr := `# check
main.go:5:2: undefined: fmt.Printl
main.go:9:6: declared and not used: x
util.go:3:8: "os" imported and not used
`
	errs := ParseDiagnostics(stderr)
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %+v", len(errs), errs)
	}
	first := errs[0]
	if first.File != "main.go" || first.Line != 5 || first.Column != 2 {
		t.Errorf("location = %s:%d:%d", first.File, first.Line, first.Column)
	}
	if first.Suggestion == "" {
		t.Error("undefined identifier should carry a suggestion")
	}
	if errs[2].Suggestion != "remove the unused import" {
		t.Errorf("Suggestion = %q", errs[2].Suggestion)
	}
}

func TestParseDiagnosticsFoldsContinuations(t *testing.T) {
	stderr := "pkg/a.go:12:9: cannot use s (variable of type string) as int value\n\tin assignment\n"
	errs := ParseDiagnostics(stderr)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if !strings.Contains(errs[0].Message, "in assignment") {
		t.Errorf("continuation not folded: %q", errs[0].Message)
	}
}

func TestPreflightAcceptsValidSource(t *testing.T) {
	code := `package main

import "strings"

func Upper(s string) string { return strings.ToUpper(s) }
`
	if errs := Preflight(context.Background(), "valid.go", code); len(errs) != 0 {
		t.Fatalf("valid source rejected: %+v", errs)
	}
}

func TestPreflightReportsParseError(t *testing.T) {
	code := `package main

func Broken( {
`
	errs := Preflight(context.Background(), "broken.go", code)
	if len(errs) == 0 {
		t.Fatal("malformed source passed pre-flight")
	}
	if errs[0].File != "broken.go" {
		t.Errorf("File = %q", errs[0].File)
	}
}

func TestPreflightReportsTypeError(t *testing.T) {
	code := `package main

func Mismatch() int { return "not an int" }
`
	if errs := Preflight(context.Background(), "mismatch.go", code); len(errs) == 0 {
		t.Fatal("type error passed pre-flight")
	}
}

func TestCheckSourceRejectsBrokenSourceWithoutBuild(t *testing.T) {
	// No sandbox is constructed; a broken source must be rejected by the
	// interpreter pass before CheckSource ever asks for a workdir.
	c := NewChecker(nil)
	files := map[string]string{
		"main.go": "package main\n\nfunc Broken( {\n",
	}
	res, err := c.CheckSource(context.Background(), files)
	if err != nil {
		t.Fatalf("CheckSource: %v", err)
	}
	if res.Success {
		t.Fatal("broken source reported as compiling")
	}
	if len(res.Errors) == 0 {
		t.Fatal("no diagnostics returned")
	}
	first := res.Errors[0]
	if first.File != "main.go" {
		t.Errorf("File = %q, want the map key verbatim", first.File)
	}
	if first.Line == 0 {
		t.Error("diagnostic carries no position")
	}
}

func TestFileLocalDropsCrossFileDiagnostics(t *testing.T) {
	errs := fileLocal([]Error{
		{File: "impl_test.go", Line: 4, Column: 9, Message: "undefined: Upper"},
		{File: "impl_test.go", Message: "pre-flight panic: boom"},
		{File: "impl.go", Line: 7, Column: 2, Message: "expected declaration, found {"},
	})
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
	}
	if errs[0].File != "impl.go" {
		t.Errorf("kept %q", errs[0].File)
	}
}

func TestSuggestionFor(t *testing.T) {
	if s := suggestionFor("undefined: foo"); s == "" {
		t.Error("no suggestion for undefined identifier")
	}
	if s := suggestionFor("some novel diagnostic"); s != "" {
		t.Errorf("unexpected suggestion %q", s)
	}
}
