package compilecheck

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Preflight type-checks a single source file in an embedded interpreter,
// without invoking the toolchain. It catches parse errors and most type
// errors in milliseconds, so the pipeline can reject obviously broken
// generations before paying for a sandboxed compile. A clean pre-flight is
// not proof of compilability; the toolchain check still runs after it.
func Preflight(ctx context.Context, fileName, code string) []Error {
	done := make(chan []Error, 1)
	go func() {
		done <- evalForErrors(fileName, code)
	}()
	select {
	case errs := <-done:
		return errs
	case <-ctx.Done():
		return []Error{{File: fileName, Message: fmt.Sprintf("pre-flight aborted: %v", ctx.Err())}}
	}
}

func evalForErrors(fileName, code string) (errs []Error) {
	// The interpreter panics on some malformed inputs; a panic is just
	// another failed pre-flight.
	defer func() {
		if r := recover(); r != nil {
			errs = []Error{{File: fileName, Message: fmt.Sprintf("pre-flight panic: %v", r)}}
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return []Error{{File: fileName, Message: fmt.Sprintf("loading interpreter symbols: %v", err)}}
	}
	if _, err := i.Compile(code); err != nil {
		return parseInterpError(fileName, err)
	}
	return nil
}

// fileLocal keeps only diagnostics a single-file interpreter pass can judge
// reliably. Unpositioned entries (aborts, panics, symbol-load failures) and
// undefined-identifier errors are discarded; the interpreter compiles each
// file in isolation, so a test file referencing implementation symbols looks
// undefined to it even when the package as a whole is fine.
func fileLocal(errs []Error) []Error {
	var kept []Error
	for _, e := range errs {
		if e.Line == 0 || strings.HasPrefix(e.Message, "undefined:") {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

var interpPosRe = regexp.MustCompile(`(\d+):(\d+): (.+)`)

func parseInterpError(fileName string, err error) []Error {
	msg := err.Error()
	if m := interpPosRe.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		return []Error{{
			File:       fileName,
			Line:       line,
			Column:     col,
			Message:    m[3],
			Suggestion: suggestionFor(m[3]),
		}}
	}
	return []Error{{File: fileName, Message: msg}}
}
