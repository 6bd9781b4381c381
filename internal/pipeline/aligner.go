package pipeline

import (
	"context"
	"fmt"
	"strings"

	"claimchain/internal/gen"
	"claimchain/internal/scan"
)

// SpecAligner checks generated test code against its specs by symbol
// inspection: every spec must have a corresponding test function. The score
// is the fraction of specs with a match.
type SpecAligner struct {
	minScore float64
}

func NewSpecAligner(minScore float64) *SpecAligner {
	return &SpecAligner{minScore: minScore}
}

func (a *SpecAligner) VerifyAlignment(ctx context.Context, specs []gen.TestSpec, tests gen.GeneratedCode) (AlignmentResult, error) {
	parser := scan.NewParser()
	defer parser.Close()

	syms, err := parser.ParseSource(ctx, tests.FileName, []byte(tests.Code))
	if err != nil {
		return AlignmentResult{}, fmt.Errorf("parsing generated tests: %w", err)
	}

	var testNames []string
	for _, sym := range syms {
		if sym.Kind == scan.SymbolFunction && strings.HasPrefix(sym.Name, "Test") {
			testNames = append(testNames, normalize(sym.Name))
		}
	}

	result := AlignmentResult{}
	if len(specs) == 0 {
		result.Misalignments = append(result.Misalignments, "no test specs to align against")
		return result, nil
	}
	if len(testNames) == 0 {
		result.Misalignments = append(result.Misalignments, "generated code contains no test functions")
		return result, nil
	}

	matched := 0
	for _, spec := range specs {
		want := normalize(spec.Name)
		found := false
		for _, name := range testNames {
			if strings.Contains(name, want) || strings.Contains(want, name) {
				found = true
				break
			}
		}
		if found {
			matched++
		} else {
			result.Misalignments = append(result.Misalignments,
				fmt.Sprintf("spec %q has no corresponding test function", spec.Name))
		}
	}
	result.Score = float64(matched) / float64(len(specs))
	result.Aligned = result.Score >= a.minScore
	return result, nil
}

// normalize lowercases and strips separators and the Test prefix so spec
// names in prose style match Go test identifiers.
func normalize(name string) string {
	s := strings.ToLower(name)
	for _, sep := range []string{"_", "-", " "} {
		s = strings.ReplaceAll(s, sep, "")
	}
	return strings.TrimPrefix(s, "test")
}
