package scan

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/logging"
	"claimchain/internal/types"
)

// Checker discovers implementations and tests under a source root by symbol
// matching. It backs the chain's implementation and test detection stages
// when no external collaborator is plugged in.
type Checker struct {
	root   string
	parser *Parser
	log    *zap.Logger
}

func NewChecker(root string) *Checker {
	return &Checker{
		root:   root,
		parser: NewParser(),
		log:    logging.For(logging.CategoryScan),
	}
}

// Close releases parser resources.
func (c *Checker) Close() { c.parser.Close() }

// CheckImplementation scans non-test sources for symbols matching the
// requirements' vocabulary. Confidence is the fraction of requirements with
// at least one matching symbol.
func (c *Checker) CheckImplementation(ctx context.Context, reqs []types.Requirement) (types.Implementation, error) {
	files, err := goFiles(c.root, false)
	if err != nil {
		return types.Implementation{}, err
	}

	var all []Symbol
	for _, f := range files {
		syms, err := c.parser.ParseFile(ctx, f)
		if err != nil {
			c.log.Warn("skipping unparseable file", zap.String("file", f), zap.Error(err))
			continue
		}
		all = append(all, syms...)
	}
	// Snippets and the reported location follow file-then-line order, so
	// two scans of the same tree produce identical evidence.
	SortSymbols(all)

	matched := 0
	hitsByFile := make(map[string]int)
	var snippets []string
	reqIDs := make([]types.ID, 0, len(reqs))
	for _, req := range reqs {
		reqIDs = append(reqIDs, req.ID)
		keywords := keywords(req.Description)
		found := false
		for _, sym := range all {
			if symbolMatches(sym, keywords) {
				found = true
				hitsByFile[sym.File]++
				if len(snippets) < 8 {
					snippets = append(snippets, sym.Signature)
				}
			}
		}
		if found {
			matched++
		}
	}

	impl := types.Implementation{
		ID:           types.NewID(),
		Requirements: reqIDs,
		CodeSnippets: snippets,
		DetectedAt:   time.Now(),
	}
	switch {
	case len(reqs) == 0 || matched == 0:
		impl.Status = types.ImplementationNotFound
		return impl, nil
	case matched == len(reqs):
		impl.Status = types.ImplementationComplete
	default:
		impl.Status = types.ImplementationPartial
	}
	impl.Confidence = types.Confidence(float64(matched) / float64(len(reqs)))
	impl.Location = bestLocation(all, hitsByFile)

	c.log.Debug("implementation scan complete",
		zap.Int("requirements", len(reqs)),
		zap.Int("matched", matched),
		zap.String("status", string(impl.Status)))
	return impl, nil
}

// CheckTests scans *_test.go files and returns every Test/Benchmark/Fuzz
// function as a test case.
func (c *Checker) CheckTests(ctx context.Context, impl types.Implementation) (types.TestSuite, error) {
	files, err := goFiles(c.root, true)
	if err != nil {
		return types.TestSuite{}, err
	}

	suite := types.TestSuite{
		ID:               types.NewID(),
		ImplementationID: impl.ID,
		Framework:        "go test",
		DetectedAt:       time.Now(),
	}
	for _, f := range files {
		syms, err := c.parser.ParseFile(ctx, f)
		if err != nil {
			c.log.Warn("skipping unparseable test file", zap.String("file", f), zap.Error(err))
			continue
		}
		for _, sym := range syms {
			if sym.Kind != SymbolFunction || !isTestFunc(sym.Name) {
				continue
			}
			suite.TestCases = append(suite.TestCases, types.TestCase{
				ID:       types.NewID(),
				Name:     sym.Name,
				Location: types.FileLocation(sym.File, sym.StartLine, sym.EndLine),
				Type:     types.TestUnit,
			})
		}
	}

	c.log.Debug("test scan complete",
		zap.Int("files", len(files)),
		zap.Int("cases", len(suite.TestCases)))
	return suite, nil
}

func isTestFunc(name string) bool {
	for _, prefix := range []string{"Test", "Benchmark", "Fuzz", "Example"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return true
		}
	}
	return false
}

// keywords tokenizes a requirement description into lowercase match terms,
// dropping short and structural words.
func keywords(description string) []string {
	var out []string
	for _, word := range strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) <= 3 || stopword(word) {
			continue
		}
		out = append(out, word)
	}
	return out
}

func stopword(w string) bool {
	switch w {
	case "that", "with", "must", "should", "shall", "when", "then", "system",
		"implement", "implements", "support", "supports", "provide", "provides":
		return true
	}
	return false
}

func symbolMatches(sym Symbol, keywords []string) bool {
	name := strings.ToLower(sym.Name)
	for _, kw := range keywords {
		if strings.Contains(name, kw) || strings.Contains(kw, name) {
			return true
		}
	}
	return false
}

// bestLocation spans the symbols in the file with the most matches.
func bestLocation(syms []Symbol, hitsByFile map[string]int) types.Location {
	var bestFile string
	for file, hits := range hitsByFile {
		if bestFile == "" || hits > hitsByFile[bestFile] ||
			(hits == hitsByFile[bestFile] && file < bestFile) {
			bestFile = file
		}
	}
	if bestFile == "" {
		return types.Location{}
	}
	start, end := 0, 0
	for _, sym := range syms {
		if sym.File != bestFile {
			continue
		}
		if start == 0 || sym.StartLine < start {
			start = sym.StartLine
		}
		if sym.EndLine > end {
			end = sym.EndLine
		}
	}
	return types.FileLocation(bestFile, start, end)
}

// SortSymbols orders symbols by file then start line, for stable output.
func SortSymbols(syms []Symbol) {
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].File != syms[j].File {
			return syms[i].File < syms[j].File
		}
		return syms[i].StartLine < syms[j].StartLine
	})
}
