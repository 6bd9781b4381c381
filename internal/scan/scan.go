// Package scan discovers implementations and tests in a Go source tree.
// Parsing goes through tree-sitter so partially broken files still yield
// symbols instead of failing outright.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"go.uber.org/zap"

	"claimchain/internal/logging"
)

// SymbolKind classifies an extracted symbol.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolMethod   SymbolKind = "method"
	SymbolType     SymbolKind = "type"
)

// Symbol is one declaration found in a source file.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Signature string
	Exported  bool
	File      string
	StartLine int
	EndLine   int
}

// Parser extracts symbols from Go sources.
type Parser struct {
	parser *sitter.Parser
	log    *zap.Logger
}

func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &Parser{parser: p, log: logging.For(logging.CategoryScan)}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() { p.parser.Close() }

// ParseFile reads and parses one file.
func (p *Parser) ParseFile(ctx context.Context, path string) ([]Symbol, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.ParseSource(ctx, path, content)
}

// ParseSource parses in-memory Go source. The path is carried onto the
// extracted symbols for location reporting only.
func (p *Parser) ParseSource(ctx context.Context, path string, content []byte) ([]Symbol, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	syms := extractSymbols(tree.RootNode(), path, content)
	p.log.Debug("parsed source",
		zap.String("file", filepath.Base(path)),
		zap.Int("symbols", len(syms)))
	return syms, nil
}

func extractSymbols(root *sitter.Node, path string, content []byte) []Symbol {
	var syms []Symbol

	text := func(n *sitter.Node) string { return n.Content(content) }
	exported := func(name string) bool {
		return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
	}

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := text(nameNode)
				sig := "func " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
				if result := n.ChildByFieldName("result"); result != nil {
					sig += " " + text(result)
				}
				syms = append(syms, Symbol{
					Name:      name,
					Kind:      SymbolFunction,
					Signature: sig,
					Exported:  exported(name),
					File:      path,
					StartLine: int(n.StartPoint().Row) + 1,
					EndLine:   int(n.EndPoint().Row) + 1,
				})
			}
		case "method_declaration":
			nameNode := n.ChildByFieldName("name")
			recvNode := n.ChildByFieldName("receiver")
			if nameNode != nil && recvNode != nil {
				name := text(nameNode)
				sig := "func " + text(recvNode) + " " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += text(params)
				}
				if result := n.ChildByFieldName("result"); result != nil {
					sig += " " + text(result)
				}
				syms = append(syms, Symbol{
					Name:      name,
					Kind:      SymbolMethod,
					Signature: sig,
					Exported:  exported(name),
					File:      path,
					StartLine: int(n.StartPoint().Row) + 1,
					EndLine:   int(n.EndPoint().Row) + 1,
				})
			}
		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
					name := text(nameNode)
					syms = append(syms, Symbol{
						Name:      name,
						Kind:      SymbolType,
						Signature: "type " + name,
						Exported:  exported(name),
						File:      path,
						StartLine: int(n.StartPoint().Row) + 1,
						EndLine:   int(n.EndPoint().Row) + 1,
					})
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return syms
}

// goFiles walks root collecting Go sources. Test files are included or
// excluded by testsOnly. Hidden directories, vendor, and testdata are
// skipped.
func goFiles(root string, testsOnly bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}
		isTest := strings.HasSuffix(name, "_test.go")
		if isTest == testsOnly {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
