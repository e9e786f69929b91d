package main

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const defaultMaxCmdConstructorLines = 80

// Command constructors only wire flags; the work lives in helpers.
func TestCommandConstructorsStaySmall(t *testing.T) {
	maxLines := maxCmdConstructorLines()
	fset := token.NewFileSet()

	for _, path := range commandSourceFiles(t) {
		file, err := parser.ParseFile(fset, path, nil, 0)
		require.NoError(t, err, "parse %s", path)

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Name == nil || fn.Body == nil || !isCommandConstructor(fn.Name.Name) {
				continue
			}

			start := fset.Position(fn.Body.Lbrace).Line
			end := fset.Position(fn.Body.Rbrace).Line
			length := end - start + 1
			require.LessOrEqual(t, length, maxLines, "constructor %s in %s is too large", fn.Name.Name, filepath.Base(path))
			require.False(t, callsOSExit(fn), "constructor %s in %s calls os.Exit; return an error instead", fn.Name.Name, filepath.Base(path))
		}
	}
}

func callsOSExit(fn *ast.FuncDecl) bool {
	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if ok && pkg.Name == "os" && sel.Sel.Name == "Exit" {
			found = true
		}
		return !found
	})
	return found
}

func commandSourceFiles(t *testing.T) []string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	dir := filepath.Dir(self)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files
}

func isCommandConstructor(name string) bool {
	return strings.HasPrefix(name, "new") && strings.HasSuffix(name, "Cmd")
}

func maxCmdConstructorLines() int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv("CFSCK_MAX_CMD_CONSTRUCTOR_LINES")))
	if err != nil || parsed <= 0 {
		return defaultMaxCmdConstructorLines
	}
	return parsed
}
