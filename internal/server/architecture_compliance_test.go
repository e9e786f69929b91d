package server

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type registeredRoute struct {
	method  string
	path    string
	handler string
}

func TestHandlersUseBoundaries(t *testing.T) {
	routes := parseRegisteredRoutes(t)
	handlers := parseServerHandlers(t)
	if len(routes) == 0 {
		t.Fatal("no routes discovered")
	}

	for _, route := range routes {
		fn, ok := handlers[route.handler]
		if !ok {
			t.Fatalf("handler %q for %s %s not found", route.handler, route.method, route.path)
		}
		used := serverSelectors(fn)
		if slices.Contains(used, "deps") {
			t.Fatalf("handler %q (%s %s) reaches s.deps directly", route.handler, route.method, route.path)
		}

		switch {
		case strings.HasPrefix(route.path, "/v1/consistency/"):
			if !slices.Contains(used, "service") && !slices.Contains(used, "serviceFor") {
				t.Fatalf("handler %q (%s %s) does not go through the consistency service: %v", route.handler, route.method, route.path, used)
			}
		case strings.HasPrefix(route.path, "/v1/"):
			if !slices.Contains(used, "registry") {
				t.Fatalf("handler %q (%s %s) does not go through the registry: %v", route.handler, route.method, route.path, used)
			}
		}
	}
}

func parseRegisteredRoutes(t *testing.T) []registeredRoute {
	t.Helper()

	routesPath := filepath.Join(serverPackageDir(t), "routes.go")
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, routesPath, nil, 0)
	if err != nil {
		t.Fatalf("parse routes.go: %v", err)
	}

	routes := make([]registeredRoute, 0)
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "HandleFunc" || len(call.Args) != 2 {
			return true
		}

		patternLit, ok := call.Args[0].(*ast.BasicLit)
		if !ok || patternLit.Kind != token.STRING {
			return true
		}
		pattern, err := strconv.Unquote(patternLit.Value)
		if err != nil {
			t.Fatalf("unquote route pattern %q: %v", patternLit.Value, err)
		}
		parts := strings.SplitN(pattern, " ", 2)
		if len(parts) != 2 {
			return true
		}

		handlerSel, ok := call.Args[1].(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := handlerSel.X.(*ast.Ident)
		if !ok || recv.Name != "s" {
			return true
		}

		routes = append(routes, registeredRoute{
			method:  strings.TrimSpace(parts[0]),
			path:    strings.TrimSpace(parts[1]),
			handler: handlerSel.Sel.Name,
		})
		return true
	})

	return routes
}

func parseServerHandlers(t *testing.T) map[string]*ast.FuncDecl {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(serverPackageDir(t), "handlers*.go"))
	if err != nil {
		t.Fatalf("glob handler files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no handler files found")
	}

	out := make(map[string]*ast.FuncDecl)
	fset := token.NewFileSet()
	for _, filePath := range files {
		file, err := parser.ParseFile(fset, filePath, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", filePath, err)
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Name == nil || !strings.HasPrefix(fn.Name.Name, "handle") {
				continue
			}
			if !isServerReceiver(fn.Recv) {
				continue
			}
			out[fn.Name.Name] = fn
		}
	}
	return out
}

// serverSelectors lists the fields and methods fn selects on its receiver s.
func serverSelectors(fn *ast.FuncDecl) []string {
	var names []string
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		selector, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := selector.X.(*ast.Ident)
		if ok && recv.Name == "s" {
			names = append(names, selector.Sel.Name)
		}
		return true
	})
	return uniqueSorted(names)
}

func isServerReceiver(recv *ast.FieldList) bool {
	if recv == nil || len(recv.List) != 1 {
		return false
	}
	star, ok := recv.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	ident, ok := star.X.(*ast.Ident)
	return ok && ident.Name == "Server"
}

func serverPackageDir(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(file)
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	slices.Sort(out)
	return out
}
