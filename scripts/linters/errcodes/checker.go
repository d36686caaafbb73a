package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// codePattern mirrors the validation in pkg/errors. A literal that fails
// it panics the first time the package is imported, so the linter flags
// it before anything runs.
var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// CodeDecl is one errors.MustNewCode declaration.
type CodeDecl struct {
	VarName string
	Code    string
	File    string
	Line    int
	Package string
	Used    bool
	UsedIn  []string
}

// RawErrorHit is one use of a forbidden error constructor.
type RawErrorHit struct {
	File    string
	Line    int
	Pattern string
	Text    string
}

// Checker scans a tree for error code declarations and their usage.
type Checker struct {
	fset      *token.FileSet
	byName    map[string][]*CodeDecl // keyed by variable name
	byCode    map[string][]*CodeDecl // keyed by code literal
	rawHits   []RawErrorHit
	forbidden []*regexp.Regexp
	cfg       *Config
}

// NewChecker creates a checker from the loaded configuration.
func NewChecker(cfg *Config) (*Checker, error) {
	c := &Checker{
		fset:   token.NewFileSet(),
		byName: make(map[string][]*CodeDecl),
		byCode: make(map[string][]*CodeDecl),
		cfg:    cfg,
	}
	for _, p := range cfg.ForbiddenPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad forbidden pattern %q: %w", p, err)
		}
		c.forbidden = append(c.forbidden, re)
	}
	return c, nil
}

func (c *Checker) debug(format string, args ...interface{}) {
	if c.cfg.Verbose {
		fmt.Printf(format, args...)
	}
}

// CheckDirectory walks dir and scans every Go file that is not excluded.
func (c *Checker) CheckDirectory(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		for _, excl := range c.cfg.ExcludePaths {
			if strings.Contains(path, excl) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		if c.cfg.SkipTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return c.CheckSource(path, src)
	})
}

// CheckSource scans one file's source. Split out so tests can feed
// synthetic files.
func (c *Checker) CheckSource(path string, src []byte) error {
	file, err := parser.ParseFile(c.fset, path, src, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	c.collectDeclarations(file, path)
	c.collectUsage(file, path)
	c.scanForbidden(path, src)
	return nil
}

// collectDeclarations records every `var X = errors.MustNewCode("...")`.
func (c *Checker) collectDeclarations(file *ast.File, path string) {
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if i >= len(vs.Values) {
					break
				}
				code, ok := mustNewCodeLiteral(vs.Values[i])
				if !ok {
					continue
				}
				pos := c.fset.Position(name.Pos())
				d := &CodeDecl{
					VarName: name.Name,
					Code:    code,
					File:    path,
					Line:    pos.Line,
					Package: file.Name.Name,
				}
				c.byName[name.Name] = append(c.byName[name.Name], d)
				c.byCode[code] = append(c.byCode[code], d)
				c.debug("  declared %s = %q (%s:%d)\n", d.VarName, d.Code, path, pos.Line)
			}
		}
	}
}

// mustNewCodeLiteral returns the string literal passed to a MustNewCode
// call. The call is qualified everywhere except inside pkg/errors
// itself, so both forms count.
func mustNewCodeLiteral(expr ast.Expr) (string, bool) {
	call, ok := expr.(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return "", false
	}
	switch fun := call.Fun.(type) {
	case *ast.SelectorExpr:
		if fun.Sel.Name != "MustNewCode" {
			return "", false
		}
	case *ast.Ident:
		if fun.Name != "MustNewCode" {
			return "", false
		}
	default:
		return "", false
	}
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	code, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return code, true
}

// collectUsage marks declared codes referenced anywhere outside their
// own declaration line. Cross-package references arrive as selector
// expressions whose Sel is still an Ident, so one pass covers both.
// Same-named codes in different packages are marked together; telling
// them apart needs full type information, which a lint pass avoids.
func (c *Checker) collectUsage(file *ast.File, path string) {
	ast.Inspect(file, func(n ast.Node) bool {
		ident, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		decls, ok := c.byName[ident.Name]
		if !ok {
			return true
		}
		pos := c.fset.Position(ident.Pos())
		for _, d := range decls {
			if pos.Filename == d.File && pos.Line == d.Line {
				continue
			}
			d.Used = true
			seen := false
			for _, f := range d.UsedIn {
				if f == path {
					seen = true
					break
				}
			}
			if !seen {
				d.UsedIn = append(d.UsedIn, path)
			}
		}
		return true
	})
}

// scanForbidden applies the forbidden patterns line by line.
func (c *Checker) scanForbidden(path string, src []byte) {
	if len(c.forbidden) == 0 {
		return
	}
	for i, line := range strings.Split(string(src), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		for _, re := range c.forbidden {
			if re.MatchString(line) {
				c.rawHits = append(c.rawHits, RawErrorHit{
					File:    path,
					Line:    i + 1,
					Pattern: re.String(),
					Text:    trimmed,
				})
			}
		}
	}
}

// expectedPrefix returns the code prefix a package's declarations must
// carry: the package name, unless the config overrides it.
func (c *Checker) expectedPrefix(pkg string) string {
	if p, ok := c.cfg.PrefixOverrides[pkg]; ok {
		return p
	}
	return pkg
}
