package main

import (
	"fmt"
	"sort"
	"strings"
)

// allDecls returns every declaration sorted by package, then name.
func (c *Checker) allDecls() []*CodeDecl {
	var out []*CodeDecl
	for _, decls := range c.byName {
		out = append(out, decls...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}
		return out[i].VarName < out[j].VarName
	})
	return out
}

// ReportUnused lists declared codes nothing references.
func (c *Checker) ReportUnused() (bool, []string) {
	var report []string
	unused := 0
	lastPkg := ""

	for _, d := range c.allDecls() {
		if d.Used {
			continue
		}
		if d.Package != lastPkg {
			report = append(report, fmt.Sprintf("\n📦 Package: %s", d.Package))
			lastPkg = d.Package
		}
		unused++
		report = append(report, fmt.Sprintf("  ❌ UNUSED: %s (%q) declared in %s:%d", d.VarName, d.Code, d.File, d.Line))
	}

	if unused == 0 {
		return true, []string{"✅ Every declared error code is used"}
	}
	return false, report
}

// ReportDuplicates lists code literals declared more than once. Two
// variables sharing a literal alias each other silently, and grepping
// a logged code then finds the wrong site.
func (c *Checker) ReportDuplicates() (bool, []string) {
	var codes []string
	for code, decls := range c.byCode {
		if len(decls) > 1 {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return true, []string{"✅ No duplicate code literals"}
	}
	sort.Strings(codes)

	var report []string
	for _, code := range codes {
		report = append(report, fmt.Sprintf("  ❌ DUPLICATE: %q declared %d times:", code, len(c.byCode[code])))
		for _, d := range c.byCode[code] {
			report = append(report, fmt.Sprintf("      %s as %s (%s:%d)", d.Package, d.VarName, d.File, d.Line))
		}
	}
	return false, report
}

// ReportFormat lists literals MustNewCode would panic on at import time.
func (c *Checker) ReportFormat() (bool, []string) {
	var report []string
	bad := 0

	for _, d := range c.allDecls() {
		switch {
		case !codePattern.MatchString(d.Code):
			bad++
			report = append(report, fmt.Sprintf("  ❌ FORMAT: %q in %s:%d is not package.name", d.Code, d.File, d.Line))
		case strings.Contains(d.Code, "err"):
			bad++
			report = append(report, fmt.Sprintf("  ❌ FORMAT: %q in %s:%d contains 'err', which the code validator rejects", d.Code, d.File, d.Line))
		}
	}

	if bad == 0 {
		return true, []string{"✅ Every code literal passes validation"}
	}
	return false, report
}

// ReportPrefixes lists codes whose prefix does not match the declaring
// package.
func (c *Checker) ReportPrefixes() (bool, []string) {
	var report []string
	bad := 0

	for _, d := range c.allDecls() {
		prefix := d.Code
		if idx := strings.Index(d.Code, "."); idx != -1 {
			prefix = d.Code[:idx]
		}
		expected := c.expectedPrefix(d.Package)
		if prefix == expected {
			continue
		}
		bad++
		report = append(report, fmt.Sprintf("  ❌ PREFIX: %q in package %s should start with %q (%s:%d)",
			d.Code, d.Package, expected+".", d.File, d.Line))
	}

	if bad == 0 {
		return true, []string{"✅ Every code prefix matches its package"}
	}
	return false, report
}

// ReportForbidden lists uses of error constructors the tree bans.
func (c *Checker) ReportForbidden() (bool, []string) {
	if len(c.rawHits) == 0 {
		return true, []string{"✅ No forbidden error patterns"}
	}

	sort.Slice(c.rawHits, func(i, j int) bool {
		if c.rawHits[i].File != c.rawHits[j].File {
			return c.rawHits[i].File < c.rawHits[j].File
		}
		return c.rawHits[i].Line < c.rawHits[j].Line
	})

	var report []string
	for _, hit := range c.rawHits {
		report = append(report, fmt.Sprintf("  ❌ FORBIDDEN: %s:%d matches %s: %s", hit.File, hit.Line, hit.Pattern, hit.Text))
	}
	return false, report
}
