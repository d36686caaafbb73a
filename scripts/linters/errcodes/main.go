// errcodes lints the tree's error code discipline: every
// errors.MustNewCode literal must parse, carry its package's prefix,
// be unique across the module and be referenced somewhere.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
)

func main() {
	var (
		dir        = flag.String("dir", ".", "Directory to check")
		configPath = flag.String("config", ".errcodes.yml", "Path to configuration file")
	)
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Printf("Warning: Using default configuration: %v", err)
		config, _ = loadConfig("")
	}

	checker, err := NewChecker(config)
	if err != nil {
		log.Fatalf("Error building checker: %v", err)
	}

	fmt.Printf("🔍 Checking error codes in directory: %s\n", *dir)
	fmt.Printf("🚫 Excluding paths: %s\n", strings.Join(config.ExcludePaths, ", "))
	fmt.Println()

	if err := checker.CheckDirectory(*dir); err != nil {
		log.Fatalf("Error checking directory: %v", err)
	}

	failed := false

	run := func(name string, check func() (bool, []string), exit bool) {
		fmt.Printf("🔍 %s...\n", name)
		ok, report := check()
		for _, line := range report {
			fmt.Println(line)
		}
		fmt.Println()
		if !ok && exit {
			failed = true
		}
	}

	run("Checking for unused codes", checker.ReportUnused, config.ExitOnUnused)
	run("Checking for duplicate literals", checker.ReportDuplicates, config.ExitOnDuplicates)
	run("Checking literal format", checker.ReportFormat, config.ExitOnFormat)
	run("Checking package prefixes", checker.ReportPrefixes, config.ExitOnPrefixes)
	run("Checking forbidden patterns", checker.ReportForbidden, config.ExitOnForbidden)

	fmt.Println("📊 FINAL SUMMARY:")
	fmt.Println("==================")
	if failed {
		fmt.Println("❌ Found error code violations!")
		os.Exit(1)
	}
	fmt.Println("✅ All checks completed successfully!")
}
