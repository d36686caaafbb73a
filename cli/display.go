package cli

import (
	"github.com/pterm/pterm"
)

// TableData holds rows for tabular command output
type TableData struct {
	Headers []string
	Rows    [][]string
}

// Display renders command output. All commands talk to the terminal through
// it so styling stays in one place.
type Display struct {
	plain bool
}

// newDisplay creates a display, optionally with styling disabled for
// scripting and logs
func newDisplay(plain bool) *Display {
	if plain {
		pterm.DisableStyling()
	}
	return &Display{plain: plain}
}

// Info prints an informational line
func (d *Display) Info(format string, args ...interface{}) {
	pterm.Info.Printfln(format, args...)
}

// Success prints a success line
func (d *Display) Success(format string, args ...interface{}) {
	pterm.Success.Printfln(format, args...)
}

// Warning prints a warning line
func (d *Display) Warning(format string, args ...interface{}) {
	pterm.Warning.Printfln(format, args...)
}

// Error prints an error line
func (d *Display) Error(format string, args ...interface{}) {
	pterm.Error.Printfln(format, args...)
}

// Table renders a header row plus data rows
func (d *Display) Table(data TableData) error {
	td := make(pterm.TableData, 0, len(data.Rows)+1)
	td = append(td, data.Headers)
	td = append(td, data.Rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(td).Render()
}
