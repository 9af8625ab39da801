// Package printer formats CLI output with color.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// DisableColor turns off color output, e.g. for --no-color or tests.
// NO_COLOR in the environment disables color as well.
func DisableColor() {
	color.NoColor = true
}

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

// Success prints a green message with a checkmark prefix.
func Success(w io.Writer, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprintln(w, msg)
}

// Info prints a plain message.
func Info(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, format+"\n", a...)
}

// Warning prints a yellow message.
func Warning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "warning: "+format+"\n", a...)
}

// Heading prints a cyan section title.
func Heading(w io.Writer, title string) {
	cyan.Fprintln(w, title)
}

// Field prints an aligned "key: value" line.
func Field(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %-14s %v\n", key+":", value)
}

// Fields prints a map as sorted key/value lines.
func Fields(w io.Writer, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		Field(w, k, fields[k])
	}
}

// Muted prints a dimmed line, used for empty results.
func Muted(w io.Writer, format string, a ...any) {
	faint.Fprintf(w, format+"\n", a...)
}

// Error prints a titled error with an explanation and suggestions to w and
// returns an error carrying only the title.
func Error(w io.Writer, title, explanation string, suggestions []string) error {
	red.Fprintf(w, "%s\n\n", title)
	fmt.Fprintf(w, "%s\n", explanation)

	if len(suggestions) > 0 {
		fmt.Fprintln(w)
		if len(suggestions) == 1 {
			fmt.Fprintf(w, "%s\n", suggestions[0])
		} else {
			fmt.Fprintln(w, "Either:")
			for i, suggestion := range suggestions {
				fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// Table writes fixed-width rows. The header and separator are written
// before the first row, so an empty table prints nothing.
type Table struct {
	w       io.Writer
	headers []string
	widths  []int
	rows    int
}

// NewTable creates a table. widths applies to every column but the last,
// which is never padded or truncated.
func NewTable(w io.Writer, headers []string, widths []int) *Table {
	return &Table{w: w, headers: headers, widths: widths}
}

// Row writes one row, truncating cells that exceed their column width.
func (t *Table) Row(cells ...string) {
	if t.rows == 0 {
		cyan.Fprintln(t.w, t.line(t.headers))
		seps := make([]string, len(t.headers))
		for i := range seps {
			n := len(t.headers[i])
			if i < len(t.widths) {
				n = t.widths[i]
			}
			seps[i] = strings.Repeat("-", n)
		}
		fmt.Fprintln(t.w, t.line(seps))
	}
	t.rows++
	fmt.Fprintln(t.w, t.line(cells))
}

// Rows returns the number of rows written.
func (t *Table) Rows() int { return t.rows }

// Footer writes a "N <noun>s found" count line after a blank line.
func (t *Table) Footer(noun string) {
	if t.rows != 1 {
		noun += "s"
	}
	fmt.Fprintf(t.w, "\n%d %s found\n", t.rows, noun)
}

func (t *Table) line(cells []string) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 || i >= len(t.widths) {
			parts[i] = cell
			continue
		}
		parts[i] = fmt.Sprintf("%-*s", t.widths[i], truncate(cell, t.widths[i]))
	}
	return strings.Join(parts, " ")
}

// truncate shortens s to n characters, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
