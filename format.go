package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// formatSize renders a byte count with binary units, e.g. "1.2 MB".
func formatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	v := float64(n) / 1024
	unit := 0

	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}

	return fmt.Sprintf("%.1f %s", v, sizeUnits[unit])
}

// printTable writes headers and rows as left-aligned columns separated by
// two spaces. Every row has len(headers) cells.
func printTable(w io.Writer, headers []string, rows [][]string) {
	all := append([][]string{headers}, rows...)

	widths := make([]int, len(headers))
	for _, row := range all {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder

	for _, row := range all {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}

			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}

		b.WriteByte('\n')
	}

	io.WriteString(w, b.String())
}
