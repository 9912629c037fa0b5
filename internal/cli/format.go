// Package cli provides shared formatting helpers for cmd/gitmem output: ANSI
// color constants, a heavy-border Header box, and a Section divider. There
// is no product banner or boxed confidence-score renderer here — gitmem's
// `recall` output is a flat list, not a surfacing-confidence display.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// ANSI color constants.
const (
	Green  = "\033[32m"
	Red    = "\033[31m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Dim    = "\033[2m"
	Bold   = "\033[1m"
	Reset  = "\033[0m"
)

// boxWidth is the inner content width (between the border characters).
const boxWidth = 50

// margin is the left indent for boxed output.
const margin = "  "

// ShortenHome replaces a $HOME prefix with ~.
func ShortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

// FormatNumber adds comma separators (1234 -> "1,234").
func FormatNumber(n int) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return FormatNumber(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}

// Header prints a heavy-border box with a title, used by `gitmem status`.
func Header(title string) {
	fmt.Println()
	heavyTop := margin + "┏" + strings.Repeat("━", boxWidth) + "┓"
	heavyBottom := margin + "┗" + strings.Repeat("━", boxWidth) + "┛"

	content := "  " + title
	padded := padRight(content, boxWidth)

	fmt.Printf("%s%s%s\n", Cyan, heavyTop, Reset)
	fmt.Printf("%s%s┃%s┃%s\n", Cyan, margin, padded, Reset)
	fmt.Printf("%s%s%s\n", Cyan, heavyBottom, Reset)
}

// Section prints a section divider line: ── Name ─────────────────
func Section(name string) {
	prefix := "── " + name + " "
	remaining := boxWidth + 2 - runeLen(prefix)
	if remaining < 0 {
		remaining = 0
	}
	rule := prefix + strings.Repeat("─", remaining)
	fmt.Printf("\n%s%s%s%s\n\n", margin, Cyan, rule, Reset)
}

// KV prints a left-aligned key/value row, padding key to width.
func KV(key string, width int, value string) {
	fmt.Printf("  %s%s\n", padRight(key+":", width), value)
}

// Table renders rows of equal-length string slices as space-aligned
// columns under the given headers.
func Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runeLen(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && runeLen(cell) > widths[i] {
				widths[i] = runeLen(cell)
			}
		}
	}
	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i < len(widths) {
				parts[i] = c + strings.Repeat(" ", widths[i]-runeLen(c)+2)
			} else {
				parts[i] = c
			}
		}
		fmt.Println(strings.Join(parts, ""))
	}
	printRow(headers)
	for _, row := range rows {
		printRow(row)
	}
}

// Footer prints the closing rule for a Header/Section block.
func Footer() {
	fmt.Printf("\n%s%s%s\n", Dim, strings.Repeat("─", boxWidth+2), Reset)
}

// StatusIcon returns a colorized glyph for a boolean health check.
func StatusIcon(ok bool) string {
	if ok {
		return Cyan + "✓" + Reset
	}
	return Red + "✗" + Reset
}

// padRight pads s with spaces to exactly width characters, truncating if
// s is already longer.
func padRight(s string, width int) string {
	n := runeLen(s)
	if n >= width {
		r := []rune(s)
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-n)
}

// runeLen counts the display width in runes.
func runeLen(s string) int {
	return len([]rune(s))
}
