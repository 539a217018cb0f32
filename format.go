package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ANSI escape sequences, emitted only on TTYs.
const (
	ansiDim   = "\x1b[2m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// moneyPrinter groups digits per locale. Output formatting only; all
// arithmetic stays in integer minor units.
var moneyPrinter = message.NewPrinter(language.English)

// stderrIsTTY reports whether stderr is an interactive terminal.
func stderrIsTTY() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// stdoutIsTTY reports whether stdout is an interactive terminal.
func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatCents renders integer minor units as a grouped decimal amount,
// e.g. 123456789 -> "1,234,567.89".
func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}

	return sign + moneyPrinter.Sprintf("%d", c/100) + fmt.Sprintf(".%02d", c%100)
}

// dimmed wraps s in dim ANSI codes when stdout is a TTY. Pending optimistic
// rows are rendered this way so in-flight state is distinguishable.
func dimmed(s string) string {
	if !stdoutIsTTY() {
		return s
	}

	return ansiDim + s + ansiReset
}

// toastNotifier renders engine failure notifications as error lines on
// stderr — the CLI's stand-in for the web client's error toast.
type toastNotifier struct {
	tty bool
}

func newToastNotifier() *toastNotifier {
	return &toastNotifier{tty: stderrIsTTY()}
}

func (n *toastNotifier) Failure(msg string) {
	if n.tty {
		fmt.Fprintf(os.Stderr, "%serror:%s %s\n", ansiRed, ansiReset, msg)
		return
	}

	fmt.Fprintf(os.Stderr, "error: %s\n", msg)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	printRow(w, headers, widths)

	sep := make([]string, len(headers))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}

	printRow(w, sep, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = cell + strings.Repeat(" ", widths[i]-visibleLen(cell))
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// visibleLen returns the cell width excluding ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false

	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			n++
		}
	}

	return n
}
