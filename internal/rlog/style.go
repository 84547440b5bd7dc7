package rlog

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Styling for the status CLI output path only — never used by the
// plain-stderr helpers in rlog.go, which stay script-friendly.
var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // amber
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")) // red
	styleHeading = lipgloss.NewStyle().Bold(true)
)

// colorProfile is read once at startup the way termenv's own CLI examples
// do, rather than per-call, since stdout's terminal-ness doesn't change
// mid-process.
var colorProfile = termenv.EnvColorProfile()

// OK renders a success line for status output.
func OK(s string) string { return styleOK.Render(s) }

// Warn renders a warning line for status output.
func Warn(s string) string { return styleWarn.Render(s) }

// Fail renders a failure line for status output.
func Fail(s string) string { return styleFail.Render(s) }

// Heading renders a section heading for status output.
func Heading(s string) string { return styleHeading.Render(s) }

// ColorEnabled reports whether OK/Warn/Fail/Heading render as anything but
// plain text on the current stdout — false when NO_COLOR is set or stdout
// isn't a color-capable terminal (piped into a file, CI logs).
func ColorEnabled() bool {
	return colorProfile != termenv.Ascii
}

// TerminalWidth returns stdout's column width for table layout, or
// fallback when stdout isn't a terminal at all.
func TerminalWidth(fallback int) int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fallback
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
