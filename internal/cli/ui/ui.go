// Package ui holds the terminal styles, symbols and color detection of the
// oraclone commands.
package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ANSI 4-bit colors; lipgloss degrades them on simpler terminals.
var (
	ColorGreen  = lipgloss.Color("2")
	ColorYellow = lipgloss.Color("3")
	ColorRed    = lipgloss.Color("1")
)

var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleError   = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBoldRed = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
	StyleHint    = lipgloss.NewStyle().Faint(true)
)

const (
	SymbolCheck = "✓"
	SymbolCross = "✗"
	SymbolDot   = "●"
	SymbolArrow = "→"
)

var (
	forcedRenderer     *lipgloss.Renderer
	forcedRendererOnce sync.Once
)

// ForcedRenderer returns a lipgloss renderer that always produces ANSI
// output. Use it when the caller already decided that color is wanted.
func ForcedRenderer() *lipgloss.Renderer {
	forcedRendererOnce.Do(func() {
		forcedRenderer = lipgloss.NewRenderer(os.Stderr)
		forcedRenderer.SetColorProfile(termenv.ANSI)
	})
	return forcedRenderer
}

// ColorEnabled returns whether stderr is a TTY that supports color.
// Respects NO_COLOR (https://no-color.org/).
func ColorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// RunStatus renders a run status with its symbol: green for success, red
// for failed, yellow otherwise. Without color the plain status is returned.
func RunStatus(status string, color bool) string {
	if !color {
		return status
	}
	style := ForcedRenderer().NewStyle()
	switch status {
	case "success":
		return style.Foreground(ColorGreen).Render(SymbolCheck + " " + status)
	case "failed":
		return style.Foreground(ColorRed).Render(SymbolCross + " " + status)
	}
	return style.Foreground(ColorYellow).Render(SymbolDot + " " + status)
}
