// Package ui renders terminal output for the ql command.
//
// Colors follow ui.color: "always", "never", or "auto" which colors only when
// stdout is a terminal and NO_COLOR is unset.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/questlog/questlog/internal/schema"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Theme holds the styles used by the CLI.
type Theme struct {
	Pass   lipgloss.Style
	Warn   lipgloss.Style
	Fail   lipgloss.Style
	Accent lipgloss.Style
	Muted  lipgloss.Style
	Bold   lipgloss.Style
	Header lipgloss.Style

	High   lipgloss.Style
	Medium lipgloss.Style
	Low    lipgloss.Style
}

var (
	mu      sync.RWMutex
	current = newTheme(lipgloss.NewRenderer(os.Stdout))
)

func newTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		Pass:   r.NewStyle().Foreground(lipgloss.Color("#10B981")),
		Warn:   r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		Fail:   r.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		Accent: r.NewStyle().Foreground(lipgloss.Color("#7C3AED")),
		Muted:  r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		Bold:   r.NewStyle().Bold(true),
		Header: r.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true).Underline(true),

		High:   r.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		Medium: r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		Low:    r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Profile picks the color profile for out under mode.
func Profile(mode string, out io.Writer) termenv.Profile {
	switch mode {
	case ColorNever:
		return termenv.Ascii
	case ColorAlways:
		if p := termenv.EnvColorProfile(); p != termenv.Ascii {
			return p
		}
		return termenv.ANSI256
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return termenv.Ascii
	}
	if !IsTerminal(out) {
		return termenv.Ascii
	}
	return termenv.NewOutput(out).EnvColorProfile()
}

// Setup configures rendering for out. Call once at startup.
func Setup(mode string, out io.Writer) {
	r := lipgloss.NewRenderer(out)
	r.SetColorProfile(Profile(mode, out))

	mu.Lock()
	defer mu.Unlock()
	current = newTheme(r)
}

// Current returns the active theme.
func Current() Theme {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func RenderPass(s string) string   { return Current().Pass.Render(s) }
func RenderWarn(s string) string   { return Current().Warn.Render(s) }
func RenderFail(s string) string   { return Current().Fail.Render(s) }
func RenderAccent(s string) string { return Current().Accent.Render(s) }
func RenderMuted(s string) string  { return Current().Muted.Render(s) }
func RenderBold(s string) string   { return Current().Bold.Render(s) }
func RenderHeader(s string) string { return Current().Header.Render(s) }

// RenderPriority colors a priority label.
func RenderPriority(p schema.Priority) string {
	t := Current()
	switch p {
	case schema.PriorityHigh:
		return t.High.Render(string(p))
	case schema.PriorityLow:
		return t.Low.Render(string(p))
	default:
		return t.Medium.Render(string(p))
	}
}

// Checkbox renders a completion marker.
func Checkbox(done bool) string {
	if done {
		return RenderPass("[x]")
	}
	return "[ ]"
}

// ProgressBar renders pct (0-100) as a bar of the given width.
func ProgressBar(pct, width int) string {
	if width <= 0 {
		width = 20
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	bar := RenderPass(strings.Repeat("█", filled)) + RenderMuted(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// FormatDuration renders d as "1h05m" or "25m" or "40s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// IDLabel marks local-only ids so they stand out in listings.
func IDLabel(id schema.ID) string {
	if id.IsBackend() {
		return id.String()
	}
	return RenderWarn(id.String() + "*")
}
