package cmd

import (
	"os"
	"runtime"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/anivar/termbrain-sub001/internal/advisor"
)

// ANSI codes for plain output. Cleared when colors are off.
var (
	colorRed    = ""
	colorGreen  = ""
	colorYellow = ""
	colorCyan   = ""
	colorDim    = ""
	colorBold   = ""
	colorReset  = ""
)

// colorMode is set by the --color flag: auto, always or never.
var colorMode = "auto"

func init() {
	if !shouldDisableColors() {
		enableColors()
	}
}

func enableColors() {
	colorRed = "\033[0;31m"
	colorGreen = "\033[0;32m"
	colorYellow = "\033[0;33m"
	colorCyan = "\033[0;36m"
	colorDim = "\033[2m"
	colorBold = "\033[1m"
	colorReset = "\033[0m"
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func disableColors() {
	colorRed = ""
	colorGreen = ""
	colorYellow = ""
	colorCyan = ""
	colorDim = ""
	colorBold = ""
	colorReset = ""
	lipgloss.SetColorProfile(termenv.Ascii)
}

func applyColorMode() {
	switch colorMode {
	case "always":
		enableColors()
	case "never":
		disableColors()
	default:
		if shouldDisableColors() || !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			disableColors()
		} else {
			enableColors()
		}
	}
}

func shouldDisableColors() bool {
	// https://no-color.org/
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	if runtime.GOOS == "windows" {
		if os.Getenv("WT_SESSION") != "" || os.Getenv("TERM_PROGRAM") != "" {
			return false
		}
		return os.Getenv("ANSICON") == "" && os.Getenv("ConEmuANSI") != "ON"
	}
	return false
}

// terminalWidth returns $COLUMNS, the tty width, or 80.
func terminalWidth() int {
	if v := os.Getenv("COLUMNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if w := getTermWidthIoctl(); w > 0 {
		return w
	}
	return 80
}

var riskStyles = map[advisor.Level]lipgloss.Style{
	advisor.LevelLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	advisor.LevelMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	advisor.LevelHigh:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("202")),
	advisor.LevelCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")),
}

func renderRisk(level advisor.Level) string {
	style, ok := riskStyles[level]
	if !ok {
		return string(level)
	}
	return style.Render(" " + string(level) + " ")
}
