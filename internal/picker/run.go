package picker

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ErrCancelled is returned by Run when the user dismisses the picker.
var ErrCancelled = errors.New("picker cancelled")

// Run opens the picker on the controlling terminal and returns the chosen
// command. Stdout stays free so the result can be captured by the shell.
func Run(ctx context.Context, tabs []Tab, provider Provider, query string) (string, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("open terminal: %w", err)
	}
	defer tty.Close()

	// Stdout is usually a pipe here, so detect colors from the tty.
	lipgloss.SetColorProfile(termenv.NewOutput(tty).ColorProfile())

	p := tea.NewProgram(NewModel(tabs, provider, query),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithInput(tty),
		tea.WithOutput(tty),
	)
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("picker: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return "", errors.New("picker: unexpected model type")
	}
	if m.Cancelled() {
		return "", ErrCancelled
	}
	return m.Result(), nil
}
