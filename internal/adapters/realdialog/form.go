package realdialog

import (
	"io"
	"strings"

	"github.com/charmbracelet/huh"
)

// runInput shows a single-field form and returns the trimmed answer.
func runInput(in io.Reader, out io.Writer, accessible bool, title, description string, secret bool) (string, error) {
	var value string

	input := huh.NewInput().
		Title(title).
		Description(description).
		Value(&value)
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	form := huh.NewForm(huh.NewGroup(input)).
		WithInput(in).
		WithOutput(out).
		WithAccessible(accessible).
		WithShowHelp(false)

	if err := form.Run(); err != nil {
		return "", err
	}

	return strings.TrimRight(value, "\r\n"), nil
}
