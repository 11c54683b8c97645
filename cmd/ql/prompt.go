package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/questlog/questlog/internal/ui"
)

// confirm asks a yes/no question. Without a terminal it refuses, so scripts
// must pass --yes.
func confirm(title string) (bool, error) {
	if !ui.IsTerminal(os.Stdin) {
		return false, fmt.Errorf("%s: no terminal to confirm, pass --yes", title)
	}
	var ok bool
	if err := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&ok).Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// promptSecret reads a hidden value from the terminal.
func promptSecret(title string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if s == "" {
				return fmt.Errorf("cannot be empty")
			}
			return nil
		}).
		Value(&value).
		Run()
	return value, err
}
