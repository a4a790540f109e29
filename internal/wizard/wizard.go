// Package wizard holds the interactive prompts used when a command is run
// without its required arguments.
package wizard

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/tessro/reel/internal/core"
)

// ErrNoTerminal is returned when a prompt is needed but there is no one to ask.
var ErrNoTerminal = errors.New("not running in a terminal")

// CanPrompt reports whether stdin and stdout are both terminals.
func CanPrompt() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// PromptVideo asks for a video id or watch URL and returns the parsed id.
func PromptVideo() (string, error) {
	if !CanPrompt() {
		return "", fmt.Errorf("video id required: %w", ErrNoTerminal)
	}

	var raw string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Video").
				Description("A video id or watch URL").
				Placeholder("dQw4w9WgXcQ").
				Validate(func(s string) error {
					_, err := core.ParseVideoID(s)
					return err
				}).
				Value(&raw),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt cancelled: %w", err)
	}
	return core.ParseVideoID(raw)
}
