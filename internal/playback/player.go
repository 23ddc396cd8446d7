// Package playback plays audio files through a system command line player.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoPlayer is returned when no supported player is installed.
var ErrNoPlayer = errors.New("no audio player found (tried afplay, mpg123, ffplay)")

// candidates are tried in order when no command is configured.
var candidates = [][]string{
	{"afplay"},
	{"mpg123", "-q"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
}

// Player runs a command with the audio file path appended as last argument.
type Player struct {
	command []string
	logger  zerolog.Logger
}

// NewPlayer parses command ("mpg123 -q") or, when it is empty, picks the
// first installed candidate.
func NewPlayer(command string, logger zerolog.Logger) (*Player, error) {
	args, err := resolveCommand(command, exec.LookPath)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("component", "playback").Logger()
	logger.Debug().Strs("command", args).Msg("Audio player selected")
	return &Player{command: args, logger: logger}, nil
}

func resolveCommand(command string, lookPath func(string) (string, error)) ([]string, error) {
	if fields := strings.Fields(command); len(fields) > 0 {
		return fields, nil
	}
	for _, c := range candidates {
		if _, err := lookPath(c[0]); err == nil {
			return c, nil
		}
	}
	return nil, ErrNoPlayer
}

// Command returns the player argv without the file argument.
func (p *Player) Command() []string {
	return append([]string(nil), p.command...)
}

// PlayFile blocks until the player exits. Cancelling ctx kills the player.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	args := append(p.Command(), path)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// PlayBytes writes data to a temporary file with the given extension, plays
// it and removes it.
func (p *Player) PlayBytes(ctx context.Context, data []byte, format string) error {
	if format == "" {
		format = "mp3"
	}
	f, err := os.CreateTemp("", "narration-*."+format)
	if err != nil {
		return fmt.Errorf("failed to create temp audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp audio file: %w", err)
	}

	return p.PlayFile(ctx, path)
}
