package playback

import (
	"context"
	"fmt"
	"os"
)

// Chime plays a short audio cue telling the audience the microphone is open.
type Chime struct {
	player *Player
	path   string
}

// NewChime returns a cue for the file at path. An empty path yields a silent
// cue.
func NewChime(player *Player, path string) (*Chime, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("chime file: %w", err)
		}
	}
	return &Chime{player: player, path: path}, nil
}

// Play blocks until the cue finishes.
func (c *Chime) Play(ctx context.Context) error {
	if c.path == "" || c.player == nil {
		return nil
	}
	return c.player.PlayFile(ctx, c.path)
}
