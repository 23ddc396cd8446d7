package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestResolveCommand_Configured(t *testing.T) {
	args, err := resolveCommand("mpg123 -q", nil)
	if err != nil {
		t.Fatalf("resolveCommand failed: %v", err)
	}
	if len(args) != 2 || args[0] != "mpg123" || args[1] != "-q" {
		t.Errorf("Unexpected argv %v", args)
	}
}

func TestResolveCommand_Autodetect(t *testing.T) {
	onlyFFPlay := func(name string) (string, error) {
		if name == "ffplay" {
			return "/usr/bin/ffplay", nil
		}
		return "", errors.New("not found")
	}

	args, err := resolveCommand("", onlyFFPlay)
	if err != nil {
		t.Fatalf("resolveCommand failed: %v", err)
	}
	if args[0] != "ffplay" {
		t.Errorf("Expected ffplay, got %v", args)
	}

	none := func(string) (string, error) { return "", errors.New("not found") }
	if _, err := resolveCommand("  ", none); !errors.Is(err, ErrNoPlayer) {
		t.Errorf("Expected ErrNoPlayer, got %v", err)
	}
}

func TestPlayer_PlayBytes(t *testing.T) {
	p, err := NewPlayer("cat", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	if err := p.PlayBytes(context.Background(), []byte("ID3"), "mp3"); err != nil {
		t.Errorf("Expected playback to succeed, got %v", err)
	}
}

func TestPlayer_Failure(t *testing.T) {
	p, err := NewPlayer("false", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	if err := p.PlayBytes(context.Background(), []byte("ID3"), "mp3"); err == nil {
		t.Error("Expected a failing player to surface an error")
	}
}

func TestChime(t *testing.T) {
	p, _ := NewPlayer("true", zerolog.Nop())

	silent, err := NewChime(p, "")
	if err != nil {
		t.Fatalf("NewChime failed: %v", err)
	}
	if err := silent.Play(context.Background()); err != nil {
		t.Errorf("Expected silent chime to succeed, got %v", err)
	}

	if _, err := NewChime(p, filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("Expected missing chime file to be rejected")
	}

	path := filepath.Join(t.TempDir(), "chime.mp3")
	os.WriteFile(path, []byte("ID3"), 0o644)
	chime, err := NewChime(p, path)
	if err != nil {
		t.Fatalf("NewChime failed: %v", err)
	}
	if err := chime.Play(context.Background()); err != nil {
		t.Errorf("Expected chime to play, got %v", err)
	}
}
