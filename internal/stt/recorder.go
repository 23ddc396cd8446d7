package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// CommandRecorder runs an external capture program (sox, arecord, ffmpeg)
// that writes raw PCM to stdout.
type CommandRecorder struct {
	command []string
}

// NewCommandRecorder parses a command line such as
// "sox -q -d -t raw -r 16000 -e signed-integer -b 16 -c 1 -".
func NewCommandRecorder(command string) (*CommandRecorder, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("record command is empty")
	}
	return &CommandRecorder{command: fields}, nil
}

// Open starts the capture process. It is killed when ctx is done or the
// stream is closed.
func (r *CommandRecorder) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder %s: %w", r.command[0], err)
	}
	return &processStream{ReadCloser: stdout, cmd: cmd}, nil
}

type processStream struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (p *processStream) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.ReadCloser.Close()
		p.cmd.Wait()
	})
	return nil
}
