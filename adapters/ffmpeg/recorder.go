package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const chunkSize = 4096

// Recorder runs one ffmpeg encode for a single recording gesture
type Recorder struct {
	path   string
	args   []string
	logger *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   bytes.Buffer
	readDone chan struct{}
	finished bool
}

// Start launches ffmpeg and streams encoded chunks to onChunk
func (r *Recorder) Start(ctx context.Context, onChunk func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return errors.New("recorder already started")
	}

	cmd := exec.Command(r.path, r.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg capture: %w", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.readDone = make(chan struct{})

	go func() {
		defer close(r.readDone)
		buf := make([]byte, chunkSize)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onChunk(chunk)
			}
			if readErr != nil {
				return
			}
		}
	}()

	r.logger.Debug("Started ffmpeg capture", zap.Strings("args", r.args))
	return nil
}

// Stop asks ffmpeg to finish the container and waits for the last chunk
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.cmd == nil || r.finished {
		r.mu.Unlock()
		return nil
	}
	r.finished = true
	cmd, stdin, readDone := r.cmd, r.stdin, r.readDone
	r.mu.Unlock()

	if _, err := stdin.Write([]byte("q")); err != nil {
		r.logger.Debug("Failed to signal ffmpeg", zap.Error(err))
	}
	stdin.Close()

	waitCh := make(chan error, 1)
	go func() {
		<-readDone
		waitCh <- cmd.Wait()
	}()

	select {
	case err := <-waitCh:
		if err != nil && !interruptedExit(err) {
			return fmt.Errorf("ffmpeg capture failed: %w: %s", err, strings.TrimSpace(r.stderr.String()))
		}
		return nil
	case <-ctx.Done():
		cmd.Process.Kill()
		<-waitCh
		return ctx.Err()
	}
}

// Abort kills ffmpeg without waiting for the container to be finished
func (r *Recorder) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.finished {
		return nil
	}
	r.finished = true

	cmd, readDone := r.cmd, r.readDone
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill ffmpeg: %w", err)
	}
	go func() {
		<-readDone
		cmd.Wait()
	}()
	return nil
}

// interruptedExit reports the exit status ffmpeg uses after a "q" on some input devices
func interruptedExit(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 255
}
