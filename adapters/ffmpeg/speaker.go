package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
)

// Speaker plays audio units through ffplay
type Speaker struct {
	cfg    Config
	logger *zap.Logger
}

// NewSpeaker creates the playback adapter
func NewSpeaker(cfg Config, logger *zap.Logger) *Speaker {
	return &Speaker{cfg: cfg.withDefaults(), logger: logger}
}

// Acquire checks that the player binaries are available
func (s *Speaker) Acquire(ctx context.Context) (repositories.AudioOutput, error) {
	if _, err := exec.LookPath(s.cfg.FFplayPath); err != nil {
		return nil, fmt.Errorf("ffplay is required for playback: %w", err)
	}
	if _, err := exec.LookPath(s.cfg.FFmpegPath); err != nil {
		s.logger.Warn("ffmpeg not found, audio will use raw playback only", zap.Error(err))
	}
	return s, nil
}

// PlayDecoded decodes data to PCM with ffmpeg and plays the samples
func (s *Speaker) PlayDecoded(ctx context.Context, data []byte) error {
	pcm, err := s.decode(ctx, data)
	if err != nil {
		return err
	}
	return s.run(ctx, s.cfg.FFplayPath, pcmPlayArgs(s.cfg.PlaybackRate, s.cfg.Volume), pcm)
}

// PlayRaw lets ffplay probe and play the container directly
func (s *Speaker) PlayRaw(ctx context.Context, data []byte) error {
	return s.run(ctx, s.cfg.FFplayPath, rawPlayArgs(s.cfg.Volume), data)
}

func (s *Speaker) decode(ctx context.Context, data []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.cfg.FFmpegPath, decodeArgs(s.cfg.PlaybackRate)...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v: %s", entities.ErrDecode, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no samples decoded", entities.ErrDecode)
	}
	return stdout.Bytes(), nil
}

func (s *Speaker) run(ctx context.Context, path string, args []string, input []byte) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func decodeArgs(sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate),
		"-f", "s16le", "pipe:1",
	}
}

func pcmPlayArgs(sampleRate, volume int) []string {
	return []string{
		"-nodisp", "-autoexit",
		"-loglevel", "error",
		"-volume", fmt.Sprintf("%d", volume),
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	}
}

func rawPlayArgs(volume int) []string {
	return []string{
		"-nodisp", "-autoexit",
		"-loglevel", "error",
		"-volume", fmt.Sprintf("%d", volume),
		"-i", "pipe:0",
	}
}
