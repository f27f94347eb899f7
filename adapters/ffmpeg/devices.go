// Package ffmpeg captures and plays audio by driving the ffmpeg and ffplay binaries.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
	"github.com/satriahrh/voicecall/internal/config"
)

const probeTimeout = 5 * time.Second

// Config configures the ffmpeg adapters
type Config struct {
	FFmpegPath  string
	FFplayPath  string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int

	PlaybackRate int
	Volume       int
}

// ConfigFrom builds the adapter configuration from the application configuration
func ConfigFrom(capture config.CaptureConfig, playback config.PlaybackConfig) Config {
	return Config{
		FFmpegPath:   capture.FFmpegPath,
		FFplayPath:   playback.FFplayPath,
		InputFormat:  capture.InputFormat,
		InputDevice:  capture.InputDevice,
		SampleRate:   capture.SampleRate,
		Channels:     capture.Channels,
		PlaybackRate: playback.SampleRate,
		Volume:       playback.Volume,
	}
}

func (c Config) withDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFplayPath == "" {
		c.FFplayPath = "ffplay"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = 24000
	}
	if c.Volume <= 0 || c.Volume > 100 {
		c.Volume = 100
	}
	return c
}

// inputArgs returns the ffmpeg input options for the configured microphone
func (c Config) inputArgs(goos string) ([]string, error) {
	format, device := c.InputFormat, c.InputDevice
	if format == "" {
		switch goos {
		case "darwin":
			format = "avfoundation"
		case "linux":
			format = "pulse"
		case "windows":
			format = "dshow"
		default:
			return nil, fmt.Errorf("microphone capture is not implemented for %s; set CAPTURE_INPUT_FORMAT", goos)
		}
	}
	if device == "" {
		switch format {
		case "avfoundation":
			device = ":0"
		case "dshow":
			return nil, errors.New("dshow capture requires CAPTURE_INPUT_DEVICE")
		default:
			device = "default"
		}
	}
	return []string{"-f", format, "-i", device}, nil
}

// Devices exposes the local microphone through ffmpeg.
// It implements MediaDevices, EncoderSupport and RecorderFactory.
type Devices struct {
	cfg    Config
	logger *zap.Logger

	probeOnce sync.Once
	muxers    map[string]bool
	encoders  map[string]bool
	probeErr  error
}

// NewDevices creates the ffmpeg device adapter
func NewDevices(cfg Config, logger *zap.Logger) *Devices {
	return &Devices{cfg: cfg.withDefaults(), logger: logger}
}

// RequestMicrophone opens the input device briefly to confirm it can be captured
func (d *Devices) RequestMicrophone(ctx context.Context) (repositories.MicrophoneStream, error) {
	if _, err := exec.LookPath(d.cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg is required for microphone capture: %w", err)
	}
	input, err := d.cfg.inputArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	args = append(args, "-t", "0.1", "-f", "null", "-")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(probeCtx, d.cfg.FFmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if isPermissionFailure(msg) {
			return nil, &entities.PermissionError{Err: errors.New(msg)}
		}
		if msg != "" {
			return nil, fmt.Errorf("open input device: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("open input device: %w", err)
	}

	stream := &micStream{id: uuid.NewString(), input: input}
	d.logger.Info("Microphone available",
		zap.String("stream", stream.id),
		zap.Strings("input", input))
	return stream, nil
}

func isPermissionFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "permission denied") ||
		strings.Contains(s, "not authorized") ||
		strings.Contains(s, "operation not permitted")
}

// IsTypeSupported reports whether ffmpeg has the muxer and an encoder for mimeType
func (d *Devices) IsTypeSupported(mimeType string) bool {
	c, ok := containerFor(mimeType)
	if !ok {
		return false
	}
	if mimeType == "" {
		return true
	}

	d.probeOnce.Do(d.probe)
	if d.probeErr != nil {
		return false
	}
	if !d.muxers[c.muxer] {
		return false
	}
	return d.pickCodec(c) != ""
}

func (d *Devices) pickCodec(c container) string {
	for _, codec := range c.codecs {
		if d.encoders[codec] {
			return codec
		}
	}
	return ""
}

func (d *Devices) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	muxers, err := exec.CommandContext(ctx, d.cfg.FFmpegPath, "-hide_banner", "-muxers").Output()
	if err != nil {
		d.probeErr = fmt.Errorf("list ffmpeg muxers: %w", err)
		d.logger.Warn("Failed to probe ffmpeg capabilities", zap.Error(d.probeErr))
		return
	}
	encoders, err := exec.CommandContext(ctx, d.cfg.FFmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		d.probeErr = fmt.Errorf("list ffmpeg encoders: %w", err)
		d.logger.Warn("Failed to probe ffmpeg capabilities", zap.Error(d.probeErr))
		return
	}
	d.muxers = parseMuxers(string(muxers))
	d.encoders = parseEncoders(string(encoders))
	d.logger.Debug("Probed ffmpeg capabilities",
		zap.Int("muxers", len(d.muxers)),
		zap.Int("encoders", len(d.encoders)))
}

// NewRecorder creates a recorder that encodes stream into mimeType
func (d *Devices) NewRecorder(stream repositories.MicrophoneStream, mimeType string) (repositories.Recorder, error) {
	mic, ok := stream.(*micStream)
	if !ok {
		return nil, fmt.Errorf("unsupported microphone stream %T", stream)
	}
	if mic.stopped.Load() {
		return nil, errors.New("microphone stream is stopped")
	}

	c, ok := containerFor(mimeType)
	if !ok {
		return nil, fmt.Errorf("unsupported recording format %q", mimeType)
	}
	codec := c.codecs[0]
	if mimeType != "" {
		d.probeOnce.Do(d.probe)
		if picked := d.pickCodec(c); picked != "" {
			codec = picked
		}
	}

	return &Recorder{
		path:   d.cfg.FFmpegPath,
		args:   recordArgs(mic.input, d.cfg.SampleRate, d.cfg.Channels, codec, c),
		logger: d.logger,
	}, nil
}

// recordArgs builds an ffmpeg command line that encodes the input to stdout.
// stdin stays attached so Stop can send "q" and let ffmpeg finish the container.
func recordArgs(input []string, sampleRate, channels int, codec string, c container) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	args = append(args,
		"-ac", fmt.Sprintf("%d", channels),
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-c:a", codec,
	)
	args = append(args, c.extra...)
	args = append(args, "-f", c.muxer, "pipe:1")
	return args
}

type micStream struct {
	id      string
	input   []string
	stopped atomic.Bool
}

func (s *micStream) ID() string { return s.id }

func (s *micStream) Stop() error {
	s.stopped.Store(true)
	return nil
}
