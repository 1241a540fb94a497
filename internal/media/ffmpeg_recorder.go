// Package media records combined camera+microphone footage through an
// ffmpeg child process, encoding to a WebM container on disk.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"civicsos/internal/ports"
)

const (
	// startupProbe mirrors the audio capture: a recorder that dies
	// immediately is a start failure, not a short recording.
	startupProbe = 300 * time.Millisecond
	stopGrace    = 2 * time.Second
)

// Recorder starts A/V recording sessions via ffmpeg.
type Recorder struct {
	command string
}

func NewRecorder(command string) *Recorder {
	if command == "" {
		command = "ffmpeg"
	}
	return &Recorder{command: command}
}

// Start launches a recording into a fresh file under cfg.OutputDir.
// The encoded payload is delivered on the session's Done channel
// after Stop, once the encoder has flushed its final chunk.
func (r *Recorder) Start(ctx context.Context, cfg ports.RecorderConfig) (ports.RecordingSession, error) {
	cfg = withRecorderDefaults(cfg)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	outPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("sos-%d.webm", time.Now().UnixNano()))

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.VideoFormat,
		"-i", cfg.VideoDevice,
		"-f", cfg.Audio.InputFormat,
		"-i", cfg.Audio.InputDevice,
		"-ac", strconv.Itoa(cfg.Audio.Channels),
		"-ar", strconv.Itoa(cfg.Audio.SampleRate),
		"-c:v", "libvpx",
		"-b:v", "1M",
		"-c:a", "libopus",
		"-f", "webm",
		"-y", outPath,
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	select {
	case err := <-exited:
		detail := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("process exited")
		}
		return nil, fmt.Errorf("recorder exited before capture started: %w: %s", err, detail)
	case <-time.After(startupProbe):
	}

	session := &recordingSession{
		process: cmd.Process,
		exited:  exited,
		outPath: outPath,
		stderr:  &stderr,
		done:    make(chan ports.RecordingResult, 1),
	}
	go session.finalize()
	return session, nil
}

func withRecorderDefaults(cfg ports.RecorderConfig) ports.RecorderConfig {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.InputFormat == "" {
		cfg.Audio.InputFormat = "pulse"
	}
	if cfg.Audio.InputDevice == "" {
		cfg.Audio.InputDevice = "default"
	}
	if cfg.VideoFormat == "" {
		cfg.VideoFormat = "v4l2"
	}
	if cfg.VideoDevice == "" {
		cfg.VideoDevice = "/dev/video0"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	return cfg
}

type recordingSession struct {
	process *os.Process
	exited  <-chan error
	outPath string
	stderr  *bytes.Buffer

	done chan ports.RecordingResult

	stopOnce sync.Once
}

// Stop interrupts the encoder so it can flush the container trailer.
// Idempotent; calling it when the recorder already exited is a no-op.
func (s *recordingSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}
		go func() {
			timer := time.NewTimer(stopGrace)
			defer timer.Stop()
			select {
			case <-s.exited:
			case <-timer.C:
				if s.process != nil {
					_ = s.process.Kill()
				}
			}
		}()
	})
	return nil
}

// Done delivers the finalize outcome exactly once.
func (s *recordingSession) Done() <-chan ports.RecordingResult {
	return s.done
}

// finalize waits for the encoder to exit and verifies the container
// was written. A missing or empty file yields an error result; the
// caller decides whether that is fatal.
func (s *recordingSession) finalize() {
	exitErr := <-s.exited
	var exit *exec.ExitError
	if errors.As(exitErr, &exit) {
		// Interrupted encoders exit nonzero after a valid flush.
		exitErr = nil
	}

	info, statErr := os.Stat(s.outPath)
	switch {
	case exitErr != nil:
		s.done <- ports.RecordingResult{Err: fmt.Errorf("recorder failed: %w: %s", exitErr, strings.TrimSpace(s.stderr.String()))}
	case statErr != nil || info.Size() == 0:
		s.done <- ports.RecordingResult{Err: errors.New("recorder produced no media")}
	default:
		s.done <- ports.RecordingResult{MediaRef: s.outPath}
	}
}
