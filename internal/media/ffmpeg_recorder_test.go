package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"civicsos/internal/ports"
)

func TestRecorderStartStopDeliversMedia(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "record.sh", "#!/usr/bin/env bash\nout=\"${!#}\"\nprintf 'webm-bytes' > \"$out\"\nsleep 5\n")
	recorder := NewRecorder(script)

	outDir := t.TempDir()
	session, err := recorder.Start(context.Background(), ports.RecorderConfig{OutputDir: outDir})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	select {
	case result := <-session.Done():
		if result.Err != nil {
			t.Fatalf("unexpected finalize error: %v", result.Err)
		}
		if !strings.HasPrefix(filepath.Base(result.MediaRef), "sos-") {
			t.Fatalf("unexpected media ref: %q", result.MediaRef)
		}
		if _, err := os.Stat(result.MediaRef); err != nil {
			t.Fatalf("media file missing: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("finalize result not delivered")
	}
}

func TestRecorderStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no device' 1>&2\nexit 1\n")
	recorder := NewRecorder(script)

	_, err := recorder.Start(context.Background(), ports.RecorderConfig{OutputDir: t.TempDir()})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecorderNoMediaProduced(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "empty.sh", "#!/usr/bin/env bash\nsleep 5\n")
	recorder := NewRecorder(script)

	session, err := recorder.Start(context.Background(), ports.RecorderConfig{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	select {
	case result := <-session.Done():
		if result.Err == nil {
			t.Fatalf("expected finalize error for missing media")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("finalize result not delivered")
	}
}

func TestWithRecorderDefaults(t *testing.T) {
	t.Parallel()

	cfg := withRecorderDefaults(ports.RecorderConfig{})
	if cfg.VideoFormat != "v4l2" || cfg.VideoDevice != "/dev/video0" {
		t.Fatalf("unexpected video defaults: %+v", cfg)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg)
	}
	if cfg.OutputDir == "" {
		t.Fatalf("expected output dir default")
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
