package ports

import (
	"context"
	"io"
	"time"

	"civicsos/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live audio-only capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecorderConfig describes a combined audio+video recording.
type RecorderConfig struct {
	Audio       AudioConfig
	VideoFormat string
	VideoDevice string
	OutputDir   string
}

// RecordingResult is the finalize outcome of a recording session.
// MediaRef points at the encoded container; it is empty when the
// recording produced nothing usable.
type RecordingResult struct {
	MediaRef string
	Err      error
}

// RecordingSession owns exactly one underlying A/V stream. Stop is
// idempotent; the encoded payload arrives on Done after Stop because
// the encoder may flush its last chunk late.
type RecordingSession interface {
	Stop() error
	Done() <-chan RecordingResult
}

// MediaRecorder starts recording sessions. Starting a new session
// while one is active must tear down the previous one first.
type MediaRecorder interface {
	Start(ctx context.Context, cfg RecorderConfig) (RecordingSession, error)
}

// StreamingConfig describes provider-agnostic transcription settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active duplex transcription channel.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider opens streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// MotionSample is one reading from the device motion sensor.
type MotionSample struct {
	Magnitude float64
	At        time.Time
}

// MotionFeed delivers motion-magnitude samples.
type MotionFeed interface {
	Samples() <-chan MotionSample
}

// SnapshotStore persists the full database snapshot under a fixed
// key. Load reports ok=false when no snapshot has been written yet.
type SnapshotStore interface {
	Load() (data []byte, ok bool, err error)
	Save(data []byte) error
	Close() error
}

// SyncMessage is the cross-context broadcast envelope.
type SyncMessage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

// SyncBus fans a message out to every open context of the
// application, including the sender's own.
type SyncBus interface {
	Publish(msg SyncMessage) error
	Messages() <-chan SyncMessage
	Close() error
}

// EventSink emits backend state and user-facing notices to the UI.
type EventSink interface {
	FlowStateChanged(state domain.FlowState, reason domain.FlowReason)
	CountdownTick(secondsLeft int)
	RecordingTick(secondsLeft int)
	ListeningChanged(active bool)
	StoreChanged(event domain.ChangeEvent)
	Toast(message string)
	Haptic(durationMs int)
}
