package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"civicsos/internal/domain"
	"civicsos/internal/ports"
)

// PhraseMatcher decides whether a transcript fragment contains the
// secret phrase.
type PhraseMatcher interface {
	Match(text string) bool
}

// ListenConfig controls a passphrase listening session.
type ListenConfig struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	ChunkSize int
	Window    time.Duration
}

// ListenController runs short audio-to-text sessions that watch for
// the user's secret phrase. At most one session is live at a time;
// starting a new one tears down the previous one first.
type ListenController struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	events   ports.EventSink
	log      *zap.Logger
	cfg      ListenConfig

	mu      sync.Mutex
	current *ListenSession
}

func NewListenController(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	events ports.EventSink,
	log *zap.Logger,
	cfg ListenConfig,
) *ListenController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ListenController{
		audio:    audio,
		provider: provider,
		events:   events,
		log:      log,
		cfg:      cfg,
	}
}

// Start opens the microphone and the transcription channel and waits
// for the phrase until the window elapses.
func (c *ListenController) Start(ctx context.Context, matcher PhraseMatcher) (*ListenSession, error) {
	if matcher == nil {
		return nil, errors.New("no phrase matcher configured")
	}

	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()
	if previous != nil {
		previous.Cancel()
		<-previous.done
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := c.provider.StartStreaming(sessionCtx, c.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open transcription channel: %w", err)
	}

	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}

	session := &ListenSession{
		cancel: cancel,
		audio:  audioSession,
		stream: stream,
		result: make(chan domain.ListenResult, 1),
		done:   make(chan struct{}),
		owner:  c,
	}

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()

	c.events.ListeningChanged(true)
	c.log.Debug("listening session started",
		zap.Duration("window", c.cfg.Window))

	go session.pumpAudio(c.cfg.ChunkSize)
	go session.consumeTranscripts(matcher)
	go session.watchWindow(c.cfg.Window)

	return session, nil
}

// Active reports whether a listening session is live.
func (c *ListenController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Cancel tears down the live session, if any.
func (c *ListenController) Cancel() {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()
	if session != nil {
		session.Cancel()
	}
}

func (c *ListenController) detach(session *ListenSession) {
	c.mu.Lock()
	if c.current == session {
		c.current = nil
	}
	c.mu.Unlock()
	c.events.ListeningChanged(false)
}

// ListenSession is one bounded listening window. Exactly one result
// is delivered, and every terminal path releases the microphone and
// the transcription channel.
type ListenSession struct {
	cancel context.CancelFunc
	audio  ports.AudioSession
	stream ports.StreamingSession

	result chan domain.ListenResult
	done   chan struct{}

	finishOnce sync.Once
	owner      *ListenController
}

// Result delivers the session's terminal signal.
func (s *ListenSession) Result() <-chan domain.ListenResult {
	return s.result
}

// Cancel tears the session down. Safe to call more than once and
// after the session has already finished.
func (s *ListenSession) Cancel() {
	s.finish(domain.ListenResult{Outcome: domain.ListenCancelled})
}

func (s *ListenSession) finish(result domain.ListenResult) {
	s.finishOnce.Do(func() {
		s.result <- result
		s.cancel()
		_ = s.audio.Stop()
		_ = s.stream.Close()
		close(s.done)
		s.owner.detach(s)
	})
}

func (s *ListenSession) pumpAudio(chunkSize int) {
	buf := make([]byte, chunkSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			if sendErr := s.stream.SendAudio(buf[:n]); sendErr != nil {
				s.finish(domain.ListenResult{
					Outcome: domain.ListenFailed,
					Err:     fmt.Errorf("failed to stream audio: %w", sendErr),
				})
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.finish(domain.ListenResult{
					Outcome: domain.ListenFailed,
					Err:     fmt.Errorf("audio capture error: %w", err),
				})
			}
			return
		}
	}
}

func (s *ListenSession) consumeTranscripts(matcher PhraseMatcher) {
	for event := range s.stream.Events() {
		if event.Text == "" {
			continue
		}
		if matcher.Match(event.Text) {
			s.finish(domain.ListenResult{Outcome: domain.ListenMatched})
			return
		}
	}
	if err := s.stream.Wait(); err != nil {
		s.finish(domain.ListenResult{Outcome: domain.ListenFailed, Err: err})
	}
}

func (s *ListenSession) watchWindow(window time.Duration) {
	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.finish(domain.ListenResult{Outcome: domain.ListenTimedOut})
	case <-s.done:
	}
}
