package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"civicsos/internal/domain"
	"civicsos/internal/ports"
)

type stateChange struct {
	state  domain.FlowState
	reason domain.FlowReason
}

type fakeEventSink struct {
	mu        sync.Mutex
	states    []stateChange
	countdown []int
	recording []int
	listening []bool
	changes   []domain.ChangeEvent
	toasts    []string
	haptics   []int
}

func (f *fakeEventSink) FlowStateChanged(state domain.FlowState, reason domain.FlowReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateChange{state: state, reason: reason})
}

func (f *fakeEventSink) CountdownTick(secondsLeft int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countdown = append(f.countdown, secondsLeft)
}

func (f *fakeEventSink) RecordingTick(secondsLeft int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = append(f.recording, secondsLeft)
}

func (f *fakeEventSink) ListeningChanged(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = append(f.listening, active)
}

func (f *fakeEventSink) StoreChanged(event domain.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, event)
}

func (f *fakeEventSink) Toast(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, message)
}

func (f *fakeEventSink) Haptic(durationMs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.haptics = append(f.haptics, durationMs)
}

func (f *fakeEventSink) stateLog() []stateChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateChange(nil), f.states...)
}

func (f *fakeEventSink) hasState(state domain.FlowState, reason domain.FlowReason) bool {
	for _, s := range f.stateLog() {
		if s.state == state && s.reason == reason {
			return true
		}
	}
	return false
}

func (f *fakeEventSink) toastLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.toasts...)
}

func (f *fakeEventSink) listeningLog() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.listening...)
}

func (f *fakeEventSink) hapticLog() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.haptics...)
}

type fakeAlertWriter struct {
	mu     sync.Mutex
	alerts []domain.SOSAlert
}

func (f *fakeAlertWriter) CreateSOS(user domain.User, mediaRef string) domain.SOSAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert := domain.SOSAlert{
		ID:       fmt.Sprintf("alert-%d", len(f.alerts)+1),
		User:     domain.AlertContact{Name: user.Name, Phone: user.Phone},
		Status:   domain.AlertStatusActive,
		MediaRef: mediaRef,
	}
	f.alerts = append(f.alerts, alert)
	return alert
}

func (f *fakeAlertWriter) committed() []domain.SOSAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SOSAlert(nil), f.alerts...)
}

type fakeRecordingSession struct {
	result   ports.RecordingResult
	done     chan ports.RecordingResult
	stopOnce sync.Once

	mu      sync.Mutex
	stopped bool
}

func newFakeRecordingSession(result ports.RecordingResult) *fakeRecordingSession {
	return &fakeRecordingSession{result: result, done: make(chan ports.RecordingResult, 1)}
}

func (f *fakeRecordingSession) Stop() error {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		f.done <- f.result
	})
	return nil
}

func (f *fakeRecordingSession) Done() <-chan ports.RecordingResult {
	return f.done
}

func (f *fakeRecordingSession) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	result   ports.RecordingResult
	sessions []*fakeRecordingSession
}

func (f *fakeRecorder) Start(_ context.Context, _ ports.RecorderConfig) (ports.RecordingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	session := newFakeRecordingSession(f.result)
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeRecorder) startedSessions() []*fakeRecordingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeRecordingSession(nil), f.sessions...)
}

type fakeAudioSession struct {
	data     chan []byte
	stopOnce sync.Once

	mu      sync.Mutex
	stopped bool
}

func newFakeAudioSession() *fakeAudioSession {
	return &fakeAudioSession{data: make(chan []byte, 8)}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	chunk, ok := <-f.data
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		close(f.data)
	})
	return nil
}

func (f *fakeAudioSession) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeAudioCapture struct {
	session  *fakeAudioSession
	startErr error
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.session, nil
}

type fakeStream struct {
	events    chan domain.TranscriptEvent
	closeOnce sync.Once

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	waitErr error
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan domain.TranscriptEvent, 8)}
}

func (f *fakeStream) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStream) CloseSend() error { return nil }

func (f *fakeStream) Events() <-chan domain.TranscriptEvent {
	return f.events
}

func (f *fakeStream) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErr
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
	return nil
}

func (f *fakeStream) emit(text string, kind domain.TranscriptKind) {
	f.events <- domain.TranscriptEvent{Text: text, Kind: kind}
}

func (f *fakeStream) failWith(err error) {
	f.mu.Lock()
	f.waitErr = err
	f.mu.Unlock()
	_ = f.Close()
}

func (f *fakeStream) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStream) sentChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type fakeProvider struct {
	mu       sync.Mutex
	stream   *fakeStream
	startErr error
	started  int
}

func (f *fakeProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started++
	return f.stream, nil
}

func (f *fakeProvider) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

type fakeMatcher struct {
	target string
}

func (f *fakeMatcher) Match(text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(f.target))
}

type fakeGate struct {
	mu        sync.Mutex
	active    bool
	activated []domain.User
}

func (f *fakeGate) SOSActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeGate) ActivateFromTrigger(user domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, user)
	return nil
}

func (f *fakeGate) activations() []domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.User(nil), f.activated...)
}

type fakeUsers struct {
	user domain.User
	ok   bool
}

func (f *fakeUsers) CurrentUser() (domain.User, bool) {
	return f.user, f.ok
}

func waitUntil(timeout time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return fn()
}
